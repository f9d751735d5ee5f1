package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/student-lifecycle-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context) ([]models.Class, error)
}

// ClassService exposes the class catalog that promotions and admissions
// are checked against.
type ClassService struct {
	repo   classRepository
	logger *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, logger *zap.Logger) *ClassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, logger: logger}
}

// List returns the catalog ordered by level then name.
func (s *ClassService) List(ctx context.Context) ([]models.Class, error) {
	classes, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to list classes")
	}
	if classes == nil {
		classes = []models.Class{}
	}
	return classes, nil
}
