package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
	"github.com/noah-isme/student-lifecycle-api/internal/repository"
	appErrors "github.com/noah-isme/student-lifecycle-api/pkg/errors"
	"github.com/noah-isme/student-lifecycle-api/pkg/validation"
)

type enrollmentRepository interface {
	Get(ctx context.Context, studentID, academicYear string) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.RosterEntry, error)
	Upsert(ctx context.Context, enrollment *models.Enrollment, mode repository.UpsertMode) error
}

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AssignRollNumberRequest sets or clears the roll number of one enrollment.
type AssignRollNumberRequest struct {
	StudentID    string `json:"-" validate:"required"`
	AcademicYear string `json:"-" validate:"required,academic_year"`
	RollNumber   *int   `json:"roll_number" validate:"omitempty,gt=0"`
	Actor        string `json:"-" validate:"required"`
}

// EnrollmentService exposes rosters and placement maintenance.
type EnrollmentService struct {
	repo      enrollmentRepository
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns the roster of a year ordered by roll number, unnumbered
// students last by name.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.RosterEntry, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid roster filter")
	}
	roster, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to list enrollments")
	}
	if roster == nil {
		roster = []models.RosterEntry{}
	}
	return roster, nil
}

// Get returns the enrollment of a student for one academic year.
func (s *EnrollmentService) Get(ctx context.Context, studentID, academicYear string) (*models.Enrollment, error) {
	if !validation.IsAcademicYear(academicYear) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid academic year")
	}
	enrollment, err := s.repo.Get(ctx, studentID, academicYear)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Infrastructure(err, "failed to load enrollment")
	}
	return enrollment, nil
}

// AssignRollNumber replaces the roll number of an existing enrollment. The
// roll number must be free within the class section of that year.
func (s *EnrollmentService) AssignRollNumber(ctx context.Context, req AssignRollNumberRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid roll number payload")
	}
	enrollment, err := s.Get(ctx, req.StudentID, req.AcademicYear)
	if err != nil {
		return nil, err
	}
	previous := enrollment.RollNumber
	enrollment.RollNumber = req.RollNumber

	if err := s.repo.Upsert(ctx, enrollment, repository.UpsertReplace); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateRollNumber):
			return nil, appErrors.Clone(appErrors.ErrDuplicateRollNumber, "")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Infrastructure(err, "failed to assign roll number")
	}

	s.recordAudit(ctx, req, enrollment.ID, previous)
	return enrollment, nil
}

func (s *EnrollmentService) recordAudit(ctx context.Context, req AssignRollNumberRequest, enrollmentID string, previous *int) {
	if s.audit == nil {
		return
	}
	oldValues, _ := json.Marshal(map[string]*int{"roll_number": previous})
	newValues, _ := json.Marshal(map[string]*int{"roll_number": req.RollNumber})
	actor := req.Actor
	log := &models.AuditLog{
		UserID:     &actor,
		Action:     models.AuditActionRollNumber,
		Resource:   "enrollment",
		ResourceID: &enrollmentID,
		OldValues:  oldValues,
		NewValues:  newValues,
	}
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Warn("failed to record roll number audit", zap.String("enrollment_id", enrollmentID), zap.Error(err))
	}
}
