package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
	"github.com/noah-isme/student-lifecycle-api/pkg/cache"
	appErrors "github.com/noah-isme/student-lifecycle-api/pkg/errors"
	"github.com/noah-isme/student-lifecycle-api/pkg/validation"
)

type summaryStore interface {
	Summary(ctx context.Context, academicYear, branch string) ([]models.SummaryRow, error)
}

// SummaryService aggregates class and section head counts for a year and
// branch, serving them from the cache when possible.
type SummaryService struct {
	store  summaryStore
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewSummaryService constructs SummaryService.
func NewSummaryService(store summaryStore, cacheSvc *CacheService, ttl time.Duration, logger *zap.Logger) *SummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{store: store, cache: cacheSvc, ttl: ttl, logger: logger, now: time.Now}
}

func summaryKey(academicYear, branch string) string {
	return cache.Key("summary", academicYear, branch)
}

// Get returns the summary of a year, optionally narrowed to a branch. The
// boolean reports whether it was served from the cache.
func (s *SummaryService) Get(ctx context.Context, academicYear, branch string) (*models.StudentSummary, bool, error) {
	if !validation.IsAcademicYear(academicYear) {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "invalid academic year")
	}
	var cached models.StudentSummary
	if s.cache.Get(ctx, summaryKey(academicYear, branch), &cached) {
		return &cached, true, nil
	}
	summary, err := s.Refresh(ctx, academicYear, branch)
	if err != nil {
		return nil, false, err
	}
	return summary, false, nil
}

// Refresh rebuilds the summary from the store and writes it to the cache.
func (s *SummaryService) Refresh(ctx context.Context, academicYear, branch string) (*models.StudentSummary, error) {
	rows, err := s.store.Summary(ctx, academicYear, branch)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to build student summary")
	}
	summary := buildSummary(academicYear, branch, rows)
	summary.GeneratedAt = s.now().UTC()
	s.cache.Set(ctx, summaryKey(academicYear, branch), summary, s.ttl)
	return summary, nil
}

// Invalidate drops cached summaries of a year, or of every year when
// academicYear is empty.
func (s *SummaryService) Invalidate(ctx context.Context, academicYear string) error {
	pattern := cache.Key("summary", "*")
	if academicYear != "" {
		pattern = cache.Key("summary", academicYear, "*")
	}
	return s.cache.Invalidate(ctx, pattern)
}

// CacheEnabled reports whether summaries are cached at all.
func (s *SummaryService) CacheEnabled() bool {
	return s.cache.Enabled()
}

func buildSummary(academicYear, branch string, rows []models.SummaryRow) *models.StudentSummary {
	summary := &models.StudentSummary{
		AcademicYear: academicYear,
		Branch:       branch,
		ByStatus: map[models.StudentStatus]int{
			models.StudentStatusActive:      0,
			models.StudentStatusInactive:    0,
			models.StudentStatusTransferred: 0,
		},
		Classes: []models.ClassSummary{},
	}
	classIndex := map[string]int{}
	sectionIndex := map[string]map[string]int{}
	for _, row := range rows {
		summary.Total += row.Total
		summary.ByStatus[row.Status] += row.Total

		ci, ok := classIndex[row.ClassName]
		if !ok {
			ci = len(summary.Classes)
			classIndex[row.ClassName] = ci
			sectionIndex[row.ClassName] = map[string]int{}
			summary.Classes = append(summary.Classes, models.ClassSummary{ClassName: row.ClassName, Sections: []models.SectionSummary{}})
		}
		class := &summary.Classes[ci]
		class.Total += row.Total

		si, ok := sectionIndex[row.ClassName][row.SectionName]
		if !ok {
			si = len(class.Sections)
			sectionIndex[row.ClassName][row.SectionName] = si
			class.Sections = append(class.Sections, models.SectionSummary{SectionName: row.SectionName})
		}
		class.Sections[si].Total += row.Total
	}
	return summary
}
