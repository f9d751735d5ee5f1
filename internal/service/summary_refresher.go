package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
	"github.com/noah-isme/student-lifecycle-api/pkg/jobs"
)

const jobTypeSummaryRefresh = "summary.refresh"

type summaryScope struct {
	AcademicYear string
	Branch       string
}

type summaryRebuilder interface {
	Invalidate(ctx context.Context, academicYear string) error
	Refresh(ctx context.Context, academicYear, branch string) (*models.StudentSummary, error)
	CacheEnabled() bool
}

// SummaryRefresher invalidates and re-warms cached summaries off the request
// path. Notifications for the same scope are coalesced while one is queued.
type SummaryRefresher struct {
	summaries summaryRebuilder
	queue     *jobs.Queue
	logger    *zap.Logger
}

// NewSummaryRefresher wires a refresher onto its own worker queue.
func NewSummaryRefresher(summaries summaryRebuilder, cfg jobs.QueueConfig) *SummaryRefresher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := &SummaryRefresher{summaries: summaries, logger: cfg.Logger}
	r.queue = jobs.NewQueue("summary-refresh", r.handle, cfg)
	return r
}

// Start launches the workers.
func (r *SummaryRefresher) Start(ctx context.Context) {
	r.queue.Start(ctx)
}

// Stop waits for in-flight refreshes to finish.
func (r *SummaryRefresher) Stop() {
	r.queue.Stop()
}

// Notify schedules a refresh. Failures to enqueue are logged; the cache TTL
// bounds staleness regardless.
func (r *SummaryRefresher) Notify(academicYear, branch string) {
	job := jobs.Job{
		ID:      uuid.NewString(),
		Key:     fmt.Sprintf("%s|%s", academicYear, branch),
		Type:    jobTypeSummaryRefresh,
		Payload: summaryScope{AcademicYear: academicYear, Branch: branch},
	}
	if err := r.queue.Enqueue(job); err != nil {
		r.logger.Warn("failed to schedule summary refresh",
			zap.String("academic_year", academicYear),
			zap.String("branch", branch),
			zap.Error(err),
		)
	}
}

func (r *SummaryRefresher) handle(ctx context.Context, job jobs.Job) error {
	scope, ok := job.Payload.(summaryScope)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	if err := r.summaries.Invalidate(ctx, scope.AcademicYear); err != nil {
		return err
	}
	if scope.AcademicYear == "" || !r.summaries.CacheEnabled() {
		return nil
	}
	if _, err := r.summaries.Refresh(ctx, scope.AcademicYear, scope.Branch); err != nil {
		return err
	}
	if scope.Branch != "" {
		if _, err := r.summaries.Refresh(ctx, scope.AcademicYear, ""); err != nil {
			return err
		}
	}
	r.logger.Debug("summary refreshed", zap.String("academic_year", scope.AcademicYear), zap.String("branch", scope.Branch))
	return nil
}
