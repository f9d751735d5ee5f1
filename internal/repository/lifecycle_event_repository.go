package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
)

// LifecycleEventRepository reads the insert-only lifecycle audit trail.
// Events are written by the transactions that commit the transition.
type LifecycleEventRepository struct {
	db *sqlx.DB
}

// NewLifecycleEventRepository constructs the repository.
func NewLifecycleEventRepository(db *sqlx.DB) *LifecycleEventRepository {
	return &LifecycleEventRepository{db: db}
}

// ListByStudent returns a student's events, oldest first.
func (r *LifecycleEventRepository) ListByStudent(ctx context.Context, studentID string) ([]models.LifecycleEvent, error) {
	const query = `SELECT id, student_id, kind, occurred_at, actor, reason,
COALESCE(before_state, '{}'::jsonb) AS before_state, COALESCE(after_state, '{}'::jsonb) AS after_state
FROM lifecycle_events WHERE student_id = $1 ORDER BY occurred_at ASC, id ASC`
	var events []models.LifecycleEvent
	if err := r.db.SelectContext(ctx, &events, query, studentID); err != nil {
		return nil, fmt.Errorf("list lifecycle events: %w", err)
	}
	return events, nil
}

func insertEvent(ctx context.Context, exec execer, event *models.LifecycleEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	const query = `INSERT INTO lifecycle_events (id, student_id, kind, occurred_at, actor, reason, before_state, after_state)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := exec.ExecContext(ctx, query,
		event.ID, event.StudentID, event.Kind, event.OccurredAt, event.Actor, event.Reason,
		jsonArg(event.Before), jsonArg(event.After),
	); err != nil {
		return fmt.Errorf("insert lifecycle event: %w", err)
	}
	return nil
}
