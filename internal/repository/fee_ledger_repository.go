package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
)

const feeColumns = `id, student_id, title, academic_year, total_fee, paid_amount, due_amount, concession, status, updated_at`

// FeeLedgerRepository reads installments from studentfees and applies the
// nullify adjustment. Fee computation itself lives elsewhere.
type FeeLedgerRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewFeeLedgerRepository constructs the repository.
func NewFeeLedgerRepository(db *sqlx.DB) *FeeLedgerRepository {
	return &FeeLedgerRepository{db: db, now: time.Now}
}

// Installments lists a student's installments, optionally limited to one
// academic year, with due amounts normalised.
func (r *FeeLedgerRepository) Installments(ctx context.Context, studentID, academicYear string) ([]models.FeeInstallment, error) {
	query := `SELECT ` + feeColumns + ` FROM studentfees WHERE student_id = $1`
	args := []interface{}{studentID}
	if academicYear != "" {
		query += " AND academic_year = $2"
		args = append(args, academicYear)
	}
	query += " ORDER BY academic_year, title"

	var items []models.FeeInstallment
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	for i := range items {
		items[i].Normalize()
	}
	return items, nil
}

// ZeroUnpaid waives every installment that is owed with nothing paid by
// raising its concession to the total. Partially paid installments are left
// alone. The adjustment and its audit log commit together.
func (r *FeeLedgerRepository) ZeroUnpaid(ctx context.Context, studentID, actor string) (adjusted []models.FeeInstallment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin nullify transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var items []models.FeeInstallment
	query := `SELECT ` + feeColumns + ` FROM studentfees WHERE student_id = $1 ORDER BY academic_year, title FOR UPDATE`
	if err = tx.SelectContext(ctx, &items, query, studentID); err != nil {
		return nil, fmt.Errorf("lock installments: %w", err)
	}

	now := r.now().UTC()
	var before []models.FeeInstallment
	for _, item := range items {
		item.Normalize()
		if !item.Nullifiable() {
			continue
		}
		before = append(before, item)

		item.Concession = item.TotalFee
		item.DueAmount = 0
		item.Status = models.FeeStatusPaid
		item.UpdatedAt = now
		const update = `UPDATE studentfees SET concession = $2, due_amount = 0, status = $3, updated_at = $4 WHERE id = $1`
		if _, err = tx.ExecContext(ctx, update, item.ID, item.Concession, item.Status, item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("zero installment %s: %w", item.ID, err)
		}
		adjusted = append(adjusted, item)
	}

	if len(adjusted) > 0 {
		oldValues, _ := json.Marshal(before)
		newValues, _ := json.Marshal(adjusted)
		var userID *string
		if actor != "" {
			userID = &actor
		}
		if err = insertAudit(ctx, tx, &models.AuditLog{
			UserID:     userID,
			Action:     models.AuditActionFeeNullify,
			Resource:   "student_fees",
			ResourceID: &studentID,
			OldValues:  oldValues,
			NewValues:  newValues,
			CreatedAt:  now,
		}); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit nullify: %w", err)
	}
	return adjusted, nil
}
