package repository

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
)

// UpsertMode selects between creating a new year row and replacing an
// existing one.
type UpsertMode int

const (
	// UpsertCreate inserts a row and fails with ErrDuplicateEnrollment when
	// the student already has one for the year.
	UpsertCreate UpsertMode = iota
	// UpsertReplace rewrites the placement of the exact row identified by
	// ID, StudentID and AcademicYear.
	UpsertReplace
)

const enrollmentColumns = `id, student_id, academic_year, class_name, section_name, roll_number, branch, is_promoted, promoted_date, created_at`

// EnrollmentRepository is the enrollment record store. Uniqueness of
// (student, year) and of roll numbers is enforced by constraints, so racing
// writers for the same key resolve to one commit and one duplicate error.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Get returns the enrollment of a student for one academic year.
func (r *EnrollmentRepository) Get(ctx context.Context, studentID, academicYear string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 AND academic_year = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, academicYear); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return &enrollment, nil
}

// Latest returns the student's enrollment with the highest academic year.
func (r *EnrollmentRepository) Latest(ctx context.Context, studentID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 ORDER BY academic_year DESC LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("latest enrollment: %w", err)
	}
	return &enrollment, nil
}

// List returns the roster for a year, ordered by roll number with unnumbered
// students last, then by name.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.RosterEntry, error) {
	conditions := []string{"e.academic_year = $1"}
	args := []interface{}{filter.AcademicYear}
	if filter.ClassName != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_name = $%d", len(args)+1))
		args = append(args, filter.ClassName)
	}
	if filter.SectionName != "" {
		conditions = append(conditions, fmt.Sprintf("e.section_name = $%d", len(args)+1))
		args = append(args, filter.SectionName)
	}
	if filter.Branch != "" {
		conditions = append(conditions, fmt.Sprintf("e.branch = $%d", len(args)+1))
		args = append(args, filter.Branch)
	}

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.academic_year, e.class_name, e.section_name, e.roll_number, e.branch, e.is_promoted, e.promoted_date, e.created_at,
        s.admission_no, s.full_name, s.status AS student_status
        FROM enrollments e JOIN students s ON s.id = e.student_id
        WHERE %s ORDER BY e.roll_number ASC NULLS LAST, s.full_name ASC`, strings.Join(conditions, " AND "))

	var roster []models.RosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, args...); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return roster, nil
}

// Upsert writes an enrollment according to mode. The academic year of an
// existing row is never changed.
func (r *EnrollmentRepository) Upsert(ctx context.Context, enrollment *models.Enrollment, mode UpsertMode) error {
	switch mode {
	case UpsertCreate:
		return insertEnrollment(ctx, r.db, enrollment)
	case UpsertReplace:
		const query = `UPDATE enrollments SET class_name = $4, section_name = $5, roll_number = $6, branch = $7
WHERE id = $1 AND student_id = $2 AND academic_year = $3`
		res, err := r.db.ExecContext(ctx, query,
			enrollment.ID, enrollment.StudentID, enrollment.AcademicYear,
			enrollment.ClassName, enrollment.SectionName, enrollment.RollNumber, enrollment.Branch,
		)
		if err != nil {
			if conflict := uniqueConflict(err); conflict != nil {
				return conflict
			}
			return fmt.Errorf("replace enrollment: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("replace enrollment rows: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	default:
		return fmt.Errorf("unknown upsert mode %d", mode)
	}
}

// History streams a student's enrollments ordered by academic year. Each
// range over the returned sequence runs a fresh query.
func (r *EnrollmentRepository) History(ctx context.Context, studentID string) iter.Seq2[models.Enrollment, error] {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 ORDER BY academic_year ASC`
	return func(yield func(models.Enrollment, error) bool) {
		rows, err := r.db.QueryxContext(ctx, query, studentID)
		if err != nil {
			yield(models.Enrollment{}, fmt.Errorf("query enrollment history: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var enrollment models.Enrollment
			if err := rows.StructScan(&enrollment); err != nil {
				yield(models.Enrollment{}, fmt.Errorf("scan enrollment history: %w", err))
				return
			}
			if !yield(enrollment, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Enrollment{}, fmt.Errorf("iterate enrollment history: %w", err))
		}
	}
}

// CreatePromotion inserts a new-year enrollment and its PROMOTED event in
// one transaction.
func (r *EnrollmentRepository) CreatePromotion(ctx context.Context, enrollment *models.Enrollment, event *models.LifecycleEvent) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin promotion transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = insertEnrollment(ctx, tx, enrollment); err != nil {
		return err
	}
	if err = insertEvent(ctx, tx, event); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit promotion: %w", err)
	}
	return nil
}

// Summary counts enrollments of a year grouped by class, section and
// student status. An empty branch covers all branches.
func (r *EnrollmentRepository) Summary(ctx context.Context, academicYear, branch string) ([]models.SummaryRow, error) {
	query := `SELECT e.class_name, e.section_name, s.status, COUNT(*) AS total
FROM enrollments e JOIN students s ON s.id = e.student_id
WHERE e.academic_year = $1`
	args := []interface{}{academicYear}
	if branch != "" {
		query += " AND e.branch = $2"
		args = append(args, branch)
	}
	query += " GROUP BY e.class_name, e.section_name, s.status ORDER BY e.class_name, e.section_name, s.status"

	var rows []models.SummaryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("summarise enrollments: %w", err)
	}
	return rows, nil
}

func insertEnrollment(ctx context.Context, exec execer, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO enrollments (` + enrollmentColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := exec.ExecContext(ctx, query,
		enrollment.ID, enrollment.StudentID, enrollment.AcademicYear, enrollment.ClassName, enrollment.SectionName,
		enrollment.RollNumber, enrollment.Branch, enrollment.IsPromoted, enrollment.PromotedDate, enrollment.CreatedAt,
	); err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}
