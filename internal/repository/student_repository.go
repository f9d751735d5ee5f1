package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
)

const studentColumns = `s.id, s.admission_no, s.full_name, s.gender, s.birth_date, s.phone, s.address,
        s.guardian_name, s.guardian_relation, s.guardian_phone, s.status,
        s.inactivated_on, s.inactivation_reason, s.inactivated_by, s.created_at, s.updated_at`

const placementColumns = `e.academic_year, e.class_name, e.section_name, e.roll_number, e.branch`

// StatusTransition describes a compare-and-set status change. The write only
// applies while the stored status still equals From.
type StatusTransition struct {
	StudentID     string
	From          models.StudentStatus
	To            models.StudentStatus
	InactivatedOn *time.Time
	Reason        *string
	Actor         *string
	At            time.Time
}

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// placementJoin picks the enrollment of the requested year, or the latest
// one when no year is given. It consumes argument $1 when year is set.
func placementJoin(year string, args *[]interface{}) string {
	yearClause := ""
	if year != "" {
		*args = append(*args, year)
		yearClause = fmt.Sprintf(" AND en.academic_year = $%d", len(*args))
	}
	return `FROM students s
        LEFT JOIN LATERAL (
            SELECT en.academic_year, en.class_name, en.section_name, en.roll_number, en.branch
            FROM enrollments en WHERE en.student_id = s.id` + yearClause + `
            ORDER BY en.academic_year DESC LIMIT 1
        ) e ON TRUE`
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	var args []interface{}
	base := placementJoin(filter.AcademicYear, &args)
	conditions := []string{"1=1"}

	if filter.AcademicYear != "" {
		conditions = append(conditions, "e.academic_year IS NOT NULL")
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
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
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.full_name) LIKE $%d OR LOWER(s.admission_no) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"full_name":    "s.full_name",
		"admission_no": "s.admission_no",
		"created_at":   "s.created_at",
		"roll_number":  "e.roll_number",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s, %s
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, studentColumns, placementColumns, base, column, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students s WHERE s.id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// FindDetailByID fetches a student with its latest placement.
func (r *StudentRepository) FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	var args []interface{}
	base := placementJoin("", &args)
	query := fmt.Sprintf(`SELECT %s, %s
        %s WHERE s.id = $1`, studentColumns, placementColumns, base)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student detail: %w", err)
	}
	return &detail, nil
}

// ExistsByAdmissionNo checks whether an admission number is already assigned.
func (r *StudentRepository) ExistsByAdmissionNo(ctx context.Context, admissionNo string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM students WHERE admission_no = $1 LIMIT 1", admissionNo); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check admission number: %w", err)
	}
	return true, nil
}

// Admit inserts a new student together with its first enrollment.
func (r *StudentRepository) Admit(ctx context.Context, student *models.Student, enrollment *models.Enrollment) (err error) {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	if student.Status == "" {
		student.Status = models.StudentStatusActive
	}
	enrollment.StudentID = student.ID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin admission transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO students (id, admission_no, full_name, gender, birth_date, phone, address,
        guardian_name, guardian_relation, guardian_phone, status, created_at, updated_at)
        VALUES (:id, :admission_no, :full_name, :gender, :birth_date, :phone, :address,
        :guardian_name, :guardian_relation, :guardian_phone, :status, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, student); err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("insert student: %w", err)
	}
	if err = insertEnrollment(ctx, tx, enrollment); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit admission: %w", err)
	}
	return nil
}

// Update rewrites the descriptive fields of a student. Admission number and
// status are not touched.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET full_name = :full_name, gender = :gender, birth_date = :birth_date, phone = :phone,
        address = :address, guardian_name = :guardian_name, guardian_relation = :guardian_relation,
        guardian_phone = :guardian_phone, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, student)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ApplyTransition performs the status change and appends its event in one
// transaction. ErrStatusConflict means another writer moved the student first.
func (r *StudentRepository) ApplyTransition(ctx context.Context, t StatusTransition, event *models.LifecycleEvent) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var res sql.Result
	if t.To == models.StudentStatusTransferred {
		const query = `UPDATE students SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
		res, err = tx.ExecContext(ctx, query, t.StudentID, t.From, t.To, t.At)
	} else {
		const query = `UPDATE students SET status = $3, inactivated_on = $4, inactivation_reason = $5, inactivated_by = $6, updated_at = $7
WHERE id = $1 AND status = $2`
		res, err = tx.ExecContext(ctx, query, t.StudentID, t.From, t.To, t.InactivatedOn, t.Reason, t.Actor, t.At)
	}
	if err != nil {
		return fmt.Errorf("update student status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update student status rows: %w", err)
	}
	if affected == 0 {
		return ErrStatusConflict
	}

	if err = insertEvent(ctx, tx, event); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}
