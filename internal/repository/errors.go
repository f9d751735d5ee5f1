package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/student-lifecycle-api/pkg/database"
)

// Store-level conflicts. Missing rows are reported as sql.ErrNoRows.
var (
	ErrDuplicateEnrollment  = errors.New("enrollment already exists for student and academic year")
	ErrDuplicateRollNumber  = errors.New("roll number already taken in class section")
	ErrDuplicateAdmissionNo = errors.New("admission number already assigned")
	ErrStatusConflict       = errors.New("student status changed concurrently")
)

// Constraint names declared in migrations/001_student_lifecycle.sql.
const (
	constraintEnrollmentStudentYear = "uq_enrollment_student_year"
	constraintEnrollmentRoll        = "uq_enrollment_roll"
	constraintStudentAdmissionNo    = "uq_students_admission_no"
)

// execer is satisfied by both *sqlx.DB and *sqlx.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// uniqueConflict translates a known unique constraint violation into its
// repository sentinel. It returns nil for any other error.
func uniqueConflict(err error) error {
	constraint, ok := database.UniqueViolation(err)
	if !ok {
		return nil
	}
	switch constraint {
	case constraintEnrollmentStudentYear:
		return ErrDuplicateEnrollment
	case constraintEnrollmentRoll:
		return ErrDuplicateRollNumber
	case constraintStudentAdmissionNo:
		return ErrDuplicateAdmissionNo
	}
	return nil
}

// jsonArg passes a JSON document as text so both drivers bind it to jsonb.
func jsonArg(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
