package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-lifecycle-api/pkg/config"
)

func TestUniqueViolationRecognisesBothDrivers(t *testing.T) {
	constraint, ok := UniqueViolation(&pq.Error{Code: "23505", Constraint: "uq_enrollment_student_year"})
	require.True(t, ok)
	assert.Equal(t, "uq_enrollment_student_year", constraint)

	wrapped := fmt.Errorf("insert enrollment: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uq_enrollment_roll"})
	constraint, ok = UniqueViolation(wrapped)
	require.True(t, ok)
	assert.Equal(t, "uq_enrollment_roll", constraint)
}

func TestUniqueViolationIgnoresOtherErrors(t *testing.T) {
	_, ok := UniqueViolation(&pq.Error{Code: "23503"})
	assert.False(t, ok)
	_, ok = UniqueViolation(errors.New("connection reset"))
	assert.False(t, ok)
	_, ok = UniqueViolation(nil)
	assert.False(t, ok)
}

func TestNewPostgresRejectsUnknownDriver(t *testing.T) {
	_, err := NewPostgres(context.Background(), config.DatabaseConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}
