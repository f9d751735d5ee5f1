package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
	"github.com/noah-isme/student-lifecycle-api/internal/repository"
	appErrors "github.com/noah-isme/student-lifecycle-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	roster      []models.RosterEntry
	upsertErr   error
	upserted    *models.Enrollment
	mode        repository.UpsertMode
}

func (m *mockEnrollmentRepo) Get(ctx context.Context, studentID, academicYear string) (*models.Enrollment, error) {
	e, ok := m.enrollments[studentID+"|"+academicYear]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.RosterEntry, error) {
	return m.roster, nil
}

func (m *mockEnrollmentRepo) Upsert(ctx context.Context, enrollment *models.Enrollment, mode repository.UpsertMode) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = enrollment
	m.mode = mode
	return nil
}

type mockAuditWriter struct {
	logs []models.AuditLog
	err  error
}

func (m *mockAuditWriter) Create(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, *log)
	return m.err
}

func TestEnrollmentServiceListRequiresYear(t *testing.T) {
	svc := NewEnrollmentService(&mockEnrollmentRepo{}, nil, nil, zap.NewNop())

	_, err := svc.List(context.Background(), models.EnrollmentFilter{ClassName: "5"})
	assertCode(t, err, appErrors.ErrValidation)

	roster, err := svc.List(context.Background(), models.EnrollmentFilter{AcademicYear: "2024-2025"})
	require.NoError(t, err)
	assert.NotNil(t, roster)
}

func TestEnrollmentServiceAssignRollNumber(t *testing.T) {
	old := 4
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"1|2024-2025": {ID: "e1", StudentID: "1", AcademicYear: "2024-2025", ClassName: "5", SectionName: "A", RollNumber: &old},
	}}
	audit := &mockAuditWriter{}
	svc := NewEnrollmentService(repo, audit, nil, zap.NewNop())
	roll := 7

	updated, err := svc.AssignRollNumber(context.Background(), AssignRollNumberRequest{
		StudentID: "1", AcademicYear: "2024-2025", RollNumber: &roll, Actor: "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, *updated.RollNumber)
	assert.Equal(t, repository.UpsertReplace, repo.mode)
	assert.Equal(t, "2024-2025", repo.upserted.AcademicYear)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionRollNumber, audit.logs[0].Action)
	assert.JSONEq(t, `{"roll_number":4}`, string(audit.logs[0].OldValues))
	assert.JSONEq(t, `{"roll_number":7}`, string(audit.logs[0].NewValues))
}

func TestEnrollmentServiceAssignRollNumberErrors(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"1|2024-2025": {ID: "e1", StudentID: "1", AcademicYear: "2024-2025"},
	}}
	audit := &mockAuditWriter{err: errors.New("audit down")}
	svc := NewEnrollmentService(repo, audit, nil, zap.NewNop())
	roll := 2

	_, err := svc.AssignRollNumber(context.Background(), AssignRollNumberRequest{StudentID: "2", AcademicYear: "2024-2025", RollNumber: &roll, Actor: "a"})
	assertCode(t, err, appErrors.ErrNotFound)

	repo.upsertErr = repository.ErrDuplicateRollNumber
	_, err = svc.AssignRollNumber(context.Background(), AssignRollNumberRequest{StudentID: "1", AcademicYear: "2024-2025", RollNumber: &roll, Actor: "a"})
	assertCode(t, err, appErrors.ErrDuplicateRollNumber)

	repo.upsertErr = nil
	_, err = svc.AssignRollNumber(context.Background(), AssignRollNumberRequest{StudentID: "1", AcademicYear: "2024-2025", RollNumber: &roll, Actor: "a"})
	require.NoError(t, err, "audit failures are logged, not returned")
}
