package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
	"github.com/noah-isme/student-lifecycle-api/internal/service"
	appErrors "github.com/noah-isme/student-lifecycle-api/pkg/errors"
)

type fakeEnrollmentRoster struct {
	filter models.EnrollmentFilter
	assign service.AssignRollNumberRequest
	err    error
}

func (f *fakeEnrollmentRoster) List(_ context.Context, filter models.EnrollmentFilter) ([]models.RosterEntry, error) {
	f.filter = filter
	return []models.RosterEntry{}, f.err
}

func (f *fakeEnrollmentRoster) AssignRollNumber(_ context.Context, req service.AssignRollNumberRequest) (*models.Enrollment, error) {
	f.assign = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Enrollment{StudentID: req.StudentID, AcademicYear: req.AcademicYear, RollNumber: req.RollNumber}, nil
}

type fakeRosterExporter struct {
	format string
}

func (f *fakeRosterExporter) Export(_ context.Context, filter models.EnrollmentFilter, format string) (*service.RosterFile, error) {
	f.format = format
	return &service.RosterFile{
		Filename:    "roster_" + filter.AcademicYear + ".csv",
		ContentType: "text/csv; charset=utf-8",
		Data:        []byte("Roll No\n"),
	}, nil
}

func TestEnrollmentHandlerListBindsFilter(t *testing.T) {
	roster := &fakeEnrollmentRoster{}
	handler := NewEnrollmentHandler(roster, &fakeRosterExporter{}, zap.NewNop())

	c, rec := newTestContext(http.MethodGet, "/enrollments?academic_year=2024-2025&class_name=5&section_name=A", "", "", nil)
	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.EnrollmentFilter{AcademicYear: "2024-2025", ClassName: "5", SectionName: "A"}, roster.filter)
	assert.EqualValues(t, 0, decodeEnvelope(t, rec).Meta["total"])
}

func TestEnrollmentHandlerExport(t *testing.T) {
	exporter := &fakeRosterExporter{}
	handler := NewEnrollmentHandler(&fakeEnrollmentRoster{}, exporter, zap.NewNop())

	c, rec := newTestContext(http.MethodGet, "/enrollments/export?academic_year=2024-2025", "", "", nil)
	handler.Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "csv", exporter.format)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "roster_2024-2025.csv")
	assert.Equal(t, "Roll No\n", rec.Body.String())
}

func TestEnrollmentHandlerAssignRollNumber(t *testing.T) {
	roster := &fakeEnrollmentRoster{}
	handler := NewEnrollmentHandler(roster, &fakeRosterExporter{}, zap.NewNop())

	c, rec := newTestContext(http.MethodPut, "/enrollments/7/2024-2025/roll-number", `{"roll_number":12}`, "admin-1",
		gin.Params{{Key: "studentId", Value: "7"}, {Key: "year", Value: "2024-2025"}})
	handler.AssignRollNumber(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", roster.assign.StudentID)
	assert.Equal(t, "2024-2025", roster.assign.AcademicYear)
	assert.Equal(t, "admin-1", roster.assign.Actor)
	assert.Equal(t, 12, *roster.assign.RollNumber)
}

func TestEnrollmentHandlerAssignRollNumberConflict(t *testing.T) {
	roster := &fakeEnrollmentRoster{err: appErrors.Clone(appErrors.ErrDuplicateRollNumber, "")}
	handler := NewEnrollmentHandler(roster, &fakeRosterExporter{}, zap.NewNop())

	c, rec := newTestContext(http.MethodPut, "/enrollments/7/2024-2025/roll-number", `{"roll_number":12}`, "admin-1",
		gin.Params{{Key: "studentId", Value: "7"}, {Key: "year", Value: "2024-2025"}})
	handler.AssignRollNumber(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_ROLL_NUMBER", decodeEnvelope(t, rec).Error.Code)
}
