package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
	"github.com/noah-isme/student-lifecycle-api/internal/service"
	appErrors "github.com/noah-isme/student-lifecycle-api/pkg/errors"
)

type fakeStudentDirectory struct {
	filter  models.StudentFilter
	admit   service.AdmitStudentRequest
	history []models.Enrollment
	err     error
}

func (f *fakeStudentDirectory) List(_ context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	f.filter = filter
	if f.err != nil {
		return nil, nil, f.err
	}
	return []models.StudentDetail{{Student: models.Student{ID: "1"}}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (f *fakeStudentDirectory) Get(_ context.Context, id string) (*models.StudentDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.StudentDetail{Student: models.Student{ID: id}}, nil
}

func (f *fakeStudentDirectory) Admit(_ context.Context, req service.AdmitStudentRequest) (*models.Student, *models.Enrollment, error) {
	f.admit = req
	if f.err != nil {
		return nil, nil, f.err
	}
	return &models.Student{ID: "s-1", AdmissionNo: req.AdmissionNo}, &models.Enrollment{StudentID: "s-1", AcademicYear: req.AcademicYear}, nil
}

func (f *fakeStudentDirectory) Update(_ context.Context, id string, req service.UpdateStudentRequest) (*models.Student, error) {
	return &models.Student{ID: id, FullName: req.FullName}, f.err
}

func (f *fakeStudentDirectory) History(context.Context, string) ([]models.Enrollment, error) {
	return f.history, f.err
}

func (f *fakeStudentDirectory) Events(context.Context, string) ([]models.LifecycleEvent, error) {
	return []models.LifecycleEvent{}, f.err
}

func TestStudentHandlerListParsesQuery(t *testing.T) {
	directory := &fakeStudentDirectory{}
	handler := NewStudentHandler(directory)

	c, rec := newTestContext(http.MethodGet, "/students?status=inactive&academic_year=2024-2025&page=2&limit=5&search=+asha+", "", "", nil)
	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StudentStatusInactive, directory.filter.Status)
	assert.Equal(t, "2024-2025", directory.filter.AcademicYear)
	assert.Equal(t, "asha", directory.filter.Search)
	assert.Equal(t, 2, directory.filter.Page)
	assert.Equal(t, 5, directory.filter.PageSize)
}

func TestStudentHandlerCreate(t *testing.T) {
	directory := &fakeStudentDirectory{}
	handler := NewStudentHandler(directory)

	c, rec := newTestContext(http.MethodPost, "/students",
		`{"admission_no":"ADM-1","full_name":"Asha","academic_year":"2024-2025","class_name":"5","section_name":"A","branch":"north"}`, "admin-1", nil)
	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ADM-1", directory.admit.AdmissionNo)

	var body struct {
		Student    models.Student    `json:"student"`
		Enrollment models.Enrollment `json:"enrollment"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &body))
	assert.Equal(t, "s-1", body.Student.ID)
	assert.Equal(t, "2024-2025", body.Enrollment.AcademicYear)
}

func TestStudentHandlerGetNotFound(t *testing.T) {
	handler := NewStudentHandler(&fakeStudentDirectory{err: appErrors.Clone(appErrors.ErrNotFound, "student not found")})

	c, rec := newTestContext(http.MethodGet, "/students/9", "", "", gin.Params{{Key: "id", Value: "9"}})
	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStudentHandlerHistory(t *testing.T) {
	directory := &fakeStudentDirectory{history: []models.Enrollment{
		{StudentID: "1", AcademicYear: "2023-2024"},
		{StudentID: "1", AcademicYear: "2024-2025"},
	}}
	handler := NewStudentHandler(directory)

	c, rec := newTestContext(http.MethodGet, "/students/1/history", "", "", gin.Params{{Key: "id", Value: "1"}})
	handler.History(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var history []models.Enrollment
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &history))
	require.Len(t, history, 2)
	assert.Equal(t, "2023-2024", history[0].AcademicYear)
}
