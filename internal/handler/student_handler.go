package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
	"github.com/noah-isme/student-lifecycle-api/internal/service"
	"github.com/noah-isme/student-lifecycle-api/pkg/response"
)

type studentDirectory interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.StudentDetail, error)
	Admit(ctx context.Context, req service.AdmitStudentRequest) (*models.Student, *models.Enrollment, error)
	Update(ctx context.Context, id string, req service.UpdateStudentRequest) (*models.Student, error)
	History(ctx context.Context, id string) ([]models.Enrollment, error)
	Events(ctx context.Context, id string) ([]models.LifecycleEvent, error)
}

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students studentDirectory
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentDirectory) *StudentHandler {
	return &StudentHandler{students: students}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Search by name or admission number"
// @Param status query string false "ACTIVE, INACTIVE or TRANSFERRED"
// @Param academic_year query string false "Placement year, e.g. 2025-2026"
// @Param class_name query string false "Filter by class"
// @Param section_name query string false "Filter by section"
// @Param branch query string false "Filter by branch"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter := models.StudentFilter{
		Search:       strings.TrimSpace(c.Query("search")),
		Status:       models.StudentStatus(strings.ToUpper(c.Query("status"))),
		AcademicYear: c.Query("academic_year"),
		ClassName:    c.Query("class_name"),
		SectionName:  c.Query("section_name"),
		Branch:       c.Query("branch"),
		SortBy:       c.Query("sort"),
		SortOrder:    c.Query("order"),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	students, pagination, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Admit student
// @Description Creates an ACTIVE student with the initial enrollment.
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.AdmitStudentRequest true "Admission payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.AdmitStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, enrollment, err := h.students.Admit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"student": student, "enrollment": enrollment})
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.UpdateStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.UpdateStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.students.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// History godoc
// @Summary Academic history
// @Description Every enrollment of the student ordered by academic year.
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/history [get]
func (h *StudentHandler) History(c *gin.Context) {
	history, err := h.students.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Events godoc
// @Summary Lifecycle events
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/events [get]
func (h *StudentHandler) Events(c *gin.Context) {
	events, err := h.students.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}
