package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
	"github.com/noah-isme/student-lifecycle-api/internal/service"
	appErrors "github.com/noah-isme/student-lifecycle-api/pkg/errors"
	"github.com/noah-isme/student-lifecycle-api/pkg/response"
)

type enrollmentRoster interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.RosterEntry, error)
	AssignRollNumber(ctx context.Context, req service.AssignRollNumberRequest) (*models.Enrollment, error)
}

type rosterExporter interface {
	Export(ctx context.Context, filter models.EnrollmentFilter, format string) (*service.RosterFile, error)
}

// EnrollmentHandler exposes rosters, roster exports and roll numbers.
type EnrollmentHandler struct {
	enrollments enrollmentRoster
	exporter    rosterExporter
	logger      *zap.Logger
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentRoster, exporter rosterExporter, logger *zap.Logger) *EnrollmentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentHandler{enrollments: enrollments, exporter: exporter, logger: logger}
}

func bindRosterFilter(c *gin.Context) (models.EnrollmentFilter, bool) {
	var filter models.EnrollmentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid roster filter"))
		return filter, false
	}
	return filter, true
}

// List godoc
// @Summary Roster for an academic year
// @Tags Enrollments
// @Produce json
// @Param academic_year query string true "Academic year, e.g. 2025-2026"
// @Param class_name query string false "Class"
// @Param section_name query string false "Section"
// @Param branch query string false "Branch"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	filter, ok := bindRosterFilter(c)
	if !ok {
		return
	}
	roster, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil, map[string]interface{}{"total": len(roster)})
}

// Export godoc
// @Summary Export roster
// @Tags Enrollments
// @Produce octet-stream
// @Param academic_year query string true "Academic year"
// @Param class_name query string false "Class"
// @Param section_name query string false "Section"
// @Param branch query string false "Branch"
// @Param format query string false "csv, pdf or xlsx"
// @Success 200 {file} file
// @Router /enrollments/export [get]
func (h *EnrollmentHandler) Export(c *gin.Context) {
	filter, ok := bindRosterFilter(c)
	if !ok {
		return
	}
	file, err := h.exporter.Export(c.Request.Context(), filter, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("roster exported",
		zap.String("file", file.Filename),
		zap.Int("rows", file.Rows),
	)
	response.File(c, file.Filename, file.ContentType, file.Data)
}

// AssignRollNumber godoc
// @Summary Assign roll number
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param year path string true "Academic year"
// @Param payload body service.AssignRollNumberRequest true "Roll number payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{studentId}/{year}/roll-number [put]
func (h *EnrollmentHandler) AssignRollNumber(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.AssignRollNumberRequest
	if !bindJSON(c, &req) {
		return
	}
	req.StudentID = c.Param("studentId")
	req.AcademicYear = c.Param("year")
	req.Actor = actor

	enrollment, err := h.enrollments.AssignRollNumber(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}
