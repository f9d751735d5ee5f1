package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-lifecycle-api/internal/middleware"
	"github.com/noah-isme/student-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/student-lifecycle-api/pkg/errors"
	"github.com/noah-isme/student-lifecycle-api/pkg/response"
)

type summaryProvider interface {
	Get(ctx context.Context, academicYear, branch string) (*models.StudentSummary, bool, error)
}

// SummaryHandler serves class and section head counts.
type SummaryHandler struct {
	summaries summaryProvider
}

// NewSummaryHandler constructs SummaryHandler.
func NewSummaryHandler(summaries summaryProvider) *SummaryHandler {
	return &SummaryHandler{summaries: summaries}
}

// Get godoc
// @Summary Student summary
// @Description Totals by status, class and section for one academic year.
// @Tags Students
// @Produce json
// @Param academic_year query string true "Academic year"
// @Param branch query string false "Branch"
// @Success 200 {object} response.Envelope
// @Router /students/summary [get]
func (h *SummaryHandler) Get(c *gin.Context) {
	year := c.Query("academic_year")
	if year == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "academic_year is required"))
		return
	}
	summary, hit, err := h.summaries.Get(c.Request.Context(), year, c.Query("branch"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}
