package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
	"github.com/noah-isme/student-lifecycle-api/internal/service"
	"github.com/noah-isme/student-lifecycle-api/pkg/response"
)

type lifecycleEngine interface {
	Deactivate(ctx context.Context, req service.DeactivateRequest) (*models.LifecycleEvent, error)
	Reactivate(ctx context.Context, req service.ReactivateRequest) (*models.LifecycleEvent, error)
	MarkTransferred(ctx context.Context, req service.TransferRequest) (*models.LifecycleEvent, error)
	NullifyFees(ctx context.Context, req service.NullifyFeesRequest) ([]models.FeeInstallment, error)
	PromoteOne(ctx context.Context, req service.PromoteRequest) (*models.Enrollment, error)
	PromoteBulk(ctx context.Context, req service.BulkPromoteRequest) (*models.BulkPromotionResult, error)
}

// LifecycleHandler exposes student status transitions and promotions.
type LifecycleHandler struct {
	engine lifecycleEngine
}

// NewLifecycleHandler constructs LifecycleHandler.
func NewLifecycleHandler(engine lifecycleEngine) *LifecycleHandler {
	return &LifecycleHandler{engine: engine}
}

// Deactivate godoc
// @Summary Deactivate student
// @Description Moves an active student to INACTIVE. Rejected with FEE_BLOCKED while current-year dues are outstanding.
// @Tags Lifecycle
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.DeactivateRequest true "Deactivation payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id}/deactivate [post]
func (h *LifecycleHandler) Deactivate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.DeactivateRequest
	if !bindJSON(c, &req) {
		return
	}
	req.StudentID = c.Param("id")
	req.Actor = actor

	event, err := h.engine.Deactivate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Reactivate godoc
// @Summary Reactivate student
// @Tags Lifecycle
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.ReactivateRequest false "Reactivation payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id}/reactivate [post]
func (h *LifecycleHandler) Reactivate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.ReactivateRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	req.StudentID = c.Param("id")
	req.Actor = actor

	event, err := h.engine.Reactivate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Transfer godoc
// @Summary Mark student transferred
// @Tags Lifecycle
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.TransferRequest true "Transfer payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id}/transfer [post]
func (h *LifecycleHandler) Transfer(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.TransferRequest
	if !bindJSON(c, &req) {
		return
	}
	req.StudentID = c.Param("id")
	req.Actor = actor

	event, err := h.engine.MarkTransferred(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// NullifyFees godoc
// @Summary Nullify unpaid fee installments
// @Description Zeroes every installment owed in full with nothing paid. Partially paid installments are untouched.
// @Tags Lifecycle
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/fees/nullify [post]
func (h *LifecycleHandler) NullifyFees(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	adjusted, err := h.engine.NullifyFees(c.Request.Context(), service.NullifyFeesRequest{StudentID: c.Param("id"), Actor: actor})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, adjusted, nil, map[string]interface{}{"adjusted": len(adjusted)})
}

// Promote godoc
// @Summary Promote one student
// @Tags Lifecycle
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.PromoteRequest true "Promotion payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /students/{id}/promote [post]
func (h *LifecycleHandler) Promote(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.PromoteRequest
	if !bindJSON(c, &req) {
		return
	}
	req.StudentID = c.Param("id")
	req.Actor = actor

	enrollment, err := h.engine.PromoteOne(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// PromoteBulk godoc
// @Summary Promote many students
// @Description Each student is promoted independently; the response lists successes and per-student failures in input order.
// @Tags Lifecycle
// @Accept json
// @Produce json
// @Param payload body service.BulkPromoteRequest true "Bulk promotion payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/promote-bulk [post]
func (h *LifecycleHandler) PromoteBulk(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.BulkPromoteRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Actor = actor

	result, err := h.engine.PromoteBulk(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, map[string]interface{}{
		"succeeded": len(result.Succeeded),
		"failed":    len(result.Failed),
	})
}
