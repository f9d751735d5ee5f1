package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
	"github.com/noah-isme/student-lifecycle-api/pkg/response"
)

type classLister interface {
	List(ctx context.Context) ([]models.Class, error)
}

// ClassHandler exposes the class catalog.
type ClassHandler struct {
	service classLister
}

// NewClassHandler constructs a class handler.
func NewClassHandler(svc classLister) *ClassHandler {
	return &ClassHandler{service: svc}
}

// List godoc
// @Summary List classes
// @Description Classes that admissions and promotions may target.
// @Tags Classes
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	classes, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil, map[string]interface{}{"total": len(classes)})
}
