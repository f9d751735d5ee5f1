package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-lifecycle-api/internal/middleware"
	appErrors "github.com/noah-isme/student-lifecycle-api/pkg/errors"
	"github.com/noah-isme/student-lifecycle-api/pkg/response"
)

// actorFromContext returns the authenticated user id. It writes a 401 and
// returns false when the route was reached without claims.
func actorFromContext(c *gin.Context) (string, bool) {
	claims := middleware.Claims(c)
	if claims == nil || claims.UserID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return claims.UserID, true
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}
