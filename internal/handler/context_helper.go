package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/staff-card-api/internal/middleware"
	"github.com/noah-isme/staff-card-api/internal/models"
	appErrors "github.com/noah-isme/staff-card-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func idParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid id")
	}
	return id, nil
}
