package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/service/purchasing"
)

// Headers set by the authenticating gateway in front of the API.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

// StatusFor maps a workflow error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidQuantity), errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, models.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, models.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, models.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, models.ErrPersistence):
		return "persistence_failure"
	default:
		return "internal"
	}
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := StatusFor(err)
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", fields...)
	} else {
		logger.Warn("request rejected", fields...)
	}

	body := gin.H{"error": errorCode(err), "message": err.Error()}
	if status == http.StatusInternalServerError {
		body["message"] = "internal error"
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, logger *zap.Logger, err error) {
	logger.Warn("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
}

// requireActor reads the caller identity or aborts with 401.
func requireActor(c *gin.Context) (purchasing.Actor, bool) {
	id := strings.TrimSpace(c.GetHeader(HeaderUserID))
	if id == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "message": HeaderUserID + " header is required"})
		return purchasing.Actor{}, false
	}
	return purchasing.Actor{ID: id, Name: strings.TrimSpace(c.GetHeader(HeaderUserName))}, true
}
