package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/domain/models"
)

// Inbox is the per-user notification store.
type Inbox interface {
	List(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

// NotificationHandler serves the caller's inbox.
type NotificationHandler struct {
	inbox  Inbox
	logger *zap.Logger
}

// NewNotificationHandler constructs the HTTP handler adapter.
func NewNotificationHandler(inbox Inbox, logger *zap.Logger) *NotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHandler{inbox: inbox, logger: logger}
}

// List returns the caller's notifications; ?unread=true keeps unread ones only.
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	items, err := h.inbox.List(c.Request.Context(), actor.ID, c.Query("unread") == "true")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// MarkRead flags one of the caller's notifications as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	if err := h.inbox.MarkRead(c.Request.Context(), actor.ID, c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
