package notifications

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/firmboard/backend/internal/auth"
	"github.com/firmboard/backend/pkg/response"
)

// Handler handles notification HTTP endpoints. All routes operate on the
// authenticated user's own feed.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /notifications.
func (h *Handler) List(c *gin.Context) {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	list, err := h.repo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list notifications")
		return
	}
	response.OK(c, list)
}

// MarkRead handles POST /notifications/:notification_id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	id, err := uuid.Parse(c.Param("notification_id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	updated, err := h.repo.MarkRead(c.Request.Context(), userID, id)
	if err != nil {
		response.Internal(c, "failed to mark notification read")
		return
	}
	if !updated {
		response.NotFound(c, "notification not found")
		return
	}
	response.OK(c, gin.H{"read": true})
}

// MarkAllRead handles POST /notifications/read-all.
func (h *Handler) MarkAllRead(c *gin.Context) {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	n, err := h.repo.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to mark notifications read")
		return
	}
	response.OK(c, gin.H{"updated": n})
}
