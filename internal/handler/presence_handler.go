package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"chat-realtime/internal/models"
	"chat-realtime/internal/realtime"
	"chat-realtime/internal/store"

	"github.com/gin-gonic/gin"
)

// LivePresence is the hub's view of presence.
type LivePresence interface {
	Presence(ctx context.Context, userID string) (realtime.PresenceRecord, bool, error)
}

type PresenceStore interface {
	GetUserStatus(ctx context.Context, userID string) (*store.UserPresence, error)
	ListOnline(ctx context.Context) ([]store.UserPresence, error)
}

type PresenceHandler struct {
	live   LivePresence
	stored PresenceStore
	logger *slog.Logger
}

func NewPresenceHandler(live LivePresence, stored PresenceStore, logger *slog.Logger) *PresenceHandler {
	return &PresenceHandler{live: live, stored: stored, logger: logger}
}

type presenceResponse struct {
	UserID     string                `json:"userId"`
	Status     models.PresenceStatus `json:"status"`
	LastSeenAt time.Time             `json:"lastSeenAt"`
	Source     string                `json:"source"`
}

// GetUserStatus prefers the live record and falls back to the stored copy
// for users this process has not seen.
func (h *PresenceHandler) GetUserStatus(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("userId")

	rec, ok, err := h.live.Presence(ctx, userID)
	if err != nil {
		h.logger.Warn("[HTTP] Live presence unavailable", "user", userID, "error", err)
	}
	if err == nil && ok {
		c.JSON(http.StatusOK, presenceResponse{
			UserID:     userID,
			Status:     rec.State.Status(),
			LastSeenAt: rec.LastSeenAt,
			Source:     "live",
		})
		return
	}

	stored, err := h.stored.GetUserStatus(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusOK, presenceResponse{UserID: userID, Status: models.PresenceOffline, Source: "unknown"})
		return
	}
	if err != nil {
		h.logger.Error("[HTTP] Failed to load presence", "user", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, presenceResponse{
		UserID:     userID,
		Status:     stored.Status,
		LastSeenAt: stored.LastSeenAt,
		Source:     "stored",
	})
}

func (h *PresenceHandler) ListOnline(c *gin.Context) {
	online, err := h.stored.ListOnline(c.Request.Context())
	if err != nil {
		h.logger.Error("[HTTP] Failed to list online users", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": online})
}
