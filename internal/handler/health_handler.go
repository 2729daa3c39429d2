package handler

import (
	"context"
	"net/http"
	"time"

	"chat-realtime/internal/realtime"

	"github.com/gin-gonic/gin"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

type HubStats interface {
	Stats(ctx context.Context) (realtime.Stats, error)
}

type HealthHandler struct {
	hub    HubStats
	checks map[string]Check
}

func NewHealthHandler(hub HubStats, checks map[string]Check) *HealthHandler {
	return &HealthHandler{hub: hub, checks: checks}
}

// Health reports liveness of the hub loop.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	stats, err := h.hub.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": stats.Connections, "rooms": stats.Rooms})
}

// Ready additionally probes every dependency.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	c.JSON(status, gin.H{"checks": results})
}
