package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler answers liveness checks.
type HealthHandler struct {
	startedAt time.Time
}

// NewHealthHandler creates a health handler anchored at the current time.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startedAt: time.Now().UTC()}
}

// Health reports service liveness and uptime.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"service":        "unisaved",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
