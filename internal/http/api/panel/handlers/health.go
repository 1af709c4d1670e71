package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keyforge-io/keyforge/internal/store"
)

// HealthHandler reports service and store health.
type HealthHandler struct {
	store store.Store
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(st store.Store) *HealthHandler {
	return &HealthHandler{store: st}
}

// Healthz answers liveness probes; a failing store ping degrades the status.
func (h *HealthHandler) Healthz(c *gin.Context) {
	if h.store != nil {
		if errPing := h.store.Ping(c.Request.Context()); errPing != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
