package handlers

import (
	"context"
	"net/http"
	"time"

	"forecast-dashboard/pkg/forecastapi"
	"forecast-dashboard/pkg/services"

	"github.com/gin-gonic/gin"
)

// BackendChecker checks the forecast service.
type BackendChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler answers load balancer and operator health checks.
type HealthHandler struct {
	backend  BackendChecker
	registry *services.ViewRegistry
	timeout  time.Duration
}

func NewHealthHandler(backend BackendChecker, registry *services.ViewRegistry) *HealthHandler {
	return &HealthHandler{backend: backend, registry: registry, timeout: 3 * time.Second}
}

// HealthCheck reports liveness only; it never calls the backend.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status checks the forecast service. The dashboard itself stays up when the
// backend is down, so a failed check reports "degraded" with status 200.
func (h *HealthHandler) Status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	forecasts, assistants := h.registry.Counts()
	body := gin.H{
		"status":  "ok",
		"backend": "ok",
		"views": gin.H{
			"forecast":  forecasts,
			"assistant": assistants,
		},
	}
	if err := h.backend.Health(ctx); err != nil {
		body["status"] = "degraded"
		body["backend"] = forecastapi.ErrorClass(err)
		body["error"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}
