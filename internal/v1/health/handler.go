// Package health exposes liveness/readiness probes for the admin HTTP surface.
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ListenerChecker reports whether the TCP chat listener is currently bound
// and accepting connections.
type ListenerChecker interface {
	Ready() bool
}

// Handler manages health check endpoints for the admin HTTP surface. It is
// independent of the chat wire protocol; a failure here never tears down a
// session.
type Handler struct {
	listener ListenerChecker
}

// NewHandler creates a new health check handler bound to the given listener
// status. listener may be nil before the acceptor has started, in which case
// readiness reports unavailable.
func NewHandler(listener ListenerChecker) *Handler {
	return &Handler{listener: listener}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint.
// GET /health/live
// Returns 200 if the process is alive (no dependency checks).
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles the readiness probe endpoint.
// GET /health/ready
// Returns 200 only once the chat TCP listener is bound and accepting.
func (h *Handler) Readiness(c *gin.Context) {
	checks := make(map[string]string)

	listenerStatus := "unavailable"
	if h.listener != nil && h.listener.Ready() {
		listenerStatus = "healthy"
	}
	checks["chat_listener"] = listenerStatus

	status := "ready"
	statusCode := http.StatusOK
	if listenerStatus != "healthy" {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
