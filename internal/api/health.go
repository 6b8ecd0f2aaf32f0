package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/docdesk/internal/store"
	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// WorkspaceCounter reports how many workspaces are mounted.
type WorkspaceCounter interface {
	Len() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo       store.Repository
	workspaces WorkspaceCounter
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository, workspaces WorkspaceCounter) *HealthHandler {
	return &HealthHandler{repo: repo, workspaces: workspaces}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}
	if h.workspaces != nil {
		status["workspaces"] = h.workspaces.Len()
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
