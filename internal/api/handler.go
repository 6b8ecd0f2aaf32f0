// Package api provides HTTP handlers for the docdesk API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/docdesk/internal/config"
	"github.com/ashureev/docdesk/internal/gateway"
	"github.com/ashureev/docdesk/internal/panel"
	"github.com/ashureev/docdesk/internal/workspace"
)

// Error codes returned next to a workspace view.
const (
	codeValidation = "validation_error"
	codeBusy       = "busy"
	codeGateway    = "gateway_error"
	codeTransport  = "transport_error"
	codeClosed     = "workspace_closed"
	codeInternal   = "internal_error"
)

// Handler provides common handler utilities.
type Handler struct {
	mgr *workspace.Manager
	cfg *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(mgr *workspace.Manager, cfg *config.Config) *Handler {
	return &Handler{
		mgr: mgr,
		cfg: cfg,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// viewResponse is the body of every workspace operation.
type viewResponse struct {
	View    workspace.View `json:"view"`
	Error   string         `json:"error,omitempty"`
	Message string         `json:"message,omitempty"`
}

// respondView writes the current view of ws along with the outcome of err.
func respondView(w http.ResponseWriter, ws *workspace.Workspace, err error) {
	status, code, message := classify(err)
	JSON(w, status, viewResponse{
		View:    ws.Snapshot(),
		Error:   code,
		Message: message,
	})
}

// classify maps an operation error to a status code, an error code and an
// optional message. User-facing gateway messages live in the view.
func classify(err error) (int, string, string) {
	if err == nil {
		return http.StatusOK, "", ""
	}

	var vErr *panel.ValidationError
	var gwErr *gateway.GatewayError
	var tErr *gateway.TransportError
	switch {
	case errors.As(err, &vErr):
		if vErr.Message == "" {
			return http.StatusUnprocessableEntity, codeValidation, vErr.Reason
		}
		return http.StatusUnprocessableEntity, codeValidation, vErr.Message
	case errors.Is(err, panel.ErrBusy):
		return http.StatusConflict, codeBusy, err.Error()
	case errors.As(err, &gwErr):
		return http.StatusBadGateway, codeGateway, ""
	case errors.As(err, &tErr):
		return http.StatusBadGateway, codeTransport, ""
	case errors.Is(err, workspace.ErrClosed):
		return http.StatusGone, codeClosed, err.Error()
	default:
		return http.StatusInternalServerError, codeInternal, ""
	}
}
