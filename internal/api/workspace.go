package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ashureev/docdesk/internal/identity"
	"github.com/ashureev/docdesk/internal/panel"
	"github.com/ashureev/docdesk/internal/workspace"
	"github.com/go-chi/chi/v5"
)

// UploadField is the multipart field the browser sends the file in.
const UploadField = "file"

const (
	multipartMemory      = 8 << 20
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// WorkspaceHandler handles workspace and panel endpoints.
type WorkspaceHandler struct {
	*Handler
}

// NewWorkspaceHandler creates a new workspace handler.
func NewWorkspaceHandler(base *Handler) *WorkspaceHandler {
	return &WorkspaceHandler{Handler: base}
}

// RegisterRoutes registers workspace routes.
func (h *WorkspaceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Post("/workspaces", h.Create)

		r.Route("/workspaces/{id}", func(r chi.Router) {
			r.Use(identity.Middleware(h.mgr))
			r.Get("/", h.View)
			r.Delete("/", h.Close)
			r.Post("/upload", h.Upload)
			r.Post("/documents/refresh", h.Refresh)
			r.Delete("/documents/{name}", h.DeleteDocument)
			r.Put("/chat/draft", h.SetDraft)
			r.Post("/chat", h.Chat)
			r.Get("/activity", h.Activity)
		})
	})
}

// GetConfig returns the settings the frontend displays.
func (h *WorkspaceHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"gateway_url":       h.cfg.GatewayURL,
		"max_upload_bytes":  h.cfg.Upload.MaxBytes,
		"scroll_settle_ms":  h.cfg.Workspace.ScrollSettleDelay.Milliseconds(),
		"activity_enabled":  h.cfg.Activity.Enabled,
		"workspace_ttl_sec": int64(h.cfg.Workspace.TTL.Seconds()),
	})
}

// Create opens a workspace for a new page.
func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	ws, err := h.mgr.Create(r.Context(), identity.IPFromRequest(r))
	if err != nil {
		slog.Error("Failed to create workspace", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create workspace")
		return
	}
	JSON(w, http.StatusCreated, viewResponse{View: ws.Snapshot()})
}

// View returns the current view of a workspace.
func (h *WorkspaceHandler) View(w http.ResponseWriter, r *http.Request) {
	respondView(w, identity.WorkspaceFromContext(r.Context()), nil)
}

// Close unmounts a workspace.
func (h *WorkspaceHandler) Close(w http.ResponseWriter, r *http.Request) {
	ws := identity.WorkspaceFromContext(r.Context())
	if err := h.mgr.Close(r.Context(), ws.ID()); err != nil {
		if errors.Is(err, workspace.ErrNotFound) {
			Error(w, http.StatusNotFound, "workspace not found")
			return
		}
		slog.Error("Failed to close workspace", "error", err, "workspace_id", ws.ID())
		Error(w, http.StatusInternalServerError, "failed to close workspace")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// Upload selects the posted file and submits it. A request without a file
// part submits an empty selection, which fails validation.
func (h *WorkspaceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ws := identity.WorkspaceFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxBytes)

	file, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		slog.Warn("Failed to read upload", "error", err, "workspace_id", ws.ID())
		Error(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	ws.SelectFile(file)
	respondView(w, ws, ws.SubmitUpload())
}

func readUpload(r *http.Request) (*panel.File, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, err
	}
	part, header, err := r.FormFile(UploadField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := part.Close(); closeErr != nil {
			slog.Debug("Failed to close upload part", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(part)
	if err != nil {
		return nil, err
	}
	return &panel.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// Refresh refetches the document list.
func (h *WorkspaceHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ws := identity.WorkspaceFromContext(r.Context())
	respondView(w, ws, ws.RefreshDocuments())
}

// DeleteDocument deletes one document by name.
func (h *WorkspaceHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	ws := identity.WorkspaceFromContext(r.Context())

	name := chi.URLParam(r, "name")
	// chi matches on the raw path when the request escapes reserved
	// characters, so the parameter is still escaped in that case.
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(name)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid document name")
			return
		}
		name = unescaped
	}
	if name == "" {
		Error(w, http.StatusBadRequest, "document name required")
		return
	}

	respondView(w, ws, ws.DeleteDocument(name))
}

type draftRequest struct {
	Text string `json:"text"`
}

// SetDraft stores the chat input text.
func (h *WorkspaceHandler) SetDraft(w http.ResponseWriter, r *http.Request) {
	ws := identity.WorkspaceFromContext(r.Context())

	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ws.SetDraft(req.Text)
	respondView(w, ws, nil)
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat sends a question and returns once the answer or failure is in.
func (h *WorkspaceHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ws := identity.WorkspaceFromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	respondView(w, ws, ws.SendChat(req.Message))
}

// Activity returns the operation journal of a workspace.
func (h *WorkspaceHandler) Activity(w http.ResponseWriter, r *http.Request) {
	ws := identity.WorkspaceFromContext(r.Context())

	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxActivityLimit)
	}

	entries, err := h.mgr.Activity(r.Context(), ws.ID(), limit)
	if err != nil {
		slog.Error("Failed to list activity", "error", err, "workspace_id", ws.ID())
		Error(w, http.StatusInternalServerError, "failed to list activity")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"workspace_id": ws.ID(),
		"entries":      entries,
	})
}
