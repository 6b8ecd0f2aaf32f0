package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/docdesk/internal/identity"
	"github.com/ashureev/docdesk/internal/workspace"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

const streamWriteTimeout = 5 * time.Second

// StreamHandler pushes workspace views to the browser over a WebSocket.
type StreamHandler struct {
	mgr           *workspace.Manager
	allowedOrigin string
	isDev         bool
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(mgr *workspace.Manager, allowedOrigin string, isDev bool) *StreamHandler {
	return &StreamHandler{
		mgr:           mgr,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// RegisterRoutes registers the stream endpoint.
func (h *StreamHandler) RegisterRoutes(r chi.Router) {
	r.With(identity.Middleware(h.mgr)).Get("/ws/workspaces/{id}", h.ServeHTTP)
}

// streamMessage is the frame format in both directions.
type streamMessage struct {
	Type string          `json:"type"`
	View *workspace.View `json:"view,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws := identity.WorkspaceFromContext(r.Context())
	if ws == nil {
		http.Error(w, "workspace not found", http.StatusNotFound)
		return
	}
	workspaceID := ws.ID()
	slog.Info("Stream connection request", "workspace_id", workspaceID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "workspace_id", workspaceID)
		return
	}
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "workspace_id", workspaceID)
		}
	}()

	notices, unsubscribe := ws.Subscribe()
	defer func() {
		// The page is gone once its last stream closes.
		if unsubscribe() == 0 && !ws.Closed() {
			closeCtx, cancel := context.WithTimeout(context.Background(), streamWriteTimeout)
			defer cancel()
			if err := h.mgr.Close(closeCtx, workspaceID); err != nil {
				slog.Debug("Failed to close workspace after stream end", "error", err, "workspace_id", workspaceID)
			}
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := h.writeJSON(ctx, conn, streamMessage{Type: workspace.NoticeState, View: viewPtr(ws)}); err != nil {
		slog.Debug("Failed to send initial view", "error", err, "workspace_id", workspaceID)
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)

	// Input loop: browser -> server.
	go func() {
		defer wg.Done()
		defer cancel()
		h.inputLoop(ctx, conn, workspaceID)
	}()

	// Output loop: workspace -> browser.
	go func() {
		defer wg.Done()
		defer cancel()
		h.outputLoop(ctx, conn, ws, notices)
	}()

	wg.Wait()
	slog.Info("Stream ended", "workspace_id", workspaceID)
}

func (h *StreamHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *StreamHandler) inputLoop(ctx context.Context, conn *websocket.Conn, workspaceID string) {
	for {
		_, message, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "workspace_id", workspaceID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "workspace_id", workspaceID)
			}
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Debug("Ignoring malformed stream message", "error", err, "workspace_id", workspaceID)
			continue
		}

		switch msg.Type {
		case "ping":
			if err := h.writeJSON(ctx, conn, streamMessage{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		case "close":
			return
		}

		h.mgr.Touch(workspaceID)
	}
}

func (h *StreamHandler) outputLoop(ctx context.Context, conn *websocket.Conn, ws *workspace.Workspace, notices <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case kind, ok := <-notices:
			if !ok {
				// Workspace unmounted elsewhere.
				_ = conn.Close(websocket.StatusGoingAway, "workspace closed")
				return
			}
			msg := streamMessage{Type: kind}
			if kind == workspace.NoticeState {
				msg.View = viewPtr(ws)
			}
			if err := h.writeJSON(ctx, conn, msg); err != nil {
				if ctx.Err() == nil {
					slog.Debug("WebSocket write error", "error", err, "workspace_id", ws.ID())
				}
				return
			}
		}
	}
}

func (h *StreamHandler) writeJSON(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func viewPtr(ws *workspace.Workspace) *workspace.View {
	v := ws.Snapshot()
	return &v
}
