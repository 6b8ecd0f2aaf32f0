// Package identity resolves the workspace a request addresses and carries it
// through the request context.
package identity

import (
	"context"
	"net"
	"net/http"

	"github.com/ashureev/docdesk/internal/workspace"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// WorkspaceIDParam is the chi URL parameter holding the workspace ID.
const WorkspaceIDParam = "id"

type contextKey int

const (
	workspaceKey contextKey = iota
)

// Resolver looks up live workspaces.
type Resolver interface {
	Get(id string) (*workspace.Workspace, error)
	Touch(id string)
}

// WorkspaceFromContext extracts the workspace from the request context.
func WorkspaceFromContext(ctx context.Context) *workspace.Workspace {
	if v, ok := ctx.Value(workspaceKey).(*workspace.Workspace); ok {
		return v
	}
	return nil
}

// WithWorkspace returns a copy of ctx carrying ws.
func WithWorkspace(ctx context.Context, ws *workspace.Workspace) context.Context {
	return context.WithValue(ctx, workspaceKey, ws)
}

func isValidWorkspaceID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Middleware resolves the {id} URL parameter to a live workspace, records
// the visit and injects the workspace into the request context.
func Middleware(res Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, WorkspaceIDParam)
			if !isValidWorkspaceID(id) {
				http.Error(w, `{"error":"invalid workspace id"}`, http.StatusBadRequest)
				return
			}

			ws, err := res.Get(id)
			if err != nil || ws == nil {
				http.Error(w, `{"error":"workspace not found"}`, http.StatusNotFound)
				return
			}

			res.Touch(id)
			next.ServeHTTP(w, r.WithContext(WithWorkspace(r.Context(), ws)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
