package identity

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ashureev/docdesk/internal/testutil"
	"github.com/ashureev/docdesk/internal/workspace"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type fakeResolver struct {
	mu      sync.Mutex
	spaces  map[string]*workspace.Workspace
	touched []string
}

func (f *fakeResolver) Get(id string) (*workspace.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.spaces[id]
	if !ok {
		return nil, workspace.ErrNotFound
	}
	return ws, nil
}

func (f *fakeResolver) Touch(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, id)
}

func newRouter(res Resolver) http.Handler {
	r := chi.NewRouter()
	r.With(Middleware(res)).Get("/w/{id}", func(w http.ResponseWriter, r *http.Request) {
		ws := WorkspaceFromContext(r.Context())
		_, _ = w.Write([]byte(ws.ID()))
	})
	return r
}

func TestMiddlewareResolvesWorkspace(t *testing.T) {
	id := uuid.NewString()
	ws := workspace.New(id, testutil.NewFakeGateway(), workspace.Options{})
	res := &fakeResolver{spaces: map[string]*workspace.Workspace{id: ws}}

	w := httptest.NewRecorder()
	newRouter(res).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/w/"+id, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, w.Body.String())
	assert.Equal(t, []string{id}, res.touched)
}

func TestMiddlewareRejectsUnknownAndMalformed(t *testing.T) {
	res := &fakeResolver{spaces: map[string]*workspace.Workspace{}}

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "malformed", path: "/w/not-a-uuid", want: http.StatusBadRequest},
		{name: "unknown", path: "/w/" + uuid.NewString(), want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			newRouter(res).ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
	assert.Empty(t, res.touched)
}

func TestWorkspaceFromContextEmpty(t *testing.T) {
	assert.Nil(t, WorkspaceFromContext(t.Context()))
}

func TestIPFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:5123"
	assert.Equal(t, "192.0.2.10", IPFromRequest(r))

	r.RemoteAddr = "bare"
	assert.Equal(t, "bare", IPFromRequest(r))
}
