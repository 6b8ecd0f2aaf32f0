package panel

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/docdesk/internal/domain"
	"github.com/ashureev/docdesk/internal/gateway"
	"github.com/ashureev/docdesk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshReplacesListInOrder(t *testing.T) {
	gw := testutil.NewFakeGateway("b.pdf", "a.pdf", "b.pdf")
	p := NewDocumentListPanel(gw)

	require.NoError(t, p.Refresh(t.Context()))
	assert.Equal(t, []string{"b.pdf", "a.pdf", "b.pdf"}, p.State().Documents)
	assert.True(t, p.State().Loaded)

	gw.SetDocuments("c.pdf")
	require.NoError(t, p.Refresh(t.Context()))
	assert.Equal(t, []string{"c.pdf"}, p.State().Documents)
}

func TestRefreshIsIdempotent(t *testing.T) {
	gw := testutil.NewFakeGateway("a.pdf", "b.pdf")
	p := NewDocumentListPanel(gw)

	require.NoError(t, p.Refresh(t.Context()))
	first := p.State()
	require.NoError(t, p.Refresh(t.Context()))
	assert.Equal(t, first, p.State())
}

func TestRefreshFailureKeepsList(t *testing.T) {
	gw := testutil.NewFakeGateway("a.pdf")
	p := NewDocumentListPanel(gw)
	require.NoError(t, p.Refresh(t.Context()))

	gw.ListFn = func(ctx context.Context) ([]string, error) {
		return nil, &gateway.GatewayError{Op: gateway.OpList, Status: http.StatusServiceUnavailable}
	}
	require.Error(t, p.Refresh(t.Context()))

	st := p.State()
	assert.Equal(t, MsgListFailed, st.Error)
	assert.Equal(t, []string{"a.pdf"}, st.Documents)

	gw.ListFn = nil
	require.NoError(t, p.Refresh(t.Context()))
	assert.Empty(t, p.State().Error, "a successful fetch clears the error")
}

func TestRefreshTransportMessage(t *testing.T) {
	gw := testutil.NewFakeGateway()
	gw.ListFn = func(ctx context.Context) ([]string, error) {
		return nil, &gateway.TransportError{Op: gateway.OpList, Err: errors.New("dial tcp: connection refused")}
	}
	p := NewDocumentListPanel(gw)

	require.Error(t, p.Refresh(t.Context()))
	assert.Equal(t, MsgListError, p.State().Error)
	assert.False(t, p.State().Loaded)
}

func TestOverlappingRefreshesApplyInIssueOrder(t *testing.T) {
	gw := testutil.NewFakeGateway()
	slowEntered := make(chan struct{})
	releaseSlow := make(chan struct{})
	var calls int
	var mu sync.Mutex
	gw.ListFn = func(ctx context.Context) ([]string, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(slowEntered)
			<-releaseSlow
			return []string{"old.pdf"}, nil
		}
		return []string{"new.pdf"}, nil
	}
	var events []Event
	var evMu sync.Mutex
	p := NewDocumentListPanel(gw, WithRecorder(func(ev Event) {
		evMu.Lock()
		events = append(events, ev)
		evMu.Unlock()
	}))

	done := make(chan error, 1)
	go func() { done <- p.Refresh(context.Background()) }()
	<-slowEntered

	require.NoError(t, p.Refresh(t.Context()))
	close(releaseSlow)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"new.pdf"}, p.State().Documents)

	evMu.Lock()
	defer evMu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, domain.OutcomeSuccess, events[0].Outcome)
	assert.Equal(t, OperationRefresh, events[1].Operation)
	assert.Equal(t, domain.OutcomeSuperseded, events[1].Outcome)
}

func TestDeleteFailureKeepsItem(t *testing.T) {
	gw := testutil.NewFakeGateway("spec.pdf", "other.pdf")
	gw.DeleteFn = func(ctx context.Context, name string) error {
		return &gateway.GatewayError{Op: gateway.OpDelete, Status: http.StatusInternalServerError, Detail: "file locked"}
	}
	p := NewDocumentListPanel(gw)
	require.NoError(t, p.Refresh(t.Context()))
	lists := gw.ListCalls()

	err := p.Delete(t.Context(), "spec.pdf")
	var gwErr *gateway.GatewayError
	require.ErrorAs(t, err, &gwErr)

	st := p.State()
	assert.Equal(t, "file locked", st.Error)
	assert.Contains(t, st.Documents, "spec.pdf")
	assert.Empty(t, st.Deleting)
	assert.Equal(t, lists, gw.ListCalls(), "a failed delete does not refetch")
}

func TestDeleteFailureFallbackMessages(t *testing.T) {
	gw := testutil.NewFakeGateway("a.pdf")
	p := NewDocumentListPanel(gw)

	gw.DeleteFn = func(ctx context.Context, name string) error {
		return &gateway.GatewayError{Op: gateway.OpDelete, Status: http.StatusNotFound}
	}
	require.Error(t, p.Delete(t.Context(), "a.pdf"))
	assert.Equal(t, MsgDeleteFailed, p.State().Error)

	gw.DeleteFn = func(ctx context.Context, name string) error {
		return &gateway.TransportError{Op: gateway.OpDelete, Err: errors.New("EOF")}
	}
	require.Error(t, p.Delete(t.Context(), "a.pdf"))
	assert.Equal(t, MsgDeleteError, p.State().Error)
}

func TestDeleteSuccessRefetches(t *testing.T) {
	gw := testutil.NewFakeGateway("a.pdf", "b.pdf")
	p := NewDocumentListPanel(gw)
	require.NoError(t, p.Refresh(t.Context()))

	require.NoError(t, p.Delete(t.Context(), "a.pdf"))

	assert.Equal(t, 2, gw.ListCalls())
	assert.Equal(t, []string{"b.pdf"}, p.State().Documents)
	assert.Equal(t, []string{"a.pdf"}, gw.Deletes())
}

func TestDeleteSameNameIsBusy(t *testing.T) {
	gw := testutil.NewFakeGateway("a.pdf")
	entered := make(chan struct{})
	release := make(chan struct{})
	gw.DeleteFn = func(ctx context.Context, name string) error {
		close(entered)
		<-release
		return nil
	}
	p := NewDocumentListPanel(gw)

	done := make(chan error, 1)
	go func() { done <- p.Delete(context.Background(), "a.pdf") }()
	<-entered

	assert.True(t, p.State().IsDeleting("a.pdf"))
	assert.ErrorIs(t, p.Delete(t.Context(), "a.pdf"), ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, p.State().IsDeleting("a.pdf"))
	assert.Len(t, gw.Deletes(), 1)
}

func TestConcurrentDeletesAreIndependent(t *testing.T) {
	gw := testutil.NewFakeGateway("a.pdf", "b.pdf")
	var wg sync.WaitGroup
	wg.Add(2)
	release := make(chan struct{})
	gw.DeleteFn = func(ctx context.Context, name string) error {
		wg.Done()
		<-release
		if name == "b.pdf" {
			return &gateway.GatewayError{Op: gateway.OpDelete, Status: http.StatusConflict, Detail: "b.pdf is in use"}
		}
		gw.SetDocuments("b.pdf")
		return nil
	}
	p := NewDocumentListPanel(gw)
	require.NoError(t, p.Refresh(t.Context()))

	results := make(map[string]chan error)
	for _, name := range []string{"a.pdf", "b.pdf"} {
		ch := make(chan error, 1)
		results[name] = ch
		go func() { ch <- p.Delete(context.Background(), name) }()
	}
	wg.Wait()

	assert.Equal(t, []string{"a.pdf", "b.pdf"}, p.State().Deleting)

	close(release)
	require.NoError(t, <-results["a.pdf"])
	var gwErr *gateway.GatewayError
	require.ErrorAs(t, <-results["b.pdf"], &gwErr)
	assert.Equal(t, "b.pdf is in use", gwErr.Detail)

	st := p.State()
	assert.Empty(t, st.Deleting)
	assert.Equal(t, []string{"b.pdf"}, st.Documents)
	assert.ElementsMatch(t, []string{"a.pdf", "b.pdf"}, gw.Deletes())
}

func TestWatchRefreshesOnMountAndPerSignalChange(t *testing.T) {
	gw := testutil.NewFakeGateway("a.pdf")
	sig := NewRefreshSignal()
	refreshed := make(chan struct{}, 8)
	p := NewDocumentListPanel(gw, WithOnChange(func() { refreshed <- struct{}{} }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Watch(ctx, sig)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitFor(t, refreshed)
	assert.Equal(t, 1, gw.ListCalls())

	gw.SetDocuments("a.pdf", "report.pdf")
	sig.Bump()
	waitFor(t, refreshed)
	assert.Equal(t, 2, gw.ListCalls())
	assert.Equal(t, []string{"a.pdf", "report.pdf"}, p.State().Documents)

	select {
	case <-refreshed:
		t.Fatal("unexpected extra refresh")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 2, gw.ListCalls())
}

func TestDocumentsUnmountedDropsResult(t *testing.T) {
	gw := testutil.NewFakeGateway("a.pdf")
	p := NewDocumentListPanel(gw)
	p.Unmount()

	require.NoError(t, p.Refresh(t.Context()))
	assert.Empty(t, p.State().Documents)
	assert.False(t, p.State().Loaded)
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}
