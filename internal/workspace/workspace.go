// Package workspace composes the upload, document list and chat panels of
// one browser page and tracks the pages a server is hosting.
package workspace

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ashureev/docdesk/internal/domain"
	"github.com/ashureev/docdesk/internal/panel"
)

// Notice types pushed to stream subscribers.
const (
	NoticeState  = "state"
	NoticeScroll = "scroll"
)

const subscriberBuffer = 16

// ErrClosed is returned by operations started after Unmount.
var ErrClosed = errors.New("workspace closed")

// Gateway is everything the panels of one workspace need from the backend.
type Gateway interface {
	panel.Ingester
	panel.DocumentStore
	panel.Querier
}

// View is the JSON snapshot of all panels in a workspace.
type View struct {
	ID        string               `json:"id"`
	Upload    panel.UploadState    `json:"upload"`
	Documents panel.DocumentsState `json:"documents"`
	Chat      panel.ChatState      `json:"chat"`
}

// Options configures a Workspace.
type Options struct {
	ScrollDelay time.Duration
	// Record receives one entry per finished panel operation.
	Record func(domain.ActivityEntry)
}

// Workspace owns the refresh signal and the three panels of one page. The
// upload panel bumps the signal after every successful ingest and the
// document list refetches on each observed bump.
type Workspace struct {
	id     string
	signal *panel.RefreshSignal

	upload    *panel.UploadPanel
	documents *panel.DocumentListPanel
	chat      *panel.ChatPanel

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Panel operations in flight. Add only under mu while not closed.
	ops sync.WaitGroup

	mu      sync.Mutex
	subs    map[uint64]chan string
	nextSub uint64
	mounted bool
	closed  bool
}

// New creates an unmounted workspace.
func New(id string, gw Gateway, opts Options) *Workspace {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Workspace{
		id:     id,
		signal: panel.NewRefreshSignal(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make(map[uint64]chan string),
	}

	common := []panel.Option{
		panel.WithOnChange(func() { w.publish(NoticeState) }),
	}
	if opts.Record != nil {
		record := opts.Record
		common = append(common, panel.WithRecorder(func(ev panel.Event) {
			record(domain.ActivityEntry{
				WorkspaceID: id,
				Panel:       ev.Panel,
				Operation:   ev.Operation,
				Target:      ev.Target,
				Outcome:     ev.Outcome,
				Message:     ev.Message,
				Duration:    ev.Duration,
				CreatedAt:   time.Now(),
			})
		}))
	}

	chatOpts := append([]panel.Option{
		panel.WithOnScroll(func() { w.publish(NoticeScroll) }),
	}, common...)
	if opts.ScrollDelay > 0 {
		chatOpts = append(chatOpts, panel.WithScrollDelay(opts.ScrollDelay))
	}

	w.upload = panel.NewUploadPanel(gw, func() { w.signal.Bump() }, common...)
	w.documents = panel.NewDocumentListPanel(gw, common...)
	w.chat = panel.NewChatPanel(gw, chatOpts...)
	return w
}

// ID returns the workspace identifier.
func (w *Workspace) ID() string {
	return w.id
}

// Mount starts the document list watcher, which performs the initial fetch.
// Mounting twice is a no-op.
func (w *Workspace) Mount() {
	w.mu.Lock()
	if w.mounted || w.closed {
		w.mu.Unlock()
		return
	}
	w.mounted = true
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		w.documents.Watch(w.ctx, w.signal)
	}()
}

// Unmount detaches every panel, stops the watcher and closes all
// subscriptions. Operations still in flight are cancelled and their results
// dropped; Unmount returns once they have unwound.
func (w *Workspace) Unmount() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	mounted := w.mounted
	for id, ch := range w.subs {
		close(ch)
		delete(w.subs, id)
	}
	w.mu.Unlock()

	w.upload.Unmount()
	w.documents.Unmount()
	w.chat.Unmount()
	w.cancel()
	w.ops.Wait()
	if mounted {
		<-w.done
	}
}

// Closed reports whether Unmount has run.
func (w *Workspace) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Snapshot returns the current view of all panels.
func (w *Workspace) Snapshot() View {
	return View{
		ID:        w.id,
		Upload:    w.upload.State(),
		Documents: w.documents.State(),
		Chat:      w.chat.State(),
	}
}

// SelectFile sets the file for the next upload. A nil file clears it.
func (w *Workspace) SelectFile(f *panel.File) {
	w.upload.Select(f)
}

// SubmitUpload ingests the selected file.
func (w *Workspace) SubmitUpload() error {
	if !w.begin() {
		return ErrClosed
	}
	defer w.ops.Done()
	return w.upload.Submit(w.ctx)
}

// RefreshDocuments refetches the document list.
func (w *Workspace) RefreshDocuments() error {
	if !w.begin() {
		return ErrClosed
	}
	defer w.ops.Done()
	return w.documents.Refresh(w.ctx)
}

// DeleteDocument removes name and refetches the list.
func (w *Workspace) DeleteDocument(name string) error {
	if !w.begin() {
		return ErrClosed
	}
	defer w.ops.Done()
	return w.documents.Delete(w.ctx, name)
}

// SetDraft replaces the chat input text.
func (w *Workspace) SetDraft(text string) {
	w.chat.SetDraft(text)
}

// SendChat submits text as a question.
func (w *Workspace) SendChat(text string) error {
	if !w.begin() {
		return ErrClosed
	}
	defer w.ops.Done()
	return w.chat.Send(w.ctx, text)
}

// begin registers a panel operation unless the workspace is closed.
func (w *Workspace) begin() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.ops.Add(1)
	return true
}

// Subscribe registers a notice stream. The returned cancel function removes
// it and reports how many subscribers remain. Notices are dropped when a
// subscriber falls behind; a pending state notice always leads to a fresh
// snapshot, so readers never end on a stale view.
func (w *Workspace) Subscribe() (<-chan string, func() int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan string, subscriberBuffer)
	if w.closed {
		close(ch)
		return ch, func() int { return 0 }
	}

	id := w.nextSub
	w.nextSub++
	w.subs[id] = ch

	var once sync.Once
	remaining := 0
	return ch, func() int {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if c, ok := w.subs[id]; ok {
				delete(w.subs, id)
				close(c)
			}
			remaining = len(w.subs)
		})
		return remaining
	}
}

func (w *Workspace) publish(kind string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- kind:
		default:
		}
	}
}
