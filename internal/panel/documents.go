package panel

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ashureev/docdesk/internal/domain"
	"github.com/ashureev/docdesk/internal/gateway"
)

// User-visible document list messages.
const (
	MsgListFailed   = "Failed to fetch documents"
	MsgListError    = "Error loading documents"
	MsgDeleteFailed = "Failed to delete document"
	MsgDeleteError  = "Error deleting document"
)

// DocumentStore lists and deletes ingested documents.
type DocumentStore interface {
	ListDocuments(ctx context.Context) ([]string, error)
	DeleteDocument(ctx context.Context, name string) error
}

// DocumentsState is the view of the document list panel. Documents is kept
// while Error is set; the view shows one or the other.
type DocumentsState struct {
	Documents []domain.DocumentName `json:"documents"`
	Error     string                `json:"error,omitempty"`
	Deleting  []domain.DocumentName `json:"deleting"`
	Loaded    bool                  `json:"loaded"`
}

// IsDeleting reports whether a deletion of name is in flight.
func (s DocumentsState) IsDeleting(name string) bool {
	return slices.Contains(s.Deleting, name)
}

// DocumentListPanel holds the snapshot of ingested documents. Every
// successful fetch replaces the list; mutations are never spliced locally.
type DocumentListPanel struct {
	base
	gw DocumentStore

	mu       sync.Mutex
	docs     []string
	errMsg   string
	loaded   bool
	deleting map[string]struct{}
	issued   uint64
	applied  uint64
}

// NewDocumentListPanel creates a document list panel with an empty list.
func NewDocumentListPanel(gw DocumentStore, opts ...Option) *DocumentListPanel {
	return &DocumentListPanel{
		base:     newBase(domain.PanelDocuments, opts),
		gw:       gw,
		docs:     []string{},
		deleting: make(map[string]struct{}),
	}
}

// State returns a snapshot of the panel.
func (p *DocumentListPanel) State() DocumentsState {
	p.mu.Lock()
	defer p.mu.Unlock()

	deleting := make([]string, 0, len(p.deleting))
	for name := range p.deleting {
		deleting = append(deleting, name)
	}
	slices.Sort(deleting)

	return DocumentsState{
		Documents: slices.Clone(p.docs),
		Error:     p.errMsg,
		Deleting:  deleting,
		Loaded:    p.loaded,
	}
}

// Watch refreshes once immediately and then once per observed change of
// sig, until ctx is done.
func (p *DocumentListPanel) Watch(ctx context.Context, sig *RefreshSignal) {
	last := sig.Value()
	for {
		_ = p.Refresh(ctx)

		next, err := sig.Wait(ctx, last)
		if err != nil {
			return
		}
		last = next
	}
}

// Refresh fetches the list. On failure the previous list stays in place.
// Results of overlapping refreshes are applied in the order the refreshes
// were issued.
func (p *DocumentListPanel) Refresh(ctx context.Context) error {
	start := time.Now()

	p.mu.Lock()
	p.issued++
	ticket := p.issued
	p.mu.Unlock()

	docs, err := p.gw.ListDocuments(ctx)
	if !p.Mounted() {
		p.emit(OperationRefresh, "", start, err, "")
		return err
	}

	p.mu.Lock()
	if ticket < p.applied {
		p.mu.Unlock()
		p.emitOutcome(OperationRefresh, "", start, domain.OutcomeSuperseded, "")
		return err
	}
	p.applied = ticket
	if err != nil {
		p.errMsg = gateway.Message(err, MsgListFailed, MsgListError)
	} else {
		p.docs = slices.Clone(docs)
		p.errMsg = ""
		p.loaded = true
	}
	msg := p.errMsg
	p.mu.Unlock()
	p.notify()

	p.emit(OperationRefresh, "", start, err, msg)
	return err
}

// Delete removes name through the gateway and rebuilds the list from a
// fresh fetch. Deletions of different names may overlap; a second deletion
// of a name that is still pending returns ErrBusy.
func (p *DocumentListPanel) Delete(ctx context.Context, name string) error {
	start := time.Now()

	p.mu.Lock()
	if _, busy := p.deleting[name]; busy {
		p.mu.Unlock()
		return ErrBusy
	}
	p.deleting[name] = struct{}{}
	p.mu.Unlock()
	p.notify()

	defer func() {
		p.mu.Lock()
		delete(p.deleting, name)
		p.mu.Unlock()
		p.notify()
	}()

	err := p.gw.DeleteDocument(ctx, name)
	if !p.Mounted() {
		p.emit(OperationDelete, name, start, err, "")
		return err
	}

	if err != nil {
		p.mu.Lock()
		p.errMsg = gateway.Message(err, MsgDeleteFailed, MsgDeleteError)
		msg := p.errMsg
		p.mu.Unlock()
		p.notify()
		p.emit(OperationDelete, name, start, err, msg)
		return err
	}

	p.emit(OperationDelete, name, start, nil, "")
	// Refresh failures land in the panel error; the deletion itself succeeded.
	_ = p.Refresh(ctx)
	return nil
}
