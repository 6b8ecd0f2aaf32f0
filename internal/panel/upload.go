package panel

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/ashureev/docdesk/internal/domain"
	"github.com/ashureev/docdesk/internal/gateway"
)

// PDFMediaType is the only media type the upload panel accepts.
const PDFMediaType = "application/pdf"

// User-visible upload messages.
const (
	MsgNoFile       = "Please select a PDF file."
	MsgWrongType    = "Only PDF files are allowed."
	MsgUploadFailed = "Upload failed"
	MsgUploadError  = "Upload error"
)

// Ingester submits a file to the gateway.
type Ingester interface {
	Ingest(ctx context.Context, filename, contentType string, content io.Reader) error
}

// File is a user-selected upload with its declared media type.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadState is the view of the upload panel.
type UploadState struct {
	Phase    Phase  `json:"phase"`
	Error    string `json:"error,omitempty"`
	Selected string `json:"selected,omitempty"`
}

// CanSubmit reports whether the submit affordance is enabled.
func (s UploadState) CanSubmit() bool {
	return s.Phase != PhaseSubmitting
}

// UploadPanel validates and submits one file at a time. A successful ingest
// invokes the peer callback exactly once.
type UploadPanel struct {
	base
	gw         Ingester
	onUploaded func()

	mu    sync.Mutex
	state UploadState
	file  *File
}

// NewUploadPanel creates an upload panel. onUploaded may be nil.
func NewUploadPanel(gw Ingester, onUploaded func(), opts ...Option) *UploadPanel {
	return &UploadPanel{
		base:       newBase(domain.PanelUpload, opts),
		gw:         gw,
		onUploaded: onUploaded,
	}
}

// State returns a snapshot of the panel.
func (p *UploadPanel) State() UploadState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Select sets the file the next Submit will use. A nil file clears the
// selection.
func (p *UploadPanel) Select(f *File) {
	p.mu.Lock()
	p.file = f
	if f != nil {
		p.state.Selected = f.Name
	} else {
		p.state.Selected = ""
	}
	p.mu.Unlock()
	p.notify()
}

// Submit validates the selected file and ingests it. It returns ErrBusy
// without touching state if a submission is already in flight.
func (p *UploadPanel) Submit(ctx context.Context) error {
	start := time.Now()

	p.mu.Lock()
	if p.state.Phase == PhaseSubmitting {
		p.mu.Unlock()
		return ErrBusy
	}
	file := p.file
	if vErr := validateUpload(file); vErr != nil {
		p.state = UploadState{Phase: PhaseFailed, Error: vErr.Message, Selected: p.state.Selected}
		p.mu.Unlock()
		p.notify()
		p.emit(OperationValidate, selectedName(file), start, vErr, vErr.Message)
		return vErr
	}
	p.state = UploadState{Phase: PhaseSubmitting, Selected: file.Name}
	p.mu.Unlock()
	p.notify()

	finished := false
	defer func() {
		if finished {
			return
		}
		p.mu.Lock()
		if p.state.Phase == PhaseSubmitting {
			p.state.Phase = PhaseIdle
		}
		p.mu.Unlock()
		p.notify()
	}()

	err := p.gw.Ingest(ctx, file.Name, file.ContentType, bytes.NewReader(file.Data))
	if !p.Mounted() {
		p.emit(OperationIngest, file.Name, start, err, "")
		return err
	}
	finished = true

	p.mu.Lock()
	if err != nil {
		p.state = UploadState{
			Phase:    PhaseFailed,
			Error:    gateway.Message(err, MsgUploadFailed, MsgUploadError),
			Selected: p.state.Selected,
		}
	} else {
		p.state = UploadState{Phase: PhaseSucceeded}
		if p.file == file {
			p.file = nil
		} else if p.file != nil {
			p.state.Selected = p.file.Name
		}
	}
	msg := p.state.Error
	p.mu.Unlock()
	p.notify()

	if err == nil && p.onUploaded != nil {
		p.onUploaded()
	}
	p.emit(OperationIngest, file.Name, start, err, msg)
	return err
}

func validateUpload(f *File) *ValidationError {
	if f == nil {
		return &ValidationError{Reason: ReasonNoFile, Message: MsgNoFile}
	}
	if f.ContentType != PDFMediaType {
		return &ValidationError{Reason: ReasonWrongType, Message: MsgWrongType}
	}
	return nil
}

func selectedName(f *File) string {
	if f == nil {
		return ""
	}
	return f.Name
}
