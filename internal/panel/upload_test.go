package panel

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/ashureev/docdesk/internal/domain"
	"github.com/ashureev/docdesk/internal/gateway"
	"github.com/ashureev/docdesk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pdf(name string) *File {
	return &File{Name: name, ContentType: PDFMediaType, Data: []byte("%PDF-1.7")}
}

func TestUploadRejectsWithoutNetworkCall(t *testing.T) {
	tests := []struct {
		name    string
		file    *File
		reason  string
		message string
	}{
		{name: "no file", file: nil, reason: ReasonNoFile, message: MsgNoFile},
		{name: "plain text", file: &File{Name: "notes.txt", ContentType: "text/plain"}, reason: ReasonWrongType, message: MsgWrongType},
		{name: "pdf extension but wrong type", file: &File{Name: "report.pdf", ContentType: "application/octet-stream"}, reason: ReasonWrongType, message: MsgWrongType},
		{name: "empty type", file: &File{Name: "report.pdf"}, reason: ReasonWrongType, message: MsgWrongType},
		{name: "type with parameters", file: &File{Name: "report.pdf", ContentType: "application/pdf; charset=binary"}, reason: ReasonWrongType, message: MsgWrongType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := testutil.NewFakeGateway()
			var uploaded atomic.Int32
			p := NewUploadPanel(gw, func() { uploaded.Add(1) })

			p.Select(tt.file)
			err := p.Submit(t.Context())

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.reason, vErr.Reason)
			assert.Empty(t, gw.Ingests())
			assert.Zero(t, uploaded.Load())

			st := p.State()
			assert.Equal(t, PhaseFailed, st.Phase)
			assert.Equal(t, tt.message, st.Error)
		})
	}
}

func TestUploadSuccessNotifiesPeerOnce(t *testing.T) {
	gw := testutil.NewFakeGateway()
	var uploaded atomic.Int32
	p := NewUploadPanel(gw, func() { uploaded.Add(1) })

	p.Select(pdf("report.pdf"))
	require.NoError(t, p.Submit(t.Context()))

	assert.Equal(t, int32(1), uploaded.Load())
	calls := gw.Ingests()
	require.Len(t, calls, 1)
	assert.Equal(t, "report.pdf", calls[0].Filename)
	assert.Equal(t, PDFMediaType, calls[0].ContentType)

	st := p.State()
	assert.Equal(t, PhaseSucceeded, st.Phase)
	assert.Empty(t, st.Error)
	assert.Empty(t, st.Selected, "selection is reset after success")

	// The selection was reset, so submitting again is a validation failure
	// and must not notify the peer a second time.
	var vErr *ValidationError
	require.ErrorAs(t, p.Submit(t.Context()), &vErr)
	assert.Equal(t, int32(1), uploaded.Load())
	assert.Equal(t, PhaseFailed, p.State().Phase)
}

func TestUploadNotifiesPerSuccessNotPerAttempt(t *testing.T) {
	gw := testutil.NewFakeGateway()
	fail := true
	gw.IngestFn = func(ctx context.Context, filename string) error {
		if fail {
			return &gateway.GatewayError{Op: gateway.OpIngest, Status: http.StatusInternalServerError}
		}
		return nil
	}
	var uploaded atomic.Int32
	p := NewUploadPanel(gw, func() { uploaded.Add(1) })

	p.Select(pdf("a.pdf"))
	require.Error(t, p.Submit(t.Context()))
	require.Error(t, p.Submit(t.Context()))
	fail = false
	require.NoError(t, p.Submit(t.Context()))
	p.Select(pdf("a.pdf"))
	require.NoError(t, p.Submit(t.Context()))

	assert.Len(t, gw.Ingests(), 4)
	assert.Equal(t, int32(2), uploaded.Load())
}

func TestUploadFailureMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "detail", err: &gateway.GatewayError{Status: 400, Detail: "Only PDF files are supported"}, want: "Only PDF files are supported"},
		{name: "no detail", err: &gateway.GatewayError{Status: 500}, want: MsgUploadFailed},
		{name: "transport", err: &gateway.TransportError{Op: gateway.OpIngest, Err: errors.New("connection refused")}, want: MsgUploadError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := testutil.NewFakeGateway()
			gw.IngestFn = func(ctx context.Context, filename string) error { return tt.err }
			var uploaded atomic.Int32
			p := NewUploadPanel(gw, func() { uploaded.Add(1) })

			p.Select(pdf("report.pdf"))
			require.Error(t, p.Submit(t.Context()))

			st := p.State()
			assert.Equal(t, PhaseFailed, st.Phase)
			assert.Equal(t, tt.want, st.Error)
			assert.Equal(t, "report.pdf", st.Selected, "selection survives a failed upload")
			assert.True(t, st.CanSubmit())
			assert.Zero(t, uploaded.Load())
		})
	}
}

func TestUploadSingleInFlight(t *testing.T) {
	gw := testutil.NewFakeGateway()
	entered := make(chan struct{})
	release := make(chan struct{})
	gw.IngestFn = func(ctx context.Context, filename string) error {
		close(entered)
		<-release
		return nil
	}
	p := NewUploadPanel(gw, nil)
	p.Select(pdf("report.pdf"))

	done := make(chan error, 1)
	go func() { done <- p.Submit(context.Background()) }()
	<-entered

	assert.Equal(t, PhaseSubmitting, p.State().Phase)
	assert.False(t, p.State().CanSubmit())
	assert.ErrorIs(t, p.Submit(t.Context()), ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, gw.Ingests(), 1)
	assert.Equal(t, PhaseSucceeded, p.State().Phase)
}

func TestUploadClearsPreviousErrorOnNextAttempt(t *testing.T) {
	gw := testutil.NewFakeGateway()
	p := NewUploadPanel(gw, nil)

	require.Error(t, p.Submit(t.Context()))
	assert.Equal(t, MsgNoFile, p.State().Error)

	p.Select(pdf("report.pdf"))
	require.NoError(t, p.Submit(t.Context()))
	assert.Empty(t, p.State().Error)
	assert.Equal(t, PhaseSucceeded, p.State().Phase)
}

func TestUploadUnmountedDropsResult(t *testing.T) {
	gw := testutil.NewFakeGateway()
	entered := make(chan struct{})
	release := make(chan struct{})
	gw.IngestFn = func(ctx context.Context, filename string) error {
		close(entered)
		<-release
		return nil
	}
	var uploaded, changes atomic.Int32
	var events []Event
	p := NewUploadPanel(gw, func() { uploaded.Add(1) },
		WithOnChange(func() { changes.Add(1) }),
		WithRecorder(func(e Event) { events = append(events, e) }),
	)
	p.Select(pdf("report.pdf"))

	done := make(chan error, 1)
	go func() { done <- p.Submit(context.Background()) }()
	<-entered
	p.Unmount()
	before := changes.Load()
	close(release)
	require.NoError(t, <-done)

	assert.Zero(t, uploaded.Load())
	assert.Equal(t, before, changes.Load())
	require.Len(t, events, 1)
	assert.Equal(t, domain.OutcomeDiscarded, events[0].Outcome)
}

func TestUploadRecordsEvents(t *testing.T) {
	gw := testutil.NewFakeGateway()
	var events []Event
	p := NewUploadPanel(gw, nil, WithRecorder(func(e Event) { events = append(events, e) }))

	p.Select(&File{Name: "notes.txt", ContentType: "text/plain"})
	_ = p.Submit(t.Context())
	p.Select(pdf("report.pdf"))
	require.NoError(t, p.Submit(t.Context()))

	require.Len(t, events, 2)
	assert.Equal(t, OperationValidate, events[0].Operation)
	assert.Equal(t, domain.OutcomeValidation, events[0].Outcome)
	assert.Equal(t, "notes.txt", events[0].Target)
	assert.Equal(t, OperationIngest, events[1].Operation)
	assert.Equal(t, domain.OutcomeSuccess, events[1].Outcome)
	assert.Equal(t, domain.PanelUpload, events[1].Panel)
}
