package panel

import (
	"sync/atomic"
	"time"

	"github.com/ashureev/docdesk/internal/domain"
)

// DefaultScrollDelay lets the transcript layout settle before scrolling.
const DefaultScrollDelay = 100 * time.Millisecond

// Operation names reported in events.
const (
	OperationValidate = "validate"
	OperationIngest   = "ingest"
	OperationRefresh  = "refresh"
	OperationDelete   = "delete"
	OperationQuery    = "query"
)

// Event describes a finished panel operation.
type Event struct {
	Panel     string
	Operation string
	Target    string
	Outcome   domain.Outcome
	Message   string
	Duration  time.Duration
}

type options struct {
	onChange    func()
	record      func(Event)
	onScroll    func()
	scrollDelay time.Duration
}

// Option configures a panel.
type Option func(*options)

// WithOnChange registers a callback run after every visible state change.
func WithOnChange(fn func()) Option {
	return func(o *options) {
		o.onChange = fn
	}
}

// WithRecorder registers a callback run once per finished operation.
func WithRecorder(fn func(Event)) Option {
	return func(o *options) {
		o.record = fn
	}
}

// WithOnScroll registers the chat scroll-to-end callback.
func WithOnScroll(fn func()) Option {
	return func(o *options) {
		o.onScroll = fn
	}
}

// WithScrollDelay overrides DefaultScrollDelay.
func WithScrollDelay(d time.Duration) Option {
	return func(o *options) {
		o.scrollDelay = d
	}
}

// base carries the hooks and mount state shared by all panels.
type base struct {
	panel     string
	opts      options
	unmounted atomic.Bool
}

func newBase(panel string, opts []Option) base {
	b := base{panel: panel, opts: options{scrollDelay: DefaultScrollDelay}}
	for _, opt := range opts {
		opt(&b.opts)
	}
	return b
}

// Unmount detaches the panel. Results of operations still in flight are
// dropped when they arrive.
func (b *base) Unmount() {
	b.unmounted.Store(true)
}

// Mounted reports whether the panel still accepts results.
func (b *base) Mounted() bool {
	return !b.unmounted.Load()
}

func (b *base) notify() {
	if b.opts.onChange != nil && b.Mounted() {
		b.opts.onChange()
	}
}

func (b *base) emit(op, target string, start time.Time, err error, message string) {
	outcome := outcomeOf(err)
	if !b.Mounted() {
		outcome = domain.OutcomeDiscarded
	}
	b.emitOutcome(op, target, start, outcome, message)
}

func (b *base) emitOutcome(op, target string, start time.Time, outcome domain.Outcome, message string) {
	if b.opts.record == nil {
		return
	}
	b.opts.record(Event{
		Panel:     b.panel,
		Operation: op,
		Target:    target,
		Outcome:   outcome,
		Message:   message,
		Duration:  time.Since(start),
	})
}
