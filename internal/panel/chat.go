package panel

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/docdesk/internal/domain"
	"github.com/ashureev/docdesk/internal/gateway"
)

// User-visible chat messages.
const (
	MsgNoResponse = "No response received"
	MsgChatFailed = "Chat failed"
	MsgChatError  = "Chat error"
)

// Querier asks the gateway a question.
type Querier interface {
	Query(ctx context.Context, query string) (gateway.QueryResponse, error)
}

// ChatState is the view of the chat panel.
type ChatState struct {
	Turns []domain.Turn `json:"turns"`
	Phase Phase         `json:"phase"`
	Error string        `json:"error,omitempty"`
	Draft string        `json:"draft"`
}

// CanSend reports whether the send affordance is enabled.
func (s ChatState) CanSend() bool {
	return s.Phase != PhaseSubmitting && strings.TrimSpace(s.Draft) != ""
}

// ChatPanel keeps a linear transcript. The user's turn is appended before
// the gateway answers and stays even if the answer never comes.
type ChatPanel struct {
	base
	gw Querier

	mu    sync.Mutex
	turns []domain.Turn
	phase Phase
	err   string
	draft string
}

// NewChatPanel creates a chat panel with an empty transcript.
func NewChatPanel(gw Querier, opts ...Option) *ChatPanel {
	return &ChatPanel{
		base:  newBase(domain.PanelChat, opts),
		gw:    gw,
		turns: []domain.Turn{},
	}
}

// State returns a snapshot of the panel.
func (p *ChatPanel) State() ChatState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ChatState{
		Turns: slices.Clone(p.turns),
		Phase: p.phase,
		Error: p.err,
		Draft: p.draft,
	}
}

// SetDraft replaces the text in the input field.
func (p *ChatPanel) SetDraft(text string) {
	p.mu.Lock()
	p.draft = text
	p.mu.Unlock()
	p.notify()
}

// Send submits text as the next user turn. Blank text is rejected with a
// ValidationError and no state change.
func (p *ChatPanel) Send(ctx context.Context, text string) error {
	start := time.Now()

	if strings.TrimSpace(text) == "" {
		return &ValidationError{Reason: ReasonEmptyInput}
	}

	p.mu.Lock()
	if p.phase == PhaseSubmitting {
		p.mu.Unlock()
		return ErrBusy
	}
	p.turns = append(p.turns, domain.Turn{Role: domain.RoleUser, Content: text})
	p.draft = ""
	p.err = ""
	p.phase = PhaseSubmitting
	p.mu.Unlock()
	p.notify()

	defer p.scheduleScroll()
	defer func() {
		p.mu.Lock()
		if p.phase == PhaseSubmitting {
			p.phase = PhaseIdle
		}
		p.mu.Unlock()
		p.notify()
	}()

	resp, err := p.gw.Query(ctx, text)
	if !p.Mounted() {
		p.emit(OperationQuery, "", start, err, "")
		return err
	}

	p.mu.Lock()
	if err != nil {
		p.phase = PhaseFailed
		p.err = gateway.Message(err, MsgChatFailed, MsgChatError)
	} else {
		p.turns = append(p.turns, domain.Turn{Role: domain.RoleAssistant, Content: AssistantText(resp)})
		p.phase = PhaseIdle
	}
	msg := p.err
	p.mu.Unlock()

	p.emit(OperationQuery, "", start, err, msg)
	return err
}

// AssistantText picks the answer from a query reply: the first non-empty
// of response, answer, and content, or MsgNoResponse.
func AssistantText(resp gateway.QueryResponse) string {
	for _, candidate := range []string{resp.Response, resp.Answer, resp.Content} {
		if candidate != "" {
			return candidate
		}
	}
	return MsgNoResponse
}

func (p *ChatPanel) scheduleScroll() {
	if p.opts.onScroll == nil || !p.Mounted() {
		return
	}
	time.AfterFunc(p.opts.scrollDelay, func() {
		if p.Mounted() {
			p.opts.onScroll()
		}
	})
}
