package domain

import (
	"time"
)

// Panel names used in activity entries.
const (
	PanelUpload    = "upload"
	PanelDocuments = "documents"
	PanelChat      = "chat"
)

// Outcome classifies how a panel operation ended.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeValidation Outcome = "validation_error"
	OutcomeGateway    Outcome = "gateway_error"
	OutcomeTransport  Outcome = "transport_error"
	OutcomeDiscarded  Outcome = "discarded"
	OutcomeSuperseded Outcome = "superseded"
)

// ActivityEntry records the outcome of a single panel operation.
// Transcript text is never stored here.
type ActivityEntry struct {
	ID          int64         `json:"id"`
	WorkspaceID string        `json:"workspace_id"`
	Panel       string        `json:"panel"`
	Operation   string        `json:"operation"`
	Target      string        `json:"target,omitempty"`
	Outcome     Outcome       `json:"outcome"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Failed returns true if the operation did not succeed.
func (e *ActivityEntry) Failed() bool {
	return e.Outcome != OutcomeSuccess
}
