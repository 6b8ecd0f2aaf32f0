package domain

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn typed by the user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn answered by the gateway.
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a chat transcript. Turns are append-only and never
// mutated once appended.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DocumentName is the opaque identifier of an ingested document.
type DocumentName = string
