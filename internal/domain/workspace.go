// Package domain contains core domain types for the docdesk application.
package domain

import (
	"time"
)

// Workspace is the persisted record of one open page: a composition of the
// upload, document list, and chat panels sharing a refresh signal.
type Workspace struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	ClosedAt   time.Time `json:"closed_at,omitempty"`
}

// IsOpen returns true if the workspace has not been closed.
func (w *Workspace) IsOpen() bool {
	return w.ClosedAt.IsZero()
}

// IdleFor returns how long the workspace has gone without activity.
// Returns 0 for closed workspaces.
func (w *Workspace) IdleFor(now time.Time) time.Duration {
	if !w.IsOpen() {
		return 0
	}
	idle := now.Sub(w.LastSeenAt)
	if idle < 0 {
		return 0
	}
	return idle
}
