// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/docdesk/internal/domain"
)

// Repository defines the interface for persisting workspace and activity data.
// Chat transcripts are not stored.
type Repository interface {
	// CreateWorkspace inserts a new open workspace record.
	CreateWorkspace(ctx context.Context, ws *domain.Workspace) error

	// GetWorkspace retrieves a workspace by ID. Returns nil, nil if missing.
	GetWorkspace(ctx context.Context, id string) (*domain.Workspace, error)

	// TouchWorkspace updates the last_seen_at timestamp for a workspace.
	TouchWorkspace(ctx context.Context, id string, lastSeen time.Time) error

	// CloseWorkspace marks a workspace closed. Closing twice is not an error.
	CloseWorkspace(ctx context.Context, id string, closedAt time.Time) error

	// GetIdleWorkspaces retrieves open workspaces idle for longer than ttl.
	GetIdleWorkspaces(ctx context.Context, ttl time.Duration) ([]*domain.Workspace, error)

	// RecordActivity appends an operation outcome to the journal.
	RecordActivity(ctx context.Context, entry *domain.ActivityEntry) error

	// ListActivity returns the newest entries for a workspace, newest first.
	ListActivity(ctx context.Context, workspaceID string, limit int) ([]*domain.ActivityEntry, error)

	// PurgeClosed removes closed workspaces and their activity older than age.
	PurgeClosed(ctx context.Context, age time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
