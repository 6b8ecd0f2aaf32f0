package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/docdesk/internal/domain"
	"github.com/ashureev/docdesk/internal/store"
	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or already closed workspaces.
var ErrNotFound = errors.New("workspace not found")

const recordTimeout = 5 * time.Second

// Config controls workspace lifetime and journaling.
type Config struct {
	TTL             time.Duration
	ReaperInterval  time.Duration
	Retention       time.Duration
	ScrollDelay     time.Duration
	ActivityEnabled bool
}

// Manager tracks the workspaces hosted by this process.
type Manager struct {
	repo   store.Repository
	gw     Gateway
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	active map[string]*Workspace

	// Outstanding journal writes. Add only under mu while not stopped.
	pending sync.WaitGroup
	stopped bool
}

// NewManager creates a workspace manager.
func NewManager(repo store.Repository, gw Gateway, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:   repo,
		gw:     gw,
		cfg:    cfg,
		logger: logger,
		active: make(map[string]*Workspace),
	}
}

// Create persists a new workspace record, mounts the workspace and returns it.
func (m *Manager) Create(ctx context.Context, remoteAddr string) (*Workspace, error) {
	now := time.Now()
	rec := &domain.Workspace{
		ID:         uuid.NewString(),
		RemoteAddr: remoteAddr,
		LastSeenAt: now,
		CreatedAt:  now,
	}
	if err := m.repo.CreateWorkspace(ctx, rec); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	opts := Options{ScrollDelay: m.cfg.ScrollDelay}
	if m.cfg.ActivityEnabled {
		opts.Record = m.record
	}
	ws := New(rec.ID, m.gw, opts)

	m.mu.Lock()
	m.active[rec.ID] = ws
	m.mu.Unlock()

	ws.Mount()
	m.logger.Info("Workspace created", "workspace_id", rec.ID, "remote_addr", remoteAddr)
	return ws, nil
}

// Get returns an active workspace.
func (m *Manager) Get(id string) (*Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ws, ok := m.active[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ws, nil
}

// Len returns the number of active workspaces.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Touch records activity on a workspace asynchronously.
func (m *Manager) Touch(id string) {
	if !m.track() {
		return
	}
	go func() {
		defer m.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := m.repo.TouchWorkspace(ctx, id, time.Now()); err != nil {
			m.logger.Warn("Failed to update last seen", "error", err, "workspace_id", id)
		}
	}()
}

// Close unmounts a workspace and marks it closed.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	ws, ok := m.active[id]
	delete(m.active, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	ws.Unmount()
	if err := m.repo.CloseWorkspace(ctx, id, time.Now()); err != nil && !errors.Is(err, store.ErrWorkspaceNotFound) {
		return fmt.Errorf("close workspace %s: %w", id, err)
	}
	m.logger.Info("Workspace closed", "workspace_id", id)
	return nil
}

// Activity returns the journal of a workspace, newest first.
func (m *Manager) Activity(ctx context.Context, id string, limit int) ([]*domain.ActivityEntry, error) {
	rec, err := m.repo.GetWorkspace(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return m.repo.ListActivity(ctx, id, limit)
}

// RunReaper closes idle workspaces every ReaperInterval until ctx is done.
func (m *Manager) RunReaper(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.ReaperInterval)
	defer ticker.Stop()
	m.logger.Info("Workspace reaper started", "interval", m.cfg.ReaperInterval, "ttl", m.cfg.TTL)

	for {
		select {
		case <-ticker.C:
			m.reap(ctx)
		case <-ctx.Done():
			m.logger.Info("Workspace reaper shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

func (m *Manager) reap(ctx context.Context) {
	idle, err := m.repo.GetIdleWorkspaces(ctx, m.cfg.TTL)
	if err != nil {
		m.logger.Error("Reaper failed to get idle workspaces", "error", err)
		return
	}

	for _, rec := range idle {
		err := m.Close(ctx, rec.ID)
		if errors.Is(err, ErrNotFound) {
			// Left over from a previous process.
			err = m.repo.CloseWorkspace(ctx, rec.ID, time.Now())
		}
		if err != nil {
			m.logger.Warn("Reaper failed to close workspace", "error", err, "workspace_id", rec.ID)
			continue
		}
		m.logger.Info("Reaper closed idle workspace", "workspace_id", rec.ID, "idle_for", rec.IdleFor(time.Now()))
	}

	if m.cfg.Retention <= 0 {
		return
	}
	if purged, err := m.repo.PurgeClosed(ctx, m.cfg.Retention); err != nil {
		m.logger.Error("Reaper failed to purge closed workspaces", "error", err)
	} else if purged > 0 {
		m.logger.Info("Reaper purged closed workspaces", "count", purged)
	}
}

// Shutdown closes every active workspace, which waits for their panel
// operations to unwind, then waits for pending journal writes or ctx expiry.
// Writes requested after that point are dropped.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}

func (m *Manager) record(entry domain.ActivityEntry) {
	if !m.track() {
		m.logger.Warn("Dropped activity after shutdown",
			"workspace_id", entry.WorkspaceID,
			"operation", entry.Operation,
			"outcome", entry.Outcome)
		return
	}
	go func() {
		defer m.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := m.repo.RecordActivity(ctx, &entry); err != nil {
			m.logger.Warn("Failed to record activity",
				"error", err,
				"workspace_id", entry.WorkspaceID,
				"operation", entry.Operation)
		}
	}()
}

// track registers an outstanding journal write. It returns false once
// Shutdown has started waiting.
func (m *Manager) track() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return false
	}
	m.pending.Add(1)
	return true
}
