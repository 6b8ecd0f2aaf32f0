package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/docdesk/internal/domain"
	"github.com/ashureev/docdesk/internal/shared"
	_ "modernc.org/sqlite"
)

// ErrWorkspaceNotFound is returned when an update targets a missing workspace.
var ErrWorkspaceNotFound = errors.New("workspace not found")

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db         *sql.DB
	activityMu sync.Mutex // Serializes journal writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS workspaces (
		workspace_id TEXT PRIMARY KEY,
		remote_addr TEXT,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		closed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_workspaces_open ON workspaces(last_seen_at) WHERE closed_at IS NULL;

	CREATE TABLE IF NOT EXISTS activity (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		workspace_id TEXT NOT NULL,
		panel TEXT NOT NULL,
		operation TEXT NOT NULL,
		target TEXT,
		outcome TEXT NOT NULL,
		message TEXT,
		duration_ns INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_activity_workspace ON activity(workspace_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateWorkspace inserts a new open workspace record.
func (s *SQLiteStore) CreateWorkspace(ctx context.Context, ws *domain.Workspace) error {
	query := `
	INSERT INTO workspaces (workspace_id, remote_addr, last_seen_at, created_at)
	VALUES (?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		ws.ID, ws.RemoteAddr, ws.LastSeenAt.UnixMilli(), ws.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

// GetWorkspace retrieves a workspace by ID.
func (s *SQLiteStore) GetWorkspace(ctx context.Context, id string) (*domain.Workspace, error) {
	query := `
		SELECT workspace_id, remote_addr, last_seen_at, created_at, closed_at
		FROM workspaces WHERE workspace_id = ?`

	ws, err := scanWorkspace(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan workspace row: %w", err)
	}
	return ws, nil
}

// TouchWorkspace updates the last_seen_at timestamp for a workspace.
func (s *SQLiteStore) TouchWorkspace(ctx context.Context, id string, lastSeen time.Time) error {
	query := `UPDATE workspaces SET last_seen_at = ? WHERE workspace_id = ? AND closed_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, lastSeen.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("TouchWorkspace affected 0 rows", "workspace_id", id)
		return ErrWorkspaceNotFound
	}
	return nil
}

// CloseWorkspace marks a workspace closed, keeping the first close time.
func (s *SQLiteStore) CloseWorkspace(ctx context.Context, id string, closedAt time.Time) error {
	query := `UPDATE workspaces SET closed_at = COALESCE(closed_at, ?) WHERE workspace_id = ?`
	result, err := s.db.ExecContext(ctx, query, closedAt.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("close workspace: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrWorkspaceNotFound
	}
	return nil
}

// GetIdleWorkspaces retrieves open workspaces idle for longer than ttl.
func (s *SQLiteStore) GetIdleWorkspaces(ctx context.Context, ttl time.Duration) ([]*domain.Workspace, error) {
	threshold := time.Now().Add(-ttl).UnixMilli()
	query := `
		SELECT workspace_id, remote_addr, last_seen_at, created_at, closed_at
		FROM workspaces WHERE closed_at IS NULL AND last_seen_at < ?`

	rows, err := s.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("query idle workspaces: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close idle workspaces rows", "error", closeErr)
		}
	}()

	var workspaces []*domain.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan idle workspace row: %w", err)
		}
		workspaces = append(workspaces, ws)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idle workspaces: %w", err)
	}

	return workspaces, nil
}

// RecordActivity appends an operation outcome to the journal.
// Retries with exponential backoff on SQLITE_BUSY.
func (s *SQLiteStore) RecordActivity(ctx context.Context, entry *domain.ActivityEntry) error {
	err := shared.RetryOnConflict(ctx, 3, 50*time.Millisecond, "record_activity", func(ctx context.Context) error {
		return s.recordActivityOnce(ctx, entry)
	})
	if err != nil {
		return fmt.Errorf("record activity for %s: %w", entry.WorkspaceID, err)
	}
	return nil
}

func (s *SQLiteStore) recordActivityOnce(ctx context.Context, entry *domain.ActivityEntry) error {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()

	query := `
		INSERT INTO activity (
			workspace_id, panel, operation, target, outcome, message, duration_ns, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, query,
		entry.WorkspaceID, entry.Panel, entry.Operation, entry.Target,
		string(entry.Outcome), entry.Message, int64(entry.Duration), createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	entry.CreatedAt = createdAt
	return nil
}

// ListActivity returns the newest entries for a workspace, newest first.
func (s *SQLiteStore) ListActivity(ctx context.Context, workspaceID string, limit int) ([]*domain.ActivityEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, workspace_id, panel, operation, target, outcome, message, duration_ns, created_at
		FROM activity WHERE workspace_id = ? ORDER BY id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close activity rows", "error", closeErr)
		}
	}()

	entries := []*domain.ActivityEntry{}
	for rows.Next() {
		var e domain.ActivityEntry
		var target, message sql.NullString
		var outcome string
		var durationNs, createdAt int64

		if err := rows.Scan(
			&e.ID, &e.WorkspaceID, &e.Panel, &e.Operation, &target,
			&outcome, &message, &durationNs, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}

		e.Target = target.String
		e.Message = message.String
		e.Outcome = domain.Outcome(outcome)
		e.Duration = time.Duration(durationNs)
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return entries, nil
}

// PurgeClosed removes closed workspaces and their activity older than age.
func (s *SQLiteStore) PurgeClosed(ctx context.Context, age time.Duration) (int64, error) {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()

	threshold := time.Now().Add(-age).UnixMilli()

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM activity WHERE workspace_id IN (
			SELECT workspace_id FROM workspaces WHERE closed_at IS NOT NULL AND closed_at < ?
		)`, threshold); err != nil {
		return 0, fmt.Errorf("purge activity: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM workspaces WHERE closed_at IS NOT NULL AND closed_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("purge workspaces: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkspace(row rowScanner) (*domain.Workspace, error) {
	var ws domain.Workspace
	var remoteAddr sql.NullString
	var lastSeen, createdAt int64
	var closedAt sql.NullInt64

	if err := row.Scan(&ws.ID, &remoteAddr, &lastSeen, &createdAt, &closedAt); err != nil {
		return nil, err
	}

	ws.RemoteAddr = remoteAddr.String
	ws.LastSeenAt = time.UnixMilli(lastSeen)
	ws.CreatedAt = time.UnixMilli(createdAt)
	if closedAt.Valid {
		ws.ClosedAt = time.UnixMilli(closedAt.Int64)
	}
	return &ws, nil
}
