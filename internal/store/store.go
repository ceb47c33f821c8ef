// Package store persists tasks, impacts, relationships and lifecycle
// records in SQLite, and maintains the graph version counter that wave
// plans are validated against before dispatch.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrUnknownTask is returned when an operation references a task ID that
// does not exist.
var ErrUnknownTask = errors.New("unknown task")

// ErrUnknownRelationshipTarget is returned when a relationship references a
// task that does not exist.
var ErrUnknownRelationshipTarget = errors.New("unknown relationship target")

// ErrVersionConflict is returned when an optimistic write observes a task
// whose version or status changed since it was read. Recoverable: re-read
// and retry.
var ErrVersionConflict = errors.New("version conflict")

// SQLiteStore is the SQLite-backed store.
type SQLiteStore struct {
	db *sql.DB
}

// NewStore creates a SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode and busy timeout.
func NewStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return initStore(ctx, db)
}

// NewMemoryStore creates an in-memory store for testing.
// Uses a shared cache so multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}
	return initStore(ctx, db)
}

func initStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	// Enable foreign keys via PRAGMA (required for modernc.org/sqlite).
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// One connection for primary queries, one for subqueries.
	db.SetMaxOpenConns(2)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GraphVersion returns the current graph version. It increments on task
// content writes, impact and relationship writes, and cancellation; routine
// status churn leaves it alone, so executing a plan never stales it. A plan
// computed against an older version is stale.
func (s *SQLiteStore) GraphVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'graph_version'`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to read graph version: %w", err)
	}
	return v, nil
}

// bumpGraphVersion increments the counter inside an open transaction.
func bumpGraphVersion(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `UPDATE meta SET value = value + 1 WHERE key = 'graph_version'`); err != nil {
		return fmt.Errorf("failed to bump graph version: %w", err)
	}
	return nil
}
