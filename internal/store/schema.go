package store

import (
	"context"
	"fmt"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		category TEXT,
		status TEXT NOT NULL,
		risk TEXT NOT NULL,
		effort TEXT NOT NULL,
		version INTEGER NOT NULL,
		supersedes TEXT,
		acceptance TEXT,
		deadline DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS task_versions (
		id TEXT NOT NULL,
		version INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		category TEXT,
		risk TEXT NOT NULL,
		effort TEXT NOT NULL,
		acceptance TEXT,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id, version),
		FOREIGN KEY (id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS impacts (
		task_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		op TEXT NOT NULL,
		path TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 1.0,
		provenance TEXT NOT NULL DEFAULT 'declared',
		PRIMARY KEY (task_id, kind, op, path, name),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_impacts_task_id ON impacts(task_id);

	CREATE TABLE IF NOT EXISTS relationships (
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		type TEXT NOT NULL,
		PRIMARY KEY (source, target, type),
		FOREIGN KEY (source) REFERENCES tasks(id) ON DELETE CASCADE,
		FOREIGN KEY (target) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target);

	CREATE TABLE IF NOT EXISTS lifecycle (
		task_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		actor TEXT,
		reason TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (task_id, seq),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO meta (key, value) VALUES ('graph_version', 0);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
