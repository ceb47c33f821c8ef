package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/waveplan/internal/impact"
	"github.com/aristath/waveplan/internal/task"
)

// EditTask applies a content edit and the task's new impact set in one
// transaction: optimistic version check, version bump with a retained
// snapshot, impact replacement, graph version bump. Either all of it lands
// or none of it does.
func (s *SQLiteStore) EditTask(ctx context.Context, t *task.Task, expectedVersion int, impacts []impact.Impact) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var deadline any
	if t.Deadline != nil {
		deadline = t.Deadline.UTC()
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, category = ?, risk = ?, effort = ?,
			version = ?, supersedes = ?, acceptance = ?, deadline = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`, t.Title, t.Description, t.Category, t.Risk, t.Effort,
		expectedVersion+1, t.Supersedes, joinAcceptance(t.Acceptance), deadline,
		t.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, t.ID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrUnknownTask, t.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to check task existence: %w", err)
		}
		return fmt.Errorf("%w: task %s was modified concurrently (expected version %d)", ErrVersionConflict, t.ID, expectedVersion)
	}

	t.Version = expectedVersion + 1
	if err := insertVersionSnapshot(ctx, tx, t); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM impacts WHERE task_id = ?`, t.ID); err != nil {
		return fmt.Errorf("failed to delete old impacts: %w", err)
	}
	seen := make(map[string]bool, len(impacts))
	for _, im := range impacts {
		if seen[im.Key()] {
			return &impact.ErrDuplicateImpact{Existing: im}
		}
		seen[im.Key()] = true
		_, err := tx.ExecContext(ctx, `
			INSERT INTO impacts (task_id, kind, op, path, name, confidence, provenance)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, t.ID, im.Kind, im.Op, im.Path, im.Name, im.Confidence, im.Provenance)
		if err != nil {
			return fmt.Errorf("failed to insert impact: %w", err)
		}
	}

	if err := bumpGraphVersion(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
