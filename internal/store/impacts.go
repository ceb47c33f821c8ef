package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/waveplan/internal/impact"
)

// AddImpact persists one declared impact. Violating the per-task
// uniqueness invariant returns *impact.ErrDuplicateImpact; referencing a
// missing task returns ErrUnknownTask. Nothing is written on failure.
func (s *SQLiteStore) AddImpact(ctx context.Context, im impact.Impact) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, im.TaskID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", ErrUnknownTask, im.TaskID)
	}
	if err != nil {
		return fmt.Errorf("failed to check task existence: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM impacts WHERE task_id = ? AND kind = ? AND op = ? AND path = ? AND name = ?
	`, im.TaskID, im.Kind, im.Op, im.Path, im.Name).Scan(&exists)
	if err == nil {
		return &impact.ErrDuplicateImpact{Existing: im}
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check impact uniqueness: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO impacts (task_id, kind, op, path, name, confidence, provenance)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, im.TaskID, im.Kind, im.Op, im.Path, im.Name, im.Confidence, im.Provenance)
	if err != nil {
		return fmt.Errorf("failed to insert impact: %w", err)
	}

	if err := bumpGraphVersion(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ReplaceImpacts swaps a task's entire declared impact set atomically,
// used when a content edit changes what the task touches.
func (s *SQLiteStore) ReplaceImpacts(ctx context.Context, taskID string, impacts []impact.Impact) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, taskID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if err != nil {
		return fmt.Errorf("failed to check task existence: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM impacts WHERE task_id = ?`, taskID); err != nil {
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
		`, taskID, im.Kind, im.Op, im.Path, im.Name, im.Confidence, im.Provenance)
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

const impactColumns = `task_id, kind, op, path, name, confidence, provenance`

// ListImpacts returns all impacts declared by one task.
func (s *SQLiteStore) ListImpacts(ctx context.Context, taskID string) ([]impact.Impact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+impactColumns+` FROM impacts WHERE task_id = ? ORDER BY kind, path, name, op
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query impacts: %w", err)
	}
	defer rows.Close()
	return scanImpacts(rows)
}

func scanImpacts(rows *sql.Rows) ([]impact.Impact, error) {
	var out []impact.Impact
	for rows.Next() {
		var im impact.Impact
		if err := rows.Scan(&im.TaskID, &im.Kind, &im.Op, &im.Path, &im.Name, &im.Confidence, &im.Provenance); err != nil {
			return nil, fmt.Errorf("failed to scan impact: %w", err)
		}
		out = append(out, im)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating impacts: %w", err)
	}
	return out, nil
}
