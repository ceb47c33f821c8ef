package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/waveplan/internal/lifecycle"
	"github.com/aristath/waveplan/internal/task"
)

// TransitionTask atomically moves a task from one status to another and
// appends the audit record. The status update is a compare-and-swap: if the
// stored status no longer matches from, nothing is written and
// ErrVersionConflict is returned so the caller can re-read and retry.
func (s *SQLiteStore) TransitionTask(ctx context.Context, taskID string, from, to task.Status, rec lifecycle.Record) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, to, taskID, from)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, taskID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
		}
		if err != nil {
			return fmt.Errorf("failed to check task existence: %w", err)
		}
		return fmt.Errorf("%w: task %s left status %q concurrently", ErrVersionConflict, taskID, from)
	}

	// Next sequence number for this task's audit trail.
	var seq int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM lifecycle WHERE task_id = ?
	`, taskID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to compute lifecycle sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lifecycle (task_id, seq, from_status, to_status, actor, reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, taskID, seq, rec.From, rec.To, rec.Actor, rec.Reason, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append lifecycle record: %w", err)
	}

	// Cancellation invalidates any plan that references the task; routine
	// status churn (grouping, claiming) does not change the graph itself.
	if to == task.StatusCancelled {
		if err := bumpGraphVersion(ctx, tx); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// History returns a task's full append-only audit trail in order.
func (s *SQLiteStore) History(ctx context.Context, taskID string) ([]lifecycle.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, seq, from_status, to_status, actor, reason, timestamp
		FROM lifecycle
		WHERE task_id = ?
		ORDER BY seq
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []lifecycle.Record
	for rows.Next() {
		var rec lifecycle.Record
		if err := rows.Scan(&rec.TaskID, &rec.Seq, &rec.From, &rec.To, &rec.Actor, &rec.Reason, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan lifecycle record: %w", err)
		}
		history = append(history, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return history, nil
}
