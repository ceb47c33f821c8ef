package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aristath/waveplan/internal/task"
)

// acceptance criteria are newline-joined in a single column; criteria are
// single-line statements by construction.
func joinAcceptance(criteria []string) string {
	return strings.Join(criteria, "\n")
}

func splitAcceptance(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// CreateTask inserts a new task at version 1 along with its first version
// snapshot, and bumps the graph version. Fails if the ID already exists.
func (s *SQLiteStore) CreateTask(ctx context.Context, t *task.Task) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var deadline any
	if t.Deadline != nil {
		deadline = t.Deadline.UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, category, status, risk, effort, version, supersedes, acceptance, deadline, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, t.ID, t.Title, t.Description, t.Category, t.Status, t.Risk, t.Effort, t.Version, t.Supersedes, joinAcceptance(t.Acceptance), deadline)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	if err := insertVersionSnapshot(ctx, tx, t); err != nil {
		return err
	}
	if err := bumpGraphVersion(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateTask applies a content edit using optimistic concurrency: the write
// succeeds only if the stored version still equals expectedVersion. On
// success the task's version becomes expectedVersion+1 and a snapshot of
// the new version is retained. The previous version row is never touched.
func (s *SQLiteStore) UpdateTask(ctx context.Context, t *task.Task, expectedVersion int) error {
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
		// Distinguish a missing task from a concurrent edit.
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
	if err := bumpGraphVersion(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertVersionSnapshot(ctx context.Context, tx *sql.Tx, t *task.Task) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO task_versions (id, version, title, description, category, risk, effort, acceptance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Version, t.Title, t.Description, t.Category, t.Risk, t.Effort, joinAcceptance(t.Acceptance))
	if err != nil {
		return fmt.Errorf("failed to insert version snapshot: %w", err)
	}
	return nil
}

const taskColumns = `id, title, description, category, status, risk, effort, version, supersedes, acceptance, deadline, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*task.Task, error) {
	t := &task.Task{}
	var acceptance string
	var deadline sql.NullTime
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Category, &t.Status,
		&t.Risk, &t.Effort, &t.Version, &t.Supersedes, &acceptance, &deadline,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Acceptance = splitAcceptance(acceptance)
	if deadline.Valid {
		d := deadline.Time
		t.Deadline = &d
	}
	return t, nil
}

// GetTask retrieves the current version of a task.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return t, nil
}

// GetTaskVersion retrieves a retained prior content version of a task.
func (s *SQLiteStore) GetTaskVersion(ctx context.Context, taskID string, version int) (*task.Task, error) {
	t := &task.Task{Version: version}
	var acceptance string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, category, risk, effort, acceptance
		FROM task_versions
		WHERE id = ? AND version = ?
	`, taskID, version).Scan(&t.ID, &t.Title, &t.Description, &t.Category, &t.Risk, &t.Effort, &acceptance)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s version %d", ErrUnknownTask, taskID, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task version: %w", err)
	}
	t.Acceptance = splitAcceptance(acceptance)
	return t, nil
}

// ListTasks returns all current tasks ordered by creation time.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// ListTasksByStatus returns all tasks with the given status.
func (s *SQLiteStore) ListTasksByStatus(ctx context.Context, status task.Status) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at, id`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}
