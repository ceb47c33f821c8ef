package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/waveplan/internal/graph"
)

// AddRelationship persists one typed edge. Self-loops, unknown endpoints
// and duplicate (source, target, type) triples are rejected with nothing
// written.
func (s *SQLiteStore) AddRelationship(ctx context.Context, rel graph.Relationship) error {
	if !rel.Type.IsValid() {
		return fmt.Errorf("invalid relationship type %q", rel.Type)
	}
	if rel.Source == rel.Target {
		return fmt.Errorf("%w: %s", graph.ErrSelfLoop, rel.Source)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range []string{rel.Source, rel.Target} {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrUnknownRelationshipTarget, id)
		}
		if err != nil {
			return fmt.Errorf("failed to check task existence: %w", err)
		}
	}

	var exists int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM relationships WHERE source = ? AND target = ? AND type = ?
	`, rel.Source, rel.Target, rel.Type).Scan(&exists)
	if err == nil {
		return fmt.Errorf("%w: %s", graph.ErrDuplicateRelationship, rel)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check relationship uniqueness: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO relationships (source, target, type) VALUES (?, ?, ?)
	`, rel.Source, rel.Target, rel.Type)
	if err != nil {
		return fmt.Errorf("failed to insert relationship: %w", err)
	}

	if err := bumpGraphVersion(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListRelationships returns every edge, for snapshot loading.
func (s *SQLiteStore) ListRelationships(ctx context.Context) ([]graph.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, target, type FROM relationships ORDER BY source, target, type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var out []graph.Relationship
	for rows.Next() {
		var rel graph.Relationship
		if err := rows.Scan(&rel.Source, &rel.Target, &rel.Type); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relationships: %w", err)
	}
	return out, nil
}

// RelationshipsFor returns every edge touching the given task.
func (s *SQLiteStore) RelationshipsFor(ctx context.Context, taskID string) ([]graph.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, target, type FROM relationships
		WHERE source = ? OR target = ?
		ORDER BY source, target, type
	`, taskID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var out []graph.Relationship
	for rows.Next() {
		var rel graph.Relationship
		if err := rows.Scan(&rel.Source, &rel.Target, &rel.Type); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relationships: %w", err)
	}
	return out, nil
}
