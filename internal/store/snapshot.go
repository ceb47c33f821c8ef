package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/waveplan/internal/graph"
	"github.com/aristath/waveplan/internal/impact"
	"github.com/aristath/waveplan/internal/task"
)

// Snapshot is a consistent read of the whole graph, taken in a single
// transaction. Wave planning and cascade analysis run against snapshots so
// they never observe a graph mutated mid-computation.
type Snapshot struct {
	Tasks         []*task.Task
	Impacts       []impact.Impact
	Relationships []graph.Relationship
	GraphVersion  int64
}

// LoadSnapshot reads tasks, impacts, relationships and the graph version
// inside one transaction.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	snap := &Snapshot{}

	err = tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'graph_version'`).Scan(&snap.GraphVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph version: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		snap.Tasks = append(snap.Tasks, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `SELECT `+impactColumns+` FROM impacts ORDER BY task_id, kind, path, name, op`)
	if err != nil {
		return nil, fmt.Errorf("failed to query impacts: %w", err)
	}
	snap.Impacts, err = scanImpacts(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx, `SELECT source, target, type FROM relationships ORDER BY source, target, type`)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	for rows.Next() {
		var rel graph.Relationship
		if err := rows.Scan(&rel.Source, &rel.Target, &rel.Type); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		snap.Relationships = append(snap.Relationships, rel)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating relationships: %w", err)
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to close snapshot transaction: %w", err)
	}
	return snap, nil
}

// Graph materializes the snapshot into a relationship graph.
func (s *Snapshot) Graph() (*graph.Graph, error) {
	g := graph.New()
	for _, t := range s.Tasks {
		if err := g.AddTask(t); err != nil {
			return nil, err
		}
	}
	for _, rel := range s.Relationships {
		if err := g.AddRelationship(rel); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Registry materializes the snapshot's impacts into a registry.
func (s *Snapshot) Registry() (*impact.Registry, error) {
	reg := impact.NewRegistry()
	for _, im := range s.Impacts {
		if err := reg.Register(im); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
