// Package graph maintains the relationship graph between tasks and answers
// the structural questions wave planning and cascade analysis depend on:
// which edges affect scheduling, whether the dependency subset is acyclic,
// and what lies downstream of a task.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aristath/waveplan/internal/task"
)

// ErrUnknownTarget is returned when a relationship references a task that
// is not in the graph.
var ErrUnknownTarget = errors.New("unknown relationship target")

// ErrSelfLoop is returned when a relationship's source and target are the
// same task.
var ErrSelfLoop = errors.New("relationship source and target are the same task")

// ErrDuplicateRelationship is returned when the same (source, target, type)
// edge is added twice.
var ErrDuplicateRelationship = errors.New("relationship already exists")

// CycleError reports a dependency cycle among scheduling edges.
// Path holds the full cycle, first and last element equal, so callers can
// break it without re-computation.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic dependency: %s", strings.Join(e.Path, " -> "))
}

// Graph is a snapshot of tasks and the typed relationships between them.
// Reads return copies so callers never observe later mutations.
type Graph struct {
	mu         sync.RWMutex
	tasks      map[string]*task.Task
	rels       map[string]Relationship // keyed by Relationship.Key()
	deps       map[string][]string     // taskID -> IDs it depends on
	dependents map[string][]string     // taskID -> IDs that depend on it
	conflicts  map[string][]string     // taskID -> explicit conflicts_with peers
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		tasks:      make(map[string]*task.Task),
		rels:       make(map[string]Relationship),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
		conflicts:  make(map[string][]string),
	}
}

// AddTask adds a task to the graph. Returns an error if the ID already exists.
func (g *Graph) AddTask(t *task.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.tasks[t.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", t.ID)
	}
	g.tasks[t.ID] = t.Clone()
	return nil
}

// AddRelationship validates and adds a typed edge.
// depends_on(A, B) and blocks(B, A) both make A wait for B; conflicts_with
// is symmetric.
func (g *Graph) AddRelationship(rel Relationship) error {
	if !rel.Type.IsValid() {
		return fmt.Errorf("invalid relationship type %q", rel.Type)
	}
	if rel.Source == rel.Target {
		return fmt.Errorf("%w: %s", ErrSelfLoop, rel.Source)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.tasks[rel.Source]; !ok {
		return fmt.Errorf("%w: source %q", ErrUnknownTarget, rel.Source)
	}
	if _, ok := g.tasks[rel.Target]; !ok {
		return fmt.Errorf("%w: target %q", ErrUnknownTarget, rel.Target)
	}
	if _, ok := g.rels[rel.Key()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRelationship, rel)
	}

	g.rels[rel.Key()] = rel

	switch rel.Type {
	case RelDependsOn:
		// Source waits for target.
		g.deps[rel.Source] = append(g.deps[rel.Source], rel.Target)
		g.dependents[rel.Target] = append(g.dependents[rel.Target], rel.Source)
	case RelBlocks:
		// Source blocks target: target waits for source.
		g.deps[rel.Target] = append(g.deps[rel.Target], rel.Source)
		g.dependents[rel.Source] = append(g.dependents[rel.Source], rel.Target)
	case RelConflictsWith:
		g.conflicts[rel.Source] = append(g.conflicts[rel.Source], rel.Target)
		g.conflicts[rel.Target] = append(g.conflicts[rel.Target], rel.Source)
	}
	return nil
}

// Get returns a copy of the task by ID.
func (g *Graph) Get(taskID string) (*task.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	t, ok := g.tasks[taskID]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Tasks returns copies of all tasks in the graph.
func (g *Graph) Tasks() []*task.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*task.Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Relationships returns all edges, sorted for deterministic iteration.
func (g *Graph) Relationships() []Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Relationship, 0, len(g.rels))
	for _, rel := range g.rels {
		out = append(out, rel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Dependencies returns the IDs the given task waits for, sorted.
func (g *Graph) Dependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedCopy(g.deps[taskID])
}

// Dependents returns the IDs that wait for the given task, sorted.
func (g *Graph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedCopy(g.dependents[taskID])
}

// ExplicitConflicts returns the peers joined to taskID by conflicts_with
// edges, sorted.
func (g *Graph) ExplicitConflicts(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedCopy(g.conflicts[taskID])
}

// TransitivelyBlocked returns every task downstream of taskID through
// scheduling edges, i.e. everything that cannot start until it finishes.
func (g *Graph) TransitivelyBlocked(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	stack := append([]string(nil), g.dependents[taskID]...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		stack = append(stack, g.dependents[id]...)
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
