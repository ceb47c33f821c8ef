package graph

import (
	"fmt"
	"sort"

	"github.com/gammazero/toposort"
)

// DetectCycle runs depth-first search with an explicit recursion stack over
// the dependency edges restricted to the given task IDs. Returns a
// *CycleError carrying the full cycle path, or nil if the subset is acyclic.
// Dependencies on tasks outside the subset are ignored; they are resolved
// (or not) by lifecycle status, not by ordering within a plan.
func (g *Graph) DetectCycle(ids []string) *CycleError {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		inSet[id] = true
	}

	const (
		white = 0 // unvisited
		grey  = 1 // on the recursion stack
		black = 2 // fully explored
	)
	color := make(map[string]int, len(ids))
	var stack []string

	var visit func(id string) *CycleError
	visit = func(id string) *CycleError {
		color[id] = grey
		stack = append(stack, id)

		deps := sortedCopy(g.deps[id])
		for _, dep := range deps {
			if !inSet[dep] {
				continue
			}
			switch color[dep] {
			case grey:
				// Found a back edge; slice the stack from dep onward.
				start := 0
				for i, sid := range stack {
					if sid == dep {
						start = i
						break
					}
				}
				path := append([]string(nil), stack[start:]...)
				path = append(path, dep)
				return &CycleError{Path: path}
			case white:
				if cerr := visit(dep); cerr != nil {
					return cerr
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	// Deterministic visit order keeps reported cycle paths reproducible.
	sorted := sortedCopy(ids)
	for _, id := range sorted {
		if color[id] == white {
			if cerr := visit(id); cerr != nil {
				return cerr
			}
		}
	}
	return nil
}

// TopoOrder returns the task IDs of the given subset in topological order
// of their dependency edges. Runs DetectCycle first so failures carry the
// full cycle path rather than the sorter's opaque error.
func (g *Graph) TopoOrder(ids []string) ([]string, error) {
	if cerr := g.DetectCycle(ids); cerr != nil {
		return nil, cerr
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	inSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		inSet[id] = true
	}

	var edges []toposort.Edge
	for _, id := range sortedCopy(ids) {
		deps := sortedCopy(g.deps[id])
		hasDep := false
		for _, dep := range deps {
			if inSet[dep] {
				edges = append(edges, toposort.Edge{dep, id})
				hasDep = true
			}
		}
		if !hasDep {
			edges = append(edges, toposort.Edge{nil, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		// DetectCycle already vetted the subset; this is unreachable in
		// practice but surfaced rather than swallowed.
		return nil, fmt.Errorf("topological sort failed: %w", err)
	}

	order := make([]string, 0, len(ids))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	if len(order) != len(ids) {
		missing := missingIDs(ids, order)
		sort.Strings(missing)
		return nil, fmt.Errorf("topological sort lost %d tasks: %v", len(missing), missing)
	}
	return order, nil
}

func missingIDs(want, got []string) []string {
	found := make(map[string]bool, len(got))
	for _, id := range got {
		found[id] = true
	}
	var missing []string
	for _, id := range want {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
