// Package planner partitions eligible tasks into waves: ordered batches
// that are internally conflict-free and depend only on earlier batches.
package planner

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/waveplan/internal/graph"
	"github.com/aristath/waveplan/internal/impact"
	"github.com/aristath/waveplan/internal/priority"
	"github.com/aristath/waveplan/internal/task"
)

// Wave is one batch of concurrently-schedulable task IDs.
type Wave struct {
	Number  int
	TaskIDs []string
}

// Result is a computed plan, tagged with the graph version it was computed
// against. A result whose GraphVersion is behind the store's current graph
// version is stale and must be recomputed before dispatch.
type Result struct {
	Waves        []Wave
	GraphVersion int64
	ComputedAt   time.Time
}

// Config tunes the planner.
type Config struct {
	// ConflictParallelism bounds the goroutines used for pairwise conflict
	// detection. Zero or negative means 4.
	ConflictParallelism int `json:"conflict_parallelism"`
}

// Planner computes wave assignments over a graph snapshot.
// Side-effect free: safe to run in parallel across independent snapshots.
type Planner struct {
	cfg     Config
	weights priority.Weights
}

// New creates a Planner with the given tuning.
func New(cfg Config, weights priority.Weights) *Planner {
	if cfg.ConflictParallelism <= 0 {
		cfg.ConflictParallelism = 4
	}
	return &Planner{cfg: cfg, weights: weights}
}

// Plan partitions the eligible tasks into waves.
//
// Algorithm: (1) reject on dependency cycle, reporting the full path;
// (2) each task's wave is 1 + the max wave of its in-set dependencies;
// (3) within each wave, run pairwise conflict detection (impact matrix plus
// explicit conflicts_with edges) and defer the lower-priority member of
// each conflicting pair to the next wave, ties broken by task ID;
// (4) repeat until no same-wave conflicts remain. Terminates because each
// deferral strictly raises a wave floor and waves are bounded by task count.
func (p *Planner) Plan(ctx context.Context, g *graph.Graph, reg *impact.Registry, eligible []*task.Task, graphVersion int64) (*Result, error) {
	now := time.Now().UTC()

	byID := make(map[string]*task.Task, len(eligible))
	ids := make([]string, 0, len(eligible))
	for _, t := range eligible {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)

	order, err := g.TopoOrder(ids)
	if err != nil {
		return nil, err
	}

	inSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		inSet[id] = true
	}

	// Priority per task; computed once against the snapshot so repeated
	// planning over an unchanged graph is reproducible.
	scores := make(map[string]int, len(ids))
	for _, id := range ids {
		scores[id] = priority.Score(byID[id], priority.Context{
			TransitivelyBlocked: len(g.TransitivelyBlocked(id)),
			Now:                 now,
		}, p.weights)
	}

	// floor holds the minimum wave a task may occupy; deferrals raise it.
	floor := make(map[string]int, len(ids))
	for _, id := range ids {
		floor[id] = 1
	}

	wave := make(map[string]int, len(ids))
	for {
		// Recompute wave numbers in topological order.
		for _, id := range order {
			w := floor[id]
			for _, dep := range g.Dependencies(id) {
				if inSet[dep] && wave[dep] >= w {
					w = wave[dep] + 1
				}
			}
			wave[id] = w
		}

		deferred, err := p.deferConflicts(ctx, g, reg, wave, scores)
		if err != nil {
			return nil, err
		}
		if !deferred {
			break
		}
		for id, w := range wave {
			if w > floor[id] {
				floor[id] = w
			}
		}
	}

	return &Result{
		Waves:        collectWaves(wave),
		GraphVersion: graphVersion,
		ComputedAt:   now,
	}, nil
}

// pair is one candidate conflict check within a wave.
type pair struct {
	a, b string
}

// deferConflicts finds conflicting same-wave pairs and raises the floor of
// the losing member of each. Returns true if anything was deferred.
// Pairwise checks are independent, so they run in parallel; only the
// deterministic defer decision is serial.
func (p *Planner) deferConflicts(ctx context.Context, g *graph.Graph, reg *impact.Registry, wave map[string]int, scores map[string]int) (bool, error) {
	byWave := make(map[int][]string)
	for id, w := range wave {
		byWave[w] = append(byWave[w], id)
	}

	var pairs []pair
	waves := make([]int, 0, len(byWave))
	for w := range byWave {
		waves = append(waves, w)
	}
	sort.Ints(waves)
	for _, w := range waves {
		members := byWave[w]
		sort.Strings(members)
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				pairs = append(pairs, pair{a: members[i], b: members[j]})
			}
		}
	}
	if len(pairs) == 0 {
		return false, nil
	}

	verdicts := make([]bool, len(pairs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.cfg.ConflictParallelism)
	for i, pr := range pairs {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			verdicts[i] = p.conflicts(g, reg, pr.a, pr.b)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return false, err
	}

	deferred := false
	for i, pr := range pairs {
		if !verdicts[i] {
			continue
		}
		// Both may have moved since the pair was listed; only pairs still
		// sharing a wave need resolution this round.
		if wave[pr.a] != wave[pr.b] {
			continue
		}
		loser := pr.b
		if scores[pr.a] < scores[pr.b] {
			loser = pr.a
		}
		// Equal scores fall through to pr.b: the lexicographically larger
		// ID defers, keeping results reproducible.
		wave[loser]++
		deferred = true
	}
	return deferred, nil
}

// conflicts reports whether two tasks may not share a wave: either their
// declared impacts collide per the CRUD matrix, or an explicit
// conflicts_with edge joins them.
func (p *Planner) conflicts(g *graph.Graph, reg *impact.Registry, a, b string) bool {
	for _, peer := range g.ExplicitConflicts(a) {
		if peer == b {
			return true
		}
	}
	return impact.TasksConflict(reg.ForTask(a), reg.ForTask(b))
}

func collectWaves(wave map[string]int) []Wave {
	byWave := make(map[int][]string)
	max := 0
	for id, w := range wave {
		byWave[w] = append(byWave[w], id)
		if w > max {
			max = w
		}
	}

	out := make([]Wave, 0, max)
	for w := 1; w <= max; w++ {
		ids := byWave[w]
		if len(ids) == 0 {
			continue
		}
		sort.Strings(ids)
		out = append(out, Wave{Number: len(out) + 1, TaskIDs: ids})
	}
	return out
}
