// Package engine is the service facade over the task graph: it wires the
// store, lifecycle tracker, planner, cascade analyzer and event bus, and
// exposes the operations upstream producers, executors and the scheduling
// loop call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/waveplan/internal/atomicity"
	"github.com/aristath/waveplan/internal/cascade"
	"github.com/aristath/waveplan/internal/config"
	"github.com/aristath/waveplan/internal/events"
	"github.com/aristath/waveplan/internal/graph"
	"github.com/aristath/waveplan/internal/impact"
	"github.com/aristath/waveplan/internal/lifecycle"
	"github.com/aristath/waveplan/internal/planner"
	"github.com/aristath/waveplan/internal/store"
	"github.com/aristath/waveplan/internal/task"
)

// Engine coordinates all components over one store.
type Engine struct {
	store   *store.SQLiteStore
	bus     *events.Bus
	tracker *lifecycle.Tracker
	planner *planner.Planner
	cfg     *config.Config
	review  *ReviewQueue
}

// busPublisher adapts the event bus to the tracker's Publisher interface.
type busPublisher struct {
	bus *events.Bus
}

func (p *busPublisher) StatusChanged(rec lifecycle.Record) {
	p.bus.Publish(events.TopicTask, events.StatusChangedEvent{
		ID:        rec.TaskID,
		From:      rec.From,
		To:        rec.To,
		Actor:     rec.Actor,
		Reason:    rec.Reason,
		Timestamp: rec.Timestamp,
	})
}

// New creates an Engine over the given store and bus.
func New(s *store.SQLiteStore, bus *events.Bus, cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{
		store:   s,
		bus:     bus,
		cfg:     cfg,
		planner: planner.New(cfg.Planner, cfg.Priority),
	}
	e.tracker = lifecycle.NewTracker(s, &busPublisher{bus: bus})
	e.review = NewReviewQueue(reviewQueueSize, e.resolveProposal)
	return e
}

// Tracker exposes the lifecycle tracker for callers that transition tasks
// directly (executors, the review surface).
func (e *Engine) Tracker() *lifecycle.Tracker { return e.tracker }

// Review exposes the proposal review queue.
func (e *Engine) Review() *ReviewQueue { return e.review }

// Store exposes read access for CLI display surfaces.
func (e *Engine) Store() *store.SQLiteStore { return e.store }

// CreateSpec is the upstream producer's task submission. Content is opaque
// to the engine; only structure and graph consistency are validated.
type CreateSpec struct {
	Title       string
	Description string
	Category    string
	Risk        task.Risk
	Effort      task.Effort
	Acceptance  []string
	Deadline    *time.Time
	Supersedes  string
	Impacts     []impact.Impact
	// Relationships whose Source is empty are rooted at the new task.
	Relationships []graph.Relationship
}

// CreateTask persists a new draft task with its initial impacts and
// relationships, validates atomicity, and promotes it to pending when the
// validation passes. The returned result carries any violations; a task
// with error-severity violations stays in draft for decomposition.
func (e *Engine) CreateTask(ctx context.Context, spec CreateSpec) (*task.Task, *atomicity.Result, error) {
	t := task.New(spec.Title)
	t.Description = spec.Description
	t.Category = spec.Category
	if spec.Risk != "" {
		t.Risk = spec.Risk
	}
	if spec.Effort != "" {
		t.Effort = spec.Effort
	}
	t.Acceptance = append([]string(nil), spec.Acceptance...)
	t.Deadline = spec.Deadline
	t.Supersedes = spec.Supersedes

	if err := e.store.CreateTask(ctx, t); err != nil {
		return nil, nil, err
	}

	for i := range spec.Impacts {
		im := spec.Impacts[i]
		im.TaskID = t.ID
		if err := e.store.AddImpact(ctx, im); err != nil {
			return nil, nil, err
		}
	}
	for _, rel := range spec.Relationships {
		if rel.Source == "" {
			rel.Source = t.ID
		}
		if err := e.store.AddRelationship(ctx, rel); err != nil {
			return nil, nil, err
		}
	}

	e.bus.Publish(events.TopicTask, events.TaskCreatedEvent{
		ID: t.ID, Title: t.Title, Timestamp: time.Now().UTC(),
	})

	impacts, err := e.store.ListImpacts(ctx, t.ID)
	if err != nil {
		return nil, nil, err
	}
	res := atomicity.Validate(t, impacts, e.cfg.Atomicity)
	if res.OK {
		if _, err := e.tracker.Transition(ctx, t.ID, task.StatusPending, "engine", "atomicity validation passed"); err != nil {
			return nil, nil, err
		}
		t.Status = task.StatusPending
	}
	return t, &res, nil
}

// Promote re-validates a draft task and moves it to pending. Returns
// *AtomicityError without changing state when validation still fails.
func (e *Engine) Promote(ctx context.Context, taskID string) error {
	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	impacts, err := e.store.ListImpacts(ctx, taskID)
	if err != nil {
		return err
	}
	res := atomicity.Validate(t, impacts, e.cfg.Atomicity)
	if !res.OK {
		return &AtomicityError{TaskID: taskID, Result: res}
	}
	_, err = e.tracker.Transition(ctx, taskID, task.StatusPending, "engine", "atomicity validation passed")
	return err
}

// RegisterImpact adds one declared impact to an existing task.
func (e *Engine) RegisterImpact(ctx context.Context, im impact.Impact) error {
	return e.store.AddImpact(ctx, im)
}

// AddRelationship adds one typed edge between existing tasks.
func (e *Engine) AddRelationship(ctx context.Context, rel graph.Relationship) error {
	return e.store.AddRelationship(ctx, rel)
}

// EditTask applies a content edit. The caller passes the task as read
// (its Version field is the optimistic check) plus the complete new impact
// set. On success the version is bumped, the prior version is retained,
// and a cascade analysis over the updated graph is returned. autoApply
// decides whether the analysis's corrective proposals are applied
// immediately or queued for external review; it is caller policy, never
// engine state.
func (e *Engine) EditTask(ctx context.Context, edited *task.Task, newImpacts []impact.Impact, autoApply bool) (*cascade.Analysis, error) {
	original, err := e.store.GetTask(ctx, edited.ID)
	if err != nil {
		return nil, err
	}
	oldImpacts, err := e.store.ListImpacts(ctx, edited.ID)
	if err != nil {
		return nil, err
	}

	for i := range newImpacts {
		newImpacts[i].TaskID = edited.ID
	}

	expected := edited.Version
	if sameImpactSet(oldImpacts, newImpacts) {
		// Metadata-only edit; no need to rewrite the impact rows.
		if err := e.store.UpdateTask(ctx, edited, expected); err != nil {
			return nil, err
		}
	} else if err := e.store.EditTask(ctx, edited, expected, newImpacts); err != nil {
		return nil, err
	}

	e.bus.Publish(events.TopicTask, events.TaskEditedEvent{
		ID:         edited.ID,
		OldVersion: expected,
		NewVersion: edited.Version,
		Timestamp:  time.Now().UTC(),
	})

	snap, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	g, err := snap.Graph()
	if err != nil {
		return nil, err
	}
	reg, err := snap.Registry()
	if err != nil {
		return nil, err
	}

	analysis := cascade.Analyze(original, edited, oldImpacts, newImpacts, reg, g)

	if len(analysis.Flags) > 0 {
		flagged := make([]string, 0, len(analysis.Flags))
		for _, f := range analysis.Flags {
			flagged = append(flagged, f.TaskID)
		}
		e.bus.Publish(events.TopicTask, events.CascadeFlaggedEvent{
			EditedID: edited.ID, Flagged: flagged, Timestamp: time.Now().UTC(),
		})
	}

	if autoApply {
		for _, p := range analysis.Proposals {
			if err := e.ApplyProposal(ctx, p); err != nil {
				return analysis, err
			}
		}
	} else {
		e.review.Enqueue(analysis.Proposals)
	}
	return analysis, nil
}

// sameImpactSet reports whether two impact sets declare exactly the same
// impacts, including confidence and provenance.
func sameImpactSet(a, b []impact.Impact) bool {
	if len(a) != len(b) {
		return false
	}
	byKey := make(map[string]impact.Impact, len(a))
	for _, im := range a {
		byKey[im.Key()] = im
	}
	for _, im := range b {
		prev, ok := byKey[im.Key()]
		if !ok || prev.Confidence != im.Confidence || prev.Provenance != im.Provenance {
			return false
		}
	}
	return true
}

// ApplyProposal applies one corrective edit from a cascade analysis.
// An edge that already exists counts as applied.
func (e *Engine) ApplyProposal(ctx context.Context, p cascade.Proposal) error {
	if p.Relationship != nil {
		err := e.store.AddRelationship(ctx, *p.Relationship)
		if err != nil && !errors.Is(err, graph.ErrDuplicateRelationship) {
			return err
		}
	}
	e.bus.Publish(events.TopicTask, events.ProposalResolvedEvent{
		ID: p.TaskID, Applied: true, Detail: p.Detail, Timestamp: time.Now().UTC(),
	})
	return nil
}

// RejectProposal records a rejection; nothing else changes.
func (e *Engine) RejectProposal(ctx context.Context, p cascade.Proposal, reason string) error {
	e.bus.Publish(events.TopicTask, events.ProposalResolvedEvent{
		ID: p.TaskID, Applied: false, Detail: reason, Timestamp: time.Now().UTC(),
	})
	return nil
}

// resolveProposal is the review queue's decision sink.
func (e *Engine) resolveProposal(ctx context.Context, p cascade.Proposal, approved bool, reason string) error {
	if approved {
		return e.ApplyProposal(ctx, p)
	}
	return e.RejectProposal(ctx, p, reason)
}

// PlanWaves computes a wave plan over the currently eligible tasks
// against a consistent snapshot. Eligible means pending, atomicity-valid,
// and every dependency either completed or itself in the plan. Eligible
// tasks pass through evaluating while grouped and return to pending; the
// result is tagged with the snapshot's graph version for staleness checks.
func (e *Engine) PlanWaves(ctx context.Context) (*planner.Result, error) {
	snap, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	impactsByTask := make(map[string][]impact.Impact)
	for _, im := range snap.Impacts {
		impactsByTask[im.TaskID] = append(impactsByTask[im.TaskID], im)
	}

	candidates := make(map[string]*task.Task)
	for _, t := range snap.Tasks {
		if t.Status != task.StatusPending {
			continue
		}
		if res := atomicity.Validate(t, impactsByTask[t.ID], e.cfg.Atomicity); !res.OK {
			continue
		}
		candidates[t.ID] = t
	}

	g, err := snap.Graph()
	if err != nil {
		return nil, err
	}
	reg, err := snap.Registry()
	if err != nil {
		return nil, err
	}

	status := make(map[string]task.Status, len(snap.Tasks))
	for _, t := range snap.Tasks {
		status[t.ID] = t.Status
	}

	// A dependency outside the candidate set is satisfied only once it has
	// completed; anything else (claimed, draft, still validating) must not
	// let the dependent into a wave. Exclusion cascades, so iterate to a
	// fixpoint.
	for changed := true; changed; {
		changed = false
		for id := range candidates {
			for _, dep := range g.Dependencies(id) {
				if _, planned := candidates[dep]; planned {
					continue
				}
				if status[dep] == task.StatusCompleted {
					continue
				}
				delete(candidates, id)
				changed = true
				break
			}
		}
	}

	eligible := make([]*task.Task, 0, len(candidates))
	for _, t := range snap.Tasks {
		if _, ok := candidates[t.ID]; ok {
			eligible = append(eligible, t)
		}
	}

	grouped, err := e.groupForPlanning(ctx, eligible)
	if err != nil {
		return nil, err
	}

	result, err := e.planner.Plan(ctx, g, reg, eligible, snap.GraphVersion)
	e.ungroup(ctx, grouped)
	if err != nil {
		return nil, err
	}

	taskCount := 0
	for _, w := range result.Waves {
		taskCount += len(w.TaskIDs)
	}
	e.bus.Publish(events.TopicPlan, events.PlanComputedEvent{
		GraphVersion: result.GraphVersion,
		WaveCount:    len(result.Waves),
		TaskCount:    taskCount,
		Timestamp:    time.Now().UTC(),
	})
	return result, nil
}

// groupForPlanning marks eligible tasks as evaluating. A task that slipped
// away since the snapshot (claimed by an executor, cancelled) fails the
// transition; the ones already grouped are returned to pending so a failed
// planning run never strands tasks in evaluating.
func (e *Engine) groupForPlanning(ctx context.Context, eligible []*task.Task) ([]*task.Task, error) {
	grouped := make([]*task.Task, 0, len(eligible))
	for _, t := range eligible {
		if _, err := e.tracker.Transition(ctx, t.ID, task.StatusEvaluating, "engine", "grouped for planning"); err != nil {
			e.ungroup(ctx, grouped)
			return nil, err
		}
		grouped = append(grouped, t)
	}
	return grouped, nil
}

// ungroup takes the grouping mark off again.
func (e *Engine) ungroup(ctx context.Context, grouped []*task.Task) {
	for _, t := range grouped {
		_, _ = e.tracker.Transition(ctx, t.ID, task.StatusPending, "engine", "planning finished")
	}
}

// PlanIsCurrent reports whether a computed plan may still be dispatched.
func (e *Engine) PlanIsCurrent(ctx context.Context, r *planner.Result) (bool, error) {
	cur, err := e.store.GraphVersion(ctx)
	if err != nil {
		return false, err
	}
	return cur == r.GraphVersion, nil
}

// Claim moves a pending task to in_progress on behalf of an executor.
func (e *Engine) Claim(ctx context.Context, taskID, actor string) error {
	_, err := e.tracker.Transition(ctx, taskID, task.StatusInProgress, actor, "claimed by executor")
	return err
}

// ReportOutcome records an executor's result: the task passes through
// validating and lands in completed or failed.
func (e *Engine) ReportOutcome(ctx context.Context, taskID, actor string, passed bool, reason string) error {
	if _, err := e.tracker.Transition(ctx, taskID, task.StatusValidating, actor, "executor reported outcome"); err != nil {
		return err
	}
	to := task.StatusCompleted
	if !passed {
		to = task.StatusFailed
	}
	_, err := e.tracker.Transition(ctx, taskID, to, actor, reason)
	return err
}

// Cancel moves a task to the terminal cancelled state.
func (e *Engine) Cancel(ctx context.Context, taskID, actor, reason string) error {
	_, err := e.tracker.Transition(ctx, taskID, task.StatusCancelled, actor, reason)
	return err
}

// RefreshBlocked reconciles pending/blocked statuses against the graph:
// a pending task with a failed or cancelled dependency, or an explicit
// conflict peer currently executing, becomes blocked; a blocked task whose
// blockers are gone returns to pending.
func (e *Engine) RefreshBlocked(ctx context.Context) error {
	snap, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	g, err := snap.Graph()
	if err != nil {
		return err
	}

	status := make(map[string]task.Status, len(snap.Tasks))
	for _, t := range snap.Tasks {
		status[t.ID] = t.Status
	}

	blockedBy := func(id string) string {
		for _, dep := range g.Dependencies(id) {
			switch status[dep] {
			case task.StatusFailed:
				return fmt.Sprintf("dependency %q failed", dep)
			case task.StatusCancelled:
				return fmt.Sprintf("dependency %q was cancelled", dep)
			}
		}
		for _, peer := range g.ExplicitConflicts(id) {
			if status[peer] == task.StatusInProgress || status[peer] == task.StatusValidating {
				return fmt.Sprintf("conflicting task %q is executing", peer)
			}
		}
		return ""
	}

	for _, t := range snap.Tasks {
		switch t.Status {
		case task.StatusPending:
			if reason := blockedBy(t.ID); reason != "" {
				if _, err := e.tracker.Transition(ctx, t.ID, task.StatusBlocked, "engine", reason); err != nil {
					return err
				}
			}
		case task.StatusBlocked:
			if blockedBy(t.ID) == "" {
				if _, err := e.tracker.Transition(ctx, t.ID, task.StatusPending, "engine", "blocker resolved"); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// History returns a task's append-only audit trail.
func (e *Engine) History(ctx context.Context, taskID string) ([]lifecycle.Record, error) {
	return e.store.History(ctx, taskID)
}
