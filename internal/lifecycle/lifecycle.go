// Package lifecycle is the authoritative task state machine. Every status
// change flows through Tracker.Transition, which enforces the transition
// table and appends one immutable audit record per change.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/waveplan/internal/task"
)

// Record is one immutable audit entry for a single status transition.
type Record struct {
	TaskID    string
	Seq       int
	From      task.Status
	To        task.Status
	Actor     string
	Reason    string
	Timestamp time.Time
}

// InvalidTransitionError reports an illegal status transition. No state is
// mutated when it is returned.
type InvalidTransitionError struct {
	TaskID string
	From   task.Status
	To     task.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for task %q: %s -> %s", e.TaskID, e.From, e.To)
}

// transitions is the legal transition table. Terminal states (completed,
// cancelled) have no outgoing edges.
var transitions = map[task.Status][]task.Status{
	task.StatusDraft:      {task.StatusPending, task.StatusCancelled},
	task.StatusPending:    {task.StatusEvaluating, task.StatusBlocked, task.StatusInProgress, task.StatusCancelled},
	task.StatusEvaluating: {task.StatusPending},
	task.StatusBlocked:    {task.StatusPending, task.StatusCancelled},
	task.StatusInProgress: {task.StatusValidating, task.StatusFailed},
	task.StatusValidating: {task.StatusCompleted, task.StatusFailed},
	task.StatusFailed:     {task.StatusInProgress, task.StatusBlocked, task.StatusCancelled},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to task.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Store is the persistence surface the tracker needs: a serialized
// compare-and-swap of task status plus an appended audit record.
type Store interface {
	// TransitionTask atomically verifies the task's current status matches
	// from, sets it to to, and appends the record. Must fail without
	// mutation if the stored status no longer matches.
	TransitionTask(ctx context.Context, taskID string, from, to task.Status, rec Record) error
	// GetTask returns the current version of a task.
	GetTask(ctx context.Context, taskID string) (*task.Task, error)
}

// Publisher receives a record after it has been durably appended.
type Publisher interface {
	StatusChanged(rec Record)
}

// Tracker validates and applies status transitions.
type Tracker struct {
	store Store
	pub   Publisher // optional
}

// NewTracker creates a Tracker over the given store. pub may be nil.
func NewTracker(store Store, pub Publisher) *Tracker {
	return &Tracker{store: store, pub: pub}
}

// Transition moves a task to a new status, appending one audit record.
// Illegal transitions return *InvalidTransitionError and change nothing.
func (tr *Tracker) Transition(ctx context.Context, taskID string, to task.Status, actor, reason string) (*Record, error) {
	if !to.IsValid() {
		return nil, fmt.Errorf("unknown status %q", to)
	}

	t, err := tr.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(t.Status, to) {
		return nil, &InvalidTransitionError{TaskID: taskID, From: t.Status, To: to}
	}

	rec := Record{
		TaskID:    taskID,
		From:      t.Status,
		To:        to,
		Actor:     actor,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	if err := tr.store.TransitionTask(ctx, taskID, t.Status, to, rec); err != nil {
		return nil, err
	}

	if tr.pub != nil {
		tr.pub.StatusChanged(rec)
	}
	return &rec, nil
}
