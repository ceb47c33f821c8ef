// Package task defines the task model: the atomic, independently-verifiable
// unit of work the engine schedules.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the current lifecycle state of a task.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusPending    Status = "pending"
	StatusEvaluating Status = "evaluating"
	StatusBlocked    Status = "blocked"
	StatusInProgress Status = "in_progress"
	StatusValidating Status = "validating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// ValidStatuses returns all valid status values.
func ValidStatuses() []Status {
	return []Status{
		StatusDraft, StatusPending, StatusEvaluating, StatusBlocked,
		StatusInProgress, StatusValidating, StatusCompleted,
		StatusFailed, StatusCancelled,
	}
}

// IsValid returns true if s is a known status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusEvaluating, StatusBlocked,
		StatusInProgress, StatusValidating, StatusCompleted,
		StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further transitions are allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Effort buckets a task's estimated size. EffortTooLarge is never
// schedulable; the atomicity validator rejects it and recommends
// decomposition.
type Effort string

const (
	EffortTrivial  Effort = "trivial"
	EffortSmall    Effort = "small"
	EffortMedium   Effort = "medium"
	EffortLarge    Effort = "large"
	EffortTooLarge Effort = "too_large"
)

// Risk is the declared risk level of a task.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Task is an atomic unit of work.
type Task struct {
	ID          string    // Unique identifier
	Title       string    // Human-readable name
	Description string    // Opaque payload, never interpreted by the engine
	Category    string    // e.g. "security", "bugfix", "feature"
	Status      Status
	Risk        Risk
	Effort      Effort
	Version     int       // Increments on every content edit; prior versions retained
	Supersedes  string    // ID of the task this one supersedes, if any
	Acceptance  []string  // Ordered acceptance criteria
	Priority    int       // Computed score, used for sort order and tie-breaking only
	Deadline    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New creates a draft task with a fresh ID at version 1.
func New(title string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    StatusDraft,
		Risk:      RiskMedium,
		Effort:    EffortMedium,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy; callers receive copies so shared state never
// escapes the owning store or graph.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Acceptance != nil {
		cp.Acceptance = append([]string(nil), t.Acceptance...)
	}
	if t.Deadline != nil {
		d := *t.Deadline
		cp.Deadline = &d
	}
	return &cp
}
