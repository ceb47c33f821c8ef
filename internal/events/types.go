package events

import (
	"time"

	"github.com/aristath/waveplan/internal/task"
)

// Event is the base interface for all engine events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants.
const (
	TopicTask = "task"
	TopicPlan = "plan"
)

// Event type constants.
const (
	EventTypeTaskCreated      = "task.created"
	EventTypeTaskEdited       = "task.edited"
	EventTypeStatusChanged    = "task.status_changed"
	EventTypeCascadeFlagged   = "task.cascade_flagged"
	EventTypeProposalResolved = "task.proposal_resolved"
	EventTypePlanComputed     = "plan.computed"
)

// TaskCreatedEvent is published when a task record is created.
type TaskCreatedEvent struct {
	ID        string
	Title     string
	Timestamp time.Time
}

func (e TaskCreatedEvent) EventType() string { return EventTypeTaskCreated }
func (e TaskCreatedEvent) TaskID() string    { return e.ID }

// TaskEditedEvent is published when a content edit bumps a task's version.
type TaskEditedEvent struct {
	ID         string
	OldVersion int
	NewVersion int
	Timestamp  time.Time
}

func (e TaskEditedEvent) EventType() string { return EventTypeTaskEdited }
func (e TaskEditedEvent) TaskID() string    { return e.ID }

// StatusChangedEvent is published after a lifecycle transition is durable.
type StatusChangedEvent struct {
	ID        string
	From      task.Status
	To        task.Status
	Actor     string
	Reason    string
	Timestamp time.Time
}

func (e StatusChangedEvent) EventType() string { return EventTypeStatusChanged }
func (e StatusChangedEvent) TaskID() string    { return e.ID }

// CascadeFlaggedEvent is published when an edit flags downstream tasks.
type CascadeFlaggedEvent struct {
	EditedID  string
	Flagged   []string
	Timestamp time.Time
}

func (e CascadeFlaggedEvent) EventType() string { return EventTypeCascadeFlagged }
func (e CascadeFlaggedEvent) TaskID() string    { return e.EditedID }

// ProposalResolvedEvent is published when a cascade proposal is applied or
// rejected.
type ProposalResolvedEvent struct {
	ID        string // Task the proposal applied to
	Applied   bool
	Detail    string
	Timestamp time.Time
}

func (e ProposalResolvedEvent) EventType() string { return EventTypeProposalResolved }
func (e ProposalResolvedEvent) TaskID() string    { return e.ID }

// PlanComputedEvent is published when a wave plan is computed.
type PlanComputedEvent struct {
	GraphVersion int64
	WaveCount    int
	TaskCount    int
	Timestamp    time.Time
}

func (e PlanComputedEvent) EventType() string { return EventTypePlanComputed }
func (e PlanComputedEvent) TaskID() string    { return "" }
