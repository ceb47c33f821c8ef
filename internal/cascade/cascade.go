// Package cascade finds the tasks whose correctness assumptions may be
// invalidated when an upstream task is edited, and proposes corrective
// edits without applying any of them.
package cascade

import (
	"fmt"
	"sort"

	"github.com/aristath/waveplan/internal/graph"
	"github.com/aristath/waveplan/internal/impact"
	"github.com/aristath/waveplan/internal/task"
)

// FlagKind classifies why a downstream task was flagged.
type FlagKind string

const (
	FlagDependencyChange FlagKind = "dependency_change"
	FlagFileConflict     FlagKind = "file_conflict"
	FlagAPIConflict      FlagKind = "api_conflict"
	FlagFunctionConflict FlagKind = "function_conflict"
)

// Flag marks one task whose assumptions the edit may have invalidated.
type Flag struct {
	TaskID string
	Kind   FlagKind
	Reason string
}

// ProposalKind classifies a corrective edit the analyzer suggests.
type ProposalKind string

const (
	ProposalAddDependency ProposalKind = "add_dependency"
	ProposalFlagConflict  ProposalKind = "flag_conflict"
	ProposalReverify      ProposalKind = "reverify_task"
)

// Proposal is a suggested corrective edit. The analyzer never applies
// proposals; whether they auto-apply is the caller's policy.
type Proposal struct {
	Kind   ProposalKind
	TaskID string // Task the edit applies to
	Detail string
	// Relationship is set for proposals that add an edge
	// (add_dependency, flag_conflict); nil otherwise.
	Relationship *graph.Relationship
}

// Analysis is the result of one cascade walk.
type Analysis struct {
	EditedTaskID string
	Flags        []Flag
	Proposals    []Proposal
}

// Analyze compares a task's old and new impact sets and walks the graph to
// find every task connected to it via depends_on, blocks, or
// conflict-sharing edges. Each connected task receives exactly one flag
// with its most specific classification. Pure function over the snapshot.
func Analyze(original, edited *task.Task, oldImpacts, newImpacts []impact.Impact, reg *impact.Registry, g *graph.Graph) *Analysis {
	an := &Analysis{EditedTaskID: edited.ID}

	added, removed := diffImpacts(oldImpacts, newImpacts)
	impactsChanged := len(added) > 0 || len(removed) > 0

	// Collect every connected task with its candidate classification.
	// Conflict classifications are more specific than dependency_change, so
	// they win when both apply.
	flagged := make(map[string]Flag)

	consider := func(f Flag) {
		existing, ok := flagged[f.TaskID]
		if !ok || (existing.Kind == FlagDependencyChange && f.Kind != FlagDependencyChange) {
			flagged[f.TaskID] = f
		}
	}

	// Tasks joined by scheduling edges in either direction.
	neighbors := append(g.Dependents(edited.ID), g.Dependencies(edited.ID)...)
	neighbors = append(neighbors, g.ExplicitConflicts(edited.ID)...)
	for _, id := range neighbors {
		if id == edited.ID {
			continue
		}
		if impactsChanged {
			consider(Flag{
				TaskID: id,
				Kind:   FlagDependencyChange,
				Reason: fmt.Sprintf("task %q changed its declared impacts (%d added, %d removed)", edited.ID, len(added), len(removed)),
			})
		} else {
			consider(Flag{
				TaskID: id,
				Kind:   FlagDependencyChange,
				Reason: fmt.Sprintf("task %q was edited (version %d -> %d)", edited.ID, original.Version, edited.Version),
			})
		}
	}

	// Conflict-sharing: any task whose declared impacts now collide with the
	// edited task's new impact set.
	for _, other := range g.Tasks() {
		if other.ID == edited.ID {
			continue
		}
		conflicts := impact.Conflicts(newImpacts, reg.ForTask(other.ID))
		for _, c := range conflicts {
			consider(Flag{
				TaskID: other.ID,
				Kind:   conflictKind(c.A.Kind),
				Reason: fmt.Sprintf("impacts now conflict on %s (%s vs %s)", c.A.Target(), c.A.Op, c.B.Op),
			})
			an.Proposals = append(an.Proposals, Proposal{
				Kind:   ProposalFlagConflict,
				TaskID: other.ID,
				Detail: fmt.Sprintf("add conflicts_with edge between %q and %q for target %s", edited.ID, other.ID, c.A.Target()),
				Relationship: &graph.Relationship{
					Source: edited.ID,
					Target: other.ID,
					Type:   graph.RelConflictsWith,
				},
			})
			break // one conflict flag per task is enough
		}
	}

	// Removed impacts invalidate downstream verification assumptions.
	if len(removed) > 0 {
		for _, id := range g.Dependents(edited.ID) {
			an.Proposals = append(an.Proposals, Proposal{
				Kind:   ProposalReverify,
				TaskID: id,
				Detail: fmt.Sprintf("re-verify against task %q: %d impact(s) were removed", edited.ID, len(removed)),
			})
		}
	}

	// A task that newly reads or updates what some neighbor creates should
	// depend on that neighbor.
	for _, im := range added {
		if im.Op != impact.OpRead && im.Op != impact.OpUpdate {
			continue
		}
		for _, other := range g.Tasks() {
			if other.ID == edited.ID {
				continue
			}
			for _, theirs := range reg.ForTask(other.ID) {
				if theirs.Target() == im.Target() && theirs.Op == impact.OpCreate && !contains(g.Dependencies(edited.ID), other.ID) {
					an.Proposals = append(an.Proposals, Proposal{
						Kind:   ProposalAddDependency,
						TaskID: edited.ID,
						Detail: fmt.Sprintf("add depends_on %q: it creates %s which this task now uses", other.ID, im.Target()),
						Relationship: &graph.Relationship{
							Source: edited.ID,
							Target: other.ID,
							Type:   graph.RelDependsOn,
						},
					})
				}
			}
		}
	}

	for _, f := range flagged {
		an.Flags = append(an.Flags, f)
	}
	sort.Slice(an.Flags, func(i, j int) bool { return an.Flags[i].TaskID < an.Flags[j].TaskID })
	sort.Slice(an.Proposals, func(i, j int) bool {
		if an.Proposals[i].TaskID != an.Proposals[j].TaskID {
			return an.Proposals[i].TaskID < an.Proposals[j].TaskID
		}
		return an.Proposals[i].Kind < an.Proposals[j].Kind
	})
	return an
}

// conflictKind maps a resource kind to its cascade classification.
// Endpoint, table and type collisions are interface-level, files are files,
// functions are functions.
func conflictKind(k impact.Kind) FlagKind {
	switch k {
	case impact.KindFile:
		return FlagFileConflict
	case impact.KindFunction:
		return FlagFunctionConflict
	default:
		return FlagAPIConflict
	}
}

func diffImpacts(old, new []impact.Impact) (added, removed []impact.Impact) {
	oldKeys := make(map[string]bool, len(old))
	for _, im := range old {
		oldKeys[im.Key()] = true
	}
	newKeys := make(map[string]bool, len(new))
	for _, im := range new {
		newKeys[im.Key()] = true
		if !oldKeys[im.Key()] {
			added = append(added, im)
		}
	}
	for _, im := range old {
		if !newKeys[im.Key()] {
			removed = append(removed, im)
		}
	}
	return added, removed
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
