package cascade

import (
	"strings"
	"testing"

	"github.com/aristath/waveplan/internal/graph"
	"github.com/aristath/waveplan/internal/impact"
	"github.com/aristath/waveplan/internal/task"
)

type fixture struct {
	g   *graph.Graph
	reg *impact.Registry
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	f := &fixture{g: graph.New(), reg: impact.NewRegistry()}
	for _, id := range ids {
		tk := task.New("task " + id)
		tk.ID = id
		if err := f.g.AddTask(tk); err != nil {
			t.Fatalf("AddTask(%s) failed: %v", id, err)
		}
	}
	return f
}

func (f *fixture) relate(t *testing.T, source, target string, typ graph.RelationshipType) {
	t.Helper()
	if err := f.g.AddRelationship(graph.Relationship{Source: source, Target: target, Type: typ}); err != nil {
		t.Fatalf("AddRelationship failed: %v", err)
	}
}

func (f *fixture) register(t *testing.T, im impact.Impact) {
	t.Helper()
	if err := f.reg.Register(im); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}

func editedPair(id string) (*task.Task, *task.Task) {
	original := task.New("task " + id)
	original.ID = id
	edited := original.Clone()
	edited.Version = original.Version + 1
	return original, edited
}

func fileImpact(taskID string, op impact.Op, path string) impact.Impact {
	return impact.Impact{TaskID: taskID, Kind: impact.KindFile, Op: op, Path: path}
}

func TestAnalyzeFlagsEveryDownstreamTaskOnce(t *testing.T) {
	f := newFixture(t, "x", "d1", "d2", "d3")
	f.relate(t, "d1", "x", graph.RelDependsOn)
	f.relate(t, "d2", "x", graph.RelDependsOn)
	f.relate(t, "d3", "x", graph.RelDependsOn)

	original, edited := editedPair("x")
	oldImpacts := []impact.Impact{fileImpact("x", impact.OpUpdate, "a.go")}
	newImpacts := []impact.Impact{fileImpact("x", impact.OpUpdate, "b.go")}

	an := Analyze(original, edited, oldImpacts, newImpacts, f.reg, f.g)

	if len(an.Flags) != 3 {
		t.Fatalf("expected 3 flags, got %d: %+v", len(an.Flags), an.Flags)
	}
	seen := make(map[string]bool)
	for _, fl := range an.Flags {
		if seen[fl.TaskID] {
			t.Errorf("task %q flagged twice", fl.TaskID)
		}
		seen[fl.TaskID] = true
		if fl.Kind != FlagDependencyChange {
			t.Errorf("flag kind = %s, want dependency_change", fl.Kind)
		}
		if fl.Reason == "" {
			t.Errorf("flag for %q has no reason", fl.TaskID)
		}
	}
}

func TestAnalyzeFlagsUpstreamAndConflictNeighbors(t *testing.T) {
	f := newFixture(t, "x", "up", "peer")
	f.relate(t, "x", "up", graph.RelDependsOn)
	f.relate(t, "x", "peer", graph.RelConflictsWith)

	original, edited := editedPair("x")
	an := Analyze(original, edited, nil, nil, f.reg, f.g)

	if len(an.Flags) != 2 {
		t.Fatalf("expected 2 flags, got %d: %+v", len(an.Flags), an.Flags)
	}
}

func TestAnalyzeNoEdgesNoFlags(t *testing.T) {
	f := newFixture(t, "x", "stranger")

	original, edited := editedPair("x")
	newImpacts := []impact.Impact{fileImpact("x", impact.OpUpdate, "a.go")}
	an := Analyze(original, edited, nil, newImpacts, f.reg, f.g)

	if len(an.Flags) != 0 {
		t.Errorf("unconnected tasks were flagged: %+v", an.Flags)
	}
}

func TestAnalyzeConflictClassificationWins(t *testing.T) {
	// d1 depends on x and also now collides with x's new impacts: the more
	// specific conflict kind replaces dependency_change.
	f := newFixture(t, "x", "d1")
	f.relate(t, "d1", "x", graph.RelDependsOn)
	f.register(t, fileImpact("d1", impact.OpUpdate, "shared.go"))

	original, edited := editedPair("x")
	newImpacts := []impact.Impact{fileImpact("x", impact.OpUpdate, "shared.go")}
	an := Analyze(original, edited, nil, newImpacts, f.reg, f.g)

	if len(an.Flags) != 1 {
		t.Fatalf("expected 1 flag, got %d", len(an.Flags))
	}
	if an.Flags[0].Kind != FlagFileConflict {
		t.Errorf("flag kind = %s, want file_conflict", an.Flags[0].Kind)
	}
}

func TestAnalyzeConflictKindMapping(t *testing.T) {
	tests := []struct {
		kind impact.Kind
		want FlagKind
	}{
		{impact.KindFile, FlagFileConflict},
		{impact.KindFunction, FlagFunctionConflict},
		{impact.KindEndpoint, FlagAPIConflict},
		{impact.KindTable, FlagAPIConflict},
		{impact.KindType, FlagAPIConflict},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := conflictKind(tt.kind); got != tt.want {
				t.Errorf("conflictKind(%s) = %s, want %s", tt.kind, got, tt.want)
			}
		})
	}
}

func TestAnalyzeProposesConflictEdge(t *testing.T) {
	f := newFixture(t, "x", "other")
	f.register(t, impact.Impact{TaskID: "other", Kind: impact.KindTable, Op: impact.OpDelete, Path: "users"})

	original, edited := editedPair("x")
	newImpacts := []impact.Impact{{TaskID: "x", Kind: impact.KindTable, Op: impact.OpRead, Path: "users"}}
	an := Analyze(original, edited, nil, newImpacts, f.reg, f.g)

	var proposal *Proposal
	for i := range an.Proposals {
		if an.Proposals[i].Kind == ProposalFlagConflict {
			proposal = &an.Proposals[i]
		}
	}
	if proposal == nil {
		t.Fatalf("no flag_conflict proposal: %+v", an.Proposals)
	}
	rel := proposal.Relationship
	if rel == nil || rel.Type != graph.RelConflictsWith || rel.Source != "x" || rel.Target != "other" {
		t.Errorf("proposal relationship = %+v", rel)
	}
}

func TestAnalyzeProposesDependencyOnCreator(t *testing.T) {
	// x newly reads what "maker" creates; the analyzer proposes depends_on.
	f := newFixture(t, "x", "maker")
	f.register(t, fileImpact("maker", impact.OpCreate, "internal/codec/codec.go"))

	original, edited := editedPair("x")
	newImpacts := []impact.Impact{fileImpact("x", impact.OpRead, "internal/codec/codec.go")}
	an := Analyze(original, edited, nil, newImpacts, f.reg, f.g)

	var proposal *Proposal
	for i := range an.Proposals {
		if an.Proposals[i].Kind == ProposalAddDependency {
			proposal = &an.Proposals[i]
		}
	}
	if proposal == nil {
		t.Fatalf("no add_dependency proposal: %+v", an.Proposals)
	}
	rel := proposal.Relationship
	if rel == nil || rel.Type != graph.RelDependsOn || rel.Source != "x" || rel.Target != "maker" {
		t.Errorf("proposal relationship = %+v", rel)
	}
	if !strings.Contains(proposal.Detail, "maker") {
		t.Errorf("proposal detail missing creator: %s", proposal.Detail)
	}
}

func TestAnalyzeSkipsExistingDependency(t *testing.T) {
	f := newFixture(t, "x", "maker")
	f.relate(t, "x", "maker", graph.RelDependsOn)
	f.register(t, fileImpact("maker", impact.OpCreate, "internal/codec/codec.go"))

	original, edited := editedPair("x")
	newImpacts := []impact.Impact{fileImpact("x", impact.OpRead, "internal/codec/codec.go")}
	an := Analyze(original, edited, nil, newImpacts, f.reg, f.g)

	for _, p := range an.Proposals {
		if p.Kind == ProposalAddDependency {
			t.Errorf("proposed an edge that already exists: %+v", p)
		}
	}
}

func TestAnalyzeProposesReverifyOnRemovedImpacts(t *testing.T) {
	f := newFixture(t, "x", "d1", "d2")
	f.relate(t, "d1", "x", graph.RelDependsOn)
	f.relate(t, "d2", "x", graph.RelDependsOn)

	original, edited := editedPair("x")
	oldImpacts := []impact.Impact{fileImpact("x", impact.OpCreate, "internal/codec/codec.go")}
	an := Analyze(original, edited, oldImpacts, nil, f.reg, f.g)

	count := 0
	for _, p := range an.Proposals {
		if p.Kind == ProposalReverify {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected reverify proposals for both dependents, got %d", count)
	}
}

func TestAnalyzeUnchangedImpactsStillFlagsNeighbors(t *testing.T) {
	f := newFixture(t, "x", "d1")
	f.relate(t, "d1", "x", graph.RelDependsOn)

	original, edited := editedPair("x")
	impacts := []impact.Impact{fileImpact("x", impact.OpUpdate, "a.go")}
	an := Analyze(original, edited, impacts, impacts, f.reg, f.g)

	if len(an.Flags) != 1 {
		t.Fatalf("expected 1 flag, got %d", len(an.Flags))
	}
	if !strings.Contains(an.Flags[0].Reason, "version") {
		t.Errorf("content-only edit reason should mention versions: %s", an.Flags[0].Reason)
	}
}
