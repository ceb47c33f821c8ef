package graph

import (
	"errors"
	"reflect"
	"testing"

	"github.com/aristath/waveplan/internal/task"
)

func newTestGraph(t *testing.T, ids ...string) *Graph {
	t.Helper()
	g := New()
	for _, id := range ids {
		tk := task.New("task " + id)
		tk.ID = id
		if err := g.AddTask(tk); err != nil {
			t.Fatalf("AddTask(%s) failed: %v", id, err)
		}
	}
	return g
}

func mustAdd(t *testing.T, g *Graph, source, target string, typ RelationshipType) {
	t.Helper()
	if err := g.AddRelationship(Relationship{Source: source, Target: target, Type: typ}); err != nil {
		t.Fatalf("AddRelationship(%s %s %s) failed: %v", source, typ, target, err)
	}
}

func TestAddRelationshipValidation(t *testing.T) {
	tests := []struct {
		name    string
		rel     Relationship
		wantErr error
	}{
		{
			name: "unknown type",
			rel:  Relationship{Source: "a", Target: "b", Type: "waits_for"},
		},
		{
			name:    "self loop",
			rel:     Relationship{Source: "a", Target: "a", Type: RelDependsOn},
			wantErr: ErrSelfLoop,
		},
		{
			name:    "unknown target",
			rel:     Relationship{Source: "a", Target: "ghost", Type: RelDependsOn},
			wantErr: ErrUnknownTarget,
		},
		{
			name:    "unknown source",
			rel:     Relationship{Source: "ghost", Target: "b", Type: RelBlocks},
			wantErr: ErrUnknownTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGraph(t, "a", "b")
			err := g.AddRelationship(tt.rel)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddRelationshipDuplicate(t *testing.T) {
	g := newTestGraph(t, "a", "b")
	mustAdd(t, g, "a", "b", RelDependsOn)

	err := g.AddRelationship(Relationship{Source: "a", Target: "b", Type: RelDependsOn})
	if !errors.Is(err, ErrDuplicateRelationship) {
		t.Errorf("got %v, want ErrDuplicateRelationship", err)
	}

	// Same endpoints, different type is a distinct edge.
	if err := g.AddRelationship(Relationship{Source: "a", Target: "b", Type: RelRelatedTo}); err != nil {
		t.Errorf("distinct type rejected: %v", err)
	}
}

func TestSchedulingEdgeDirections(t *testing.T) {
	g := newTestGraph(t, "a", "b", "c")

	// a depends_on b and c blocks a both make a wait.
	mustAdd(t, g, "a", "b", RelDependsOn)
	mustAdd(t, g, "c", "a", RelBlocks)

	if got, want := g.Dependencies("a"), []string{"b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Dependencies(a) = %v, want %v", got, want)
	}
	if got, want := g.Dependents("b"), []string{"a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Dependents(b) = %v, want %v", got, want)
	}
	if got, want := g.Dependents("c"), []string{"a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Dependents(c) = %v, want %v", got, want)
	}
}

func TestAdvisoryEdgesDoNotSchedule(t *testing.T) {
	g := newTestGraph(t, "a", "b")
	mustAdd(t, g, "a", "b", RelRelatedTo)
	mustAdd(t, g, "a", "b", RelSubtaskOf)
	mustAdd(t, g, "a", "b", RelInspiredBy)

	if got := g.Dependencies("a"); len(got) != 0 {
		t.Errorf("advisory edges created dependencies: %v", got)
	}
	if got := g.Dependents("b"); len(got) != 0 {
		t.Errorf("advisory edges created dependents: %v", got)
	}
}

func TestConflictsWithIsSymmetric(t *testing.T) {
	g := newTestGraph(t, "a", "b")
	mustAdd(t, g, "a", "b", RelConflictsWith)

	if got, want := g.ExplicitConflicts("a"), []string{"b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ExplicitConflicts(a) = %v, want %v", got, want)
	}
	if got, want := g.ExplicitConflicts("b"), []string{"a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ExplicitConflicts(b) = %v, want %v", got, want)
	}
	if got := g.Dependencies("a"); len(got) != 0 {
		t.Errorf("conflicts_with created dependencies: %v", got)
	}
}

func TestTransitivelyBlocked(t *testing.T) {
	// d -> c -> a and b -> a: finishing a unblocks b, c and d.
	g := newTestGraph(t, "a", "b", "c", "d", "e")
	mustAdd(t, g, "b", "a", RelDependsOn)
	mustAdd(t, g, "c", "a", RelDependsOn)
	mustAdd(t, g, "d", "c", RelDependsOn)

	if got, want := g.TransitivelyBlocked("a"), []string{"b", "c", "d"}; !reflect.DeepEqual(got, want) {
		t.Errorf("TransitivelyBlocked(a) = %v, want %v", got, want)
	}
	if got := g.TransitivelyBlocked("e"); len(got) != 0 {
		t.Errorf("TransitivelyBlocked(e) = %v, want none", got)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	g := newTestGraph(t, "a")
	first, ok := g.Get("a")
	if !ok {
		t.Fatal("Get(a) not found")
	}
	first.Title = "mutated"

	second, _ := g.Get("a")
	if second.Title == "mutated" {
		t.Error("Get returned shared state")
	}
}
