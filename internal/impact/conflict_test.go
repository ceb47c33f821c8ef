package impact

import (
	"errors"
	"testing"
)

func TestOpsConflict(t *testing.T) {
	tests := []struct {
		a, b Op
		want bool
	}{
		{OpCreate, OpCreate, true},
		{OpCreate, OpRead, false},
		{OpCreate, OpUpdate, false},
		{OpCreate, OpDelete, true},
		{OpRead, OpRead, false},
		{OpRead, OpUpdate, false},
		{OpRead, OpDelete, true},
		{OpUpdate, OpUpdate, true},
		{OpUpdate, OpDelete, true},
		{OpDelete, OpDelete, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.a)+"x"+string(tt.b), func(t *testing.T) {
			if got := OpsConflict(tt.a, tt.b); got != tt.want {
				t.Errorf("OpsConflict(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			// The matrix is over unordered pairs.
			if got := OpsConflict(tt.b, tt.a); got != tt.want {
				t.Errorf("OpsConflict(%s, %s) = %v, want %v", tt.b, tt.a, got, tt.want)
			}
		})
	}
}

func TestConflictsRequireSharedTarget(t *testing.T) {
	a := []Impact{{TaskID: "a", Kind: KindFile, Op: OpUpdate, Path: "internal/auth/session.go"}}
	b := []Impact{{TaskID: "b", Kind: KindFile, Op: OpUpdate, Path: "internal/api/handler.go"}}

	if got := Conflicts(a, b); len(got) != 0 {
		t.Errorf("expected no conflicts across distinct targets, got %d", len(got))
	}

	b[0].Path = a[0].Path
	got := Conflicts(a, b)
	if len(got) != 1 {
		t.Fatalf("expected 1 conflict on shared target, got %d", len(got))
	}
	if got[0].A.TaskID != "a" || got[0].B.TaskID != "b" {
		t.Errorf("conflict pair misattributed: %+v", got[0])
	}
}

func TestConflictsDistinguishTargetName(t *testing.T) {
	// Same path, different function names: distinct targets, no conflict.
	a := []Impact{{TaskID: "a", Kind: KindFunction, Op: OpUpdate, Path: "internal/auth/session.go", Name: "Refresh"}}
	b := []Impact{{TaskID: "b", Kind: KindFunction, Op: OpUpdate, Path: "internal/auth/session.go", Name: "Revoke"}}

	if got := Conflicts(a, b); len(got) != 0 {
		t.Errorf("expected no conflicts across distinct names, got %d", len(got))
	}
}

func TestTasksConflict(t *testing.T) {
	a := []Impact{
		{TaskID: "a", Kind: KindTable, Op: OpRead, Path: "users"},
		{TaskID: "a", Kind: KindFile, Op: OpCreate, Path: "migrations/0007.sql"},
	}
	b := []Impact{
		{TaskID: "b", Kind: KindTable, Op: OpDelete, Path: "users"},
	}

	if !TasksConflict(a, b) {
		t.Error("READ vs DELETE on the same table should conflict")
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	reg := NewRegistry()
	im := Impact{TaskID: "a", Kind: KindFile, Op: OpUpdate, Path: "main.go"}

	if err := reg.Register(im); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	err := reg.Register(im)
	if err == nil {
		t.Fatal("expected duplicate impact error")
	}
	var dup *ErrDuplicateImpact
	if !errors.As(err, &dup) {
		t.Fatalf("expected *ErrDuplicateImpact, got %T", err)
	}
	if dup.Existing.Key() != im.Key() {
		t.Errorf("duplicate error carries wrong impact: %+v", dup.Existing)
	}
	if got := reg.ForTask("a"); len(got) != 1 {
		t.Errorf("failed Register mutated the registry: %d impacts", len(got))
	}
}

func TestRegistryReplaceTask(t *testing.T) {
	reg := NewRegistry()
	old := Impact{TaskID: "a", Kind: KindFile, Op: OpUpdate, Path: "old.go"}
	if err := reg.Register(old); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	next := []Impact{
		{TaskID: "a", Kind: KindFile, Op: OpCreate, Path: "new.go"},
		{TaskID: "a", Kind: KindEndpoint, Op: OpUpdate, Path: "/v1/users"},
	}
	if err := reg.ReplaceTask("a", next); err != nil {
		t.Fatalf("ReplaceTask failed: %v", err)
	}

	got := reg.ForTask("a")
	if len(got) != 2 {
		t.Fatalf("expected 2 impacts after replace, got %d", len(got))
	}
	for _, im := range got {
		if im.Path == "old.go" {
			t.Error("replaced impact still present")
		}
	}

	// The old key must be free for other tasks again.
	old.TaskID = "a"
	if err := reg.Register(old); err != nil {
		t.Errorf("old key not released after replace: %v", err)
	}
}

func TestRegistryReplaceTaskRejectsInternalDuplicate(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Impact{TaskID: "a", Kind: KindFile, Op: OpUpdate, Path: "keep.go"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	dup := Impact{TaskID: "a", Kind: KindFile, Op: OpCreate, Path: "x.go"}
	if err := reg.ReplaceTask("a", []Impact{dup, dup}); err == nil {
		t.Fatal("expected duplicate impact error")
	}
	// Nothing may change when validation fails.
	got := reg.ForTask("a")
	if len(got) != 1 || got[0].Path != "keep.go" {
		t.Errorf("failed ReplaceTask mutated the registry: %+v", got)
	}
}
