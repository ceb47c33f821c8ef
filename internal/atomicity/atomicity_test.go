package atomicity

import (
	"strings"
	"testing"

	"github.com/aristath/waveplan/internal/impact"
	"github.com/aristath/waveplan/internal/task"
)

func validTask() *task.Task {
	return &task.Task{
		ID:         "t1",
		Title:      "Add session refresh endpoint",
		Effort:     task.EffortSmall,
		Acceptance: []string{"POST /v1/session/refresh returns 200 with a new token"},
	}
}

func hasViolation(res Result, rule Rule, sev Severity) bool {
	for _, v := range res.Violations {
		if v.Rule == rule && v.Severity == sev {
			return true
		}
	}
	return false
}

func TestValidatePasses(t *testing.T) {
	impacts := []impact.Impact{
		{TaskID: "t1", Kind: impact.KindFile, Op: impact.OpUpdate, Path: "internal/session/handler.go"},
		{TaskID: "t1", Kind: impact.KindEndpoint, Op: impact.OpCreate, Path: "/v1/session/refresh"},
	}
	res := Validate(validTask(), impacts, DefaultConfig())
	if !res.OK {
		t.Errorf("expected OK, got violations: %+v", res.Violations)
	}
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*task.Task)
		impacts  []impact.Impact
		wantRule Rule
		wantSev  Severity
		wantOK   bool
	}{
		{
			name:     "bundled title is a warning",
			mutate:   func(tk *task.Task) { tk.Title = "Fix login and also update the docs" },
			wantRule: RuleSingleConcern,
			wantSev:  SeverityWarning,
			wantOK:   true,
		},
		{
			name:     "semicolon title is a warning",
			mutate:   func(tk *task.Task) { tk.Title = "Fix login; update docs" },
			wantRule: RuleSingleConcern,
			wantSev:  SeverityWarning,
			wantOK:   true,
		},
		{
			name:   "footprint over bound",
			mutate: func(tk *task.Task) {},
			impacts: []impact.Impact{
				{TaskID: "t1", Kind: impact.KindFile, Op: impact.OpUpdate, Path: "a.go"},
				{TaskID: "t1", Kind: impact.KindFile, Op: impact.OpUpdate, Path: "b.go"},
				{TaskID: "t1", Kind: impact.KindFile, Op: impact.OpUpdate, Path: "c.go"},
				{TaskID: "t1", Kind: impact.KindFile, Op: impact.OpUpdate, Path: "d.go"},
			},
			wantRule: RuleBoundedFootprint,
			wantSev:  SeverityError,
		},
		{
			name:     "too_large effort",
			mutate:   func(tk *task.Task) { tk.Effort = task.EffortTooLarge },
			wantRule: RuleBoundedEffort,
			wantSev:  SeverityError,
		},
		{
			name:     "no acceptance criteria",
			mutate:   func(tk *task.Task) { tk.Acceptance = nil },
			wantRule: RuleHasAcceptance,
			wantSev:  SeverityError,
		},
		{
			name: "criterion hinges on another task",
			mutate: func(tk *task.Task) {
				tk.Acceptance = []string{"Verify once the auth rework from pending task T-42 lands"}
			},
			wantRule: RuleIndependent,
			wantSev:  SeverityError,
		},
		{
			name: "subjective criterion is a warning",
			mutate: func(tk *task.Task) {
				tk.Acceptance = []string{"Login feels better on slow networks"}
			},
			wantRule: RuleBinaryCompletion,
			wantSev:  SeverityWarning,
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := validTask()
			tt.mutate(tk)
			res := Validate(tk, tt.impacts, DefaultConfig())
			if !hasViolation(res, tt.wantRule, tt.wantSev) {
				t.Errorf("missing %s/%s violation: %+v", tt.wantRule, tt.wantSev, res.Violations)
			}
			if res.OK != tt.wantOK {
				t.Errorf("OK = %v, want %v", res.OK, tt.wantOK)
			}
		})
	}
}

func TestValidateMultipleViolations(t *testing.T) {
	tk := validTask()
	tk.Effort = task.EffortTooLarge
	tk.Acceptance = nil

	res := Validate(tk, nil, DefaultConfig())
	if res.OK {
		t.Error("expected not OK")
	}
	if len(res.Violations) < 2 {
		t.Errorf("expected at least 2 violations, got %d", len(res.Violations))
	}
}

func TestDecompositionSuggestsAtLeastTwoGroups(t *testing.T) {
	// Five distinct targets across two kinds.
	impacts := []impact.Impact{
		{TaskID: "t1", Kind: impact.KindFile, Op: impact.OpUpdate, Path: "internal/auth/a.go"},
		{TaskID: "t1", Kind: impact.KindFile, Op: impact.OpUpdate, Path: "internal/auth/b.go"},
		{TaskID: "t1", Kind: impact.KindFile, Op: impact.OpUpdate, Path: "internal/api/c.go"},
		{TaskID: "t1", Kind: impact.KindEndpoint, Op: impact.OpCreate, Path: "/v1/login"},
		{TaskID: "t1", Kind: impact.KindEndpoint, Op: impact.OpUpdate, Path: "/v1/logout"},
	}
	res := Validate(validTask(), impacts, DefaultConfig())
	if res.OK {
		t.Fatal("expected footprint violation")
	}
	if len(res.Decomposition) < 2 {
		t.Fatalf("expected at least 2 decomposition groups, got %d", len(res.Decomposition))
	}

	covered := 0
	for _, g := range res.Decomposition {
		covered += len(g.Targets)
	}
	if covered != 5 {
		t.Errorf("decomposition covers %d targets, want 5", covered)
	}
}

func TestDecompositionSingleKindSplitsByPathPrefix(t *testing.T) {
	impacts := []impact.Impact{
		{TaskID: "t1", Kind: impact.KindFile, Op: impact.OpUpdate, Path: "internal/auth/a.go"},
		{TaskID: "t1", Kind: impact.KindFile, Op: impact.OpUpdate, Path: "internal/auth/b.go"},
		{TaskID: "t1", Kind: impact.KindFile, Op: impact.OpUpdate, Path: "cmd/server/main.go"},
		{TaskID: "t1", Kind: impact.KindFile, Op: impact.OpUpdate, Path: "cmd/server/flags.go"},
	}
	groups := suggestGroups(impacts)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d: %+v", len(groups), groups)
	}
	if groups[0].Name != "cmd" || groups[1].Name != "internal" {
		t.Errorf("unexpected group names: %q, %q", groups[0].Name, groups[1].Name)
	}
}

func TestDecompositionNeverReturnsOneGroup(t *testing.T) {
	// Single kind, single prefix: the fallback must still produce a split.
	impacts := []impact.Impact{
		{TaskID: "t1", Kind: impact.KindFile, Op: impact.OpUpdate, Path: "pkg/a.go"},
		{TaskID: "t1", Kind: impact.KindFile, Op: impact.OpUpdate, Path: "pkg/b.go"},
		{TaskID: "t1", Kind: impact.KindFile, Op: impact.OpUpdate, Path: "pkg/c.go"},
		{TaskID: "t1", Kind: impact.KindFile, Op: impact.OpUpdate, Path: "pkg/d.go"},
	}
	groups := suggestGroups(impacts)
	if len(groups) < 2 {
		t.Fatalf("expected at least 2 groups, got %d: %+v", len(groups), groups)
	}
}

func TestViolationMessagesNameTheProblem(t *testing.T) {
	tk := validTask()
	tk.Acceptance = []string{"Try to make startup mostly faster"}
	res := Validate(tk, nil, DefaultConfig())

	found := false
	for _, v := range res.Violations {
		if v.Rule == RuleBinaryCompletion && strings.Contains(v.Message, "Try to make startup") {
			found = true
		}
	}
	if !found {
		t.Errorf("binary completion violation should quote the criterion: %+v", res.Violations)
	}
}
