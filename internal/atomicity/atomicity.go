// Package atomicity validates that a task is small, unambiguous, and
// independently verifiable enough to schedule as a single unit.
package atomicity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/waveplan/internal/impact"
	"github.com/aristath/waveplan/internal/task"
)

// Rule identifies one of the six validation rules.
type Rule string

const (
	RuleSingleConcern    Rule = "single_concern"
	RuleBoundedFootprint Rule = "bounded_footprint"
	RuleBoundedEffort    Rule = "bounded_effort"
	RuleHasAcceptance    Rule = "has_acceptance"
	RuleIndependent      Rule = "independently_verifiable"
	RuleBinaryCompletion Rule = "binary_completion"
)

// Severity grades a violation. Errors block scheduling; warnings are
// surfaced but schedulable.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation is one failed rule with a human-readable message.
type Violation struct {
	Rule     Rule
	Severity Severity
	Message  string
}

// TargetGroup names a proposed decomposition boundary: a group of impact
// targets that could become their own task.
type TargetGroup struct {
	Name    string
	Targets []string
}

// Result is the outcome of validating one task.
type Result struct {
	OK            bool // No error-severity violations
	Violations    []Violation
	Decomposition []TargetGroup // Suggested split when footprint or effort is exceeded
}

// Config bounds the validator. MaxTargets is the largest number of distinct
// impact targets a single task may touch.
type Config struct {
	MaxTargets int `json:"max_targets"`
}

// DefaultConfig returns the standard bounds.
func DefaultConfig() Config {
	return Config{MaxTargets: 3}
}

// subjective words that suggest a completion criterion is not binary.
var subjectiveWords = []string{"better", "improve", "cleaner", "nicer", "some", "mostly", "try to"}

// markers that suggest a task depends on a pending task's output to verify.
var pendingMarkers = []string{"once ", "after task", "pending task", "when the other"}

// Validate checks the task and its declared impacts against the six
// atomicity rules. Pure function: it flags and suggests, never mutates.
func Validate(t *task.Task, impacts []impact.Impact, cfg Config) Result {
	if cfg.MaxTargets <= 0 {
		cfg.MaxTargets = DefaultConfig().MaxTargets
	}

	var res Result

	// Single logical concern: multiple sentences joined by "and also" or
	// semicolon-separated clauses in the title suggest bundled work.
	title := strings.ToLower(t.Title)
	if strings.Contains(title, " and also ") || strings.Contains(title, ";") {
		res.Violations = append(res.Violations, Violation{
			Rule:     RuleSingleConcern,
			Severity: SeverityWarning,
			Message:  "title suggests more than one logical concern",
		})
	}

	// Bounded footprint: count distinct impact targets.
	targets := distinctTargets(impacts)
	if len(targets) > cfg.MaxTargets {
		res.Violations = append(res.Violations, Violation{
			Rule:     RuleBoundedFootprint,
			Severity: SeverityError,
			Message:  fmt.Sprintf("touches %d distinct targets, bound is %d", len(targets), cfg.MaxTargets),
		})
		res.Decomposition = suggestGroups(impacts)
	}

	// Bounded effort: the too_large bucket always fails.
	if t.Effort == task.EffortTooLarge {
		res.Violations = append(res.Violations, Violation{
			Rule:     RuleBoundedEffort,
			Severity: SeverityError,
			Message:  "effort bucket is too_large; decompose before scheduling",
		})
		if res.Decomposition == nil {
			res.Decomposition = suggestGroups(impacts)
		}
	}

	// At least one verifiable acceptance check.
	if len(t.Acceptance) == 0 {
		res.Violations = append(res.Violations, Violation{
			Rule:     RuleHasAcceptance,
			Severity: SeverityError,
			Message:  "no acceptance criteria declared",
		})
	}

	// Independently verifiable: criteria must not hinge on a pending task.
	for _, crit := range t.Acceptance {
		lc := strings.ToLower(crit)
		for _, marker := range pendingMarkers {
			if strings.Contains(lc, marker) {
				res.Violations = append(res.Violations, Violation{
					Rule:     RuleIndependent,
					Severity: SeverityError,
					Message:  fmt.Sprintf("acceptance criterion %q depends on another task's output", crit),
				})
			}
		}
	}

	// Binary completion criterion: subjective phrasing is not pass/fail.
	for _, crit := range t.Acceptance {
		lc := strings.ToLower(crit)
		for _, word := range subjectiveWords {
			if strings.Contains(lc, word) {
				res.Violations = append(res.Violations, Violation{
					Rule:     RuleBinaryCompletion,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("acceptance criterion %q is subjective, not pass/fail", crit),
				})
			}
		}
	}

	res.OK = true
	for _, v := range res.Violations {
		if v.Severity == SeverityError {
			res.OK = false
			break
		}
	}
	return res
}

func distinctTargets(impacts []impact.Impact) []string {
	seen := make(map[string]bool)
	for _, im := range impacts {
		seen[im.Target()] = true
	}
	out := make([]string, 0, len(seen))
	for tgt := range seen {
		out = append(out, tgt)
	}
	sort.Strings(out)
	return out
}

// suggestGroups proposes decomposition boundaries by grouping impact
// targets: first by kind, then, within a kind that still dominates, by the
// first path segment. The validator only names the groups; decomposition
// itself is the caller's job.
func suggestGroups(impacts []impact.Impact) []TargetGroup {
	byKind := make(map[impact.Kind]map[string]bool)
	for _, im := range impacts {
		if byKind[im.Kind] == nil {
			byKind[im.Kind] = make(map[string]bool)
		}
		byKind[im.Kind][im.Target()] = true
	}

	var groups []TargetGroup
	if len(byKind) > 1 {
		for kind, targets := range byKind {
			groups = append(groups, TargetGroup{Name: string(kind), Targets: setToSorted(targets)})
		}
		sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
		return groups
	}

	// Single kind: split by first path segment instead.
	byPrefix := make(map[string]map[string]bool)
	for _, im := range impacts {
		prefix := im.Path
		if i := strings.IndexByte(prefix, '/'); i > 0 {
			prefix = prefix[:i]
		}
		if byPrefix[prefix] == nil {
			byPrefix[prefix] = make(map[string]bool)
		}
		byPrefix[prefix][im.Target()] = true
	}
	for prefix, targets := range byPrefix {
		groups = append(groups, TargetGroup{Name: prefix, Targets: setToSorted(targets)})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })

	// A suggestion with a single group is no boundary at all; halve it.
	if len(groups) == 1 && len(groups[0].Targets) > 1 {
		all := groups[0].Targets
		mid := len(all) / 2
		groups = []TargetGroup{
			{Name: groups[0].Name + "-1", Targets: all[:mid]},
			{Name: groups[0].Name + "-2", Targets: all[mid:]},
		}
	}
	return groups
}

func setToSorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
