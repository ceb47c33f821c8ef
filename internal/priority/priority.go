// Package priority scores tasks for ordering and tie-breaking during wave
// planning. Scores never gate execution by themselves.
package priority

import (
	"time"

	"github.com/aristath/waveplan/internal/task"
)

// Weights externalizes the scoring constants so deployments can tune them
// without recompilation.
type Weights struct {
	BlocksEach    int            `json:"blocks_each"`    // Per task transitively blocked by this one
	QuickWin      int            `json:"quick_win"`      // Effort is the smallest bucket
	DeadlineSoon  int            `json:"deadline_soon"`  // Deadline <= 1 day out
	DeadlineNear  int            `json:"deadline_near"`  // Deadline <= 3 days out
	DeadlineWeek  int            `json:"deadline_week"`  // Deadline <= 7 days out
	RiskHigh      int            `json:"risk_high"`
	RiskLow       int            `json:"risk_low"`
	CategoryBonus map[string]int `json:"category_bonus"` // e.g. security, bugfix
}

// DefaultWeights returns the standard scoring constants.
func DefaultWeights() Weights {
	return Weights{
		BlocksEach:   20,
		QuickWin:     15,
		DeadlineSoon: 50,
		DeadlineNear: 30,
		DeadlineWeek: 10,
		RiskHigh:     5,
		RiskLow:      -5,
		CategoryBonus: map[string]int{
			"security": 25,
			"bugfix":   10,
		},
	}
}

// Context supplies the graph-derived facts scoring needs.
type Context struct {
	TransitivelyBlocked int       // Count of tasks that cannot start until this one finishes
	Now                 time.Time // Reference time for deadline urgency
}

// Score computes a task's priority. Pure function over its inputs.
func Score(t *task.Task, ctx Context, w Weights) int {
	score := ctx.TransitivelyBlocked * w.BlocksEach

	if t.Effort == task.EffortTrivial {
		score += w.QuickWin
	}

	if t.Deadline != nil {
		now := ctx.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}
		days := t.Deadline.Sub(now).Hours() / 24
		switch {
		case days <= 1:
			score += w.DeadlineSoon
		case days <= 3:
			score += w.DeadlineNear
		case days <= 7:
			score += w.DeadlineWeek
		}
	}

	switch t.Risk {
	case task.RiskHigh:
		score += w.RiskHigh
	case task.RiskLow:
		score += w.RiskLow
	}

	score += w.CategoryBonus[t.Category]
	return score
}
