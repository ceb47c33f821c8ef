package config

import (
	"github.com/aristath/waveplan/internal/atomicity"
	"github.com/aristath/waveplan/internal/planner"
	"github.com/aristath/waveplan/internal/priority"
)

// DispatchConfig tunes the scheduling loop's executor boundary.
type DispatchConfig struct {
	Concurrency         int `json:"concurrency"`           // Max tasks dispatched at once per wave (default 4)
	BreakerFailures     int `json:"breaker_failures"`      // Consecutive failures before the circuit opens (default 5)
	BreakerOpenSeconds  int `json:"breaker_open_seconds"`  // Seconds the circuit stays open (default 30)
	RetryInitialMillis  int `json:"retry_initial_millis"`  // Initial retry interval for version conflicts (default 100)
	RetryMaxElapsedSecs int `json:"retry_max_elapsed_secs"` // Stop retrying after this long (default 30)
}

// Config is the top-level engine configuration. The priority weights and
// atomicity bounds are externalized here so tuning never requires
// recompilation.
type Config struct {
	Priority  priority.Weights `json:"priority"`
	Atomicity atomicity.Config `json:"atomicity"`
	Planner   planner.Config   `json:"planner"`
	Dispatch  DispatchConfig   `json:"dispatch"`
}
