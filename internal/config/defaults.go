package config

import (
	"github.com/aristath/waveplan/internal/atomicity"
	"github.com/aristath/waveplan/internal/planner"
	"github.com/aristath/waveplan/internal/priority"
)

// DefaultConfig returns the built-in engine tuning.
func DefaultConfig() *Config {
	return &Config{
		Priority:  priority.DefaultWeights(),
		Atomicity: atomicity.DefaultConfig(),
		Planner:   planner.Config{ConflictParallelism: 4},
		Dispatch: DispatchConfig{
			Concurrency:         4,
			BreakerFailures:     5,
			BreakerOpenSeconds:  30,
			RetryInitialMillis:  100,
			RetryMaxElapsedSecs: 30,
		},
	}
}
