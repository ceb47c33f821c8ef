package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/waveplan/internal/config"
	"github.com/aristath/waveplan/internal/task"
)

// breakerRegistry manages per-executor circuit breakers so a failing
// executor stops receiving dispatches instead of burning through a wave.
type breakerRegistry struct {
	mu       sync.Mutex
	cfg      config.DispatchConfig
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerRegistry(cfg config.DispatchConfig) *breakerRegistry {
	return &breakerRegistry{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// get returns the circuit breaker for the named executor, creating it on
// first use.
func (r *breakerRegistry) get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	failures := uint32(r.cfg.BreakerFailures)
	if failures == 0 {
		failures = 5
	}
	openFor := time.Duration(r.cfg.BreakerOpenSeconds) * time.Second
	if openFor <= 0 {
		openFor = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3, // test requests allowed in half-open state
		Interval:    0,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// A task failing its work is an outcome, not an executor
			// outage; only transport-level errors trip the breaker.
			// Cancellation is the user's doing either way.
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})
	r.breakers[name] = cb
	return cb
}

// executeWithRetry runs one task through the executor with exponential
// backoff and circuit breaker protection. Returns the task's outcome
// error, or a dispatch error when the executor could not be reached.
func executeWithRetry(ctx context.Context, ex Executor, t *task.Task, cb *gobreaker.CircuitBreaker, cfg config.DispatchConfig) error {
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		_, err := cb.Execute(func() (interface{}, error) {
			return nil, ex.Execute(ctx, t)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			var outcome *TaskFailedError
			if errors.As(err, &outcome) {
				// The executor ran the task and it failed; retrying the
				// dispatch would re-run completed work.
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	if cfg.RetryInitialMillis > 0 {
		policy.InitialInterval = time.Duration(cfg.RetryInitialMillis) * time.Millisecond
	}
	if cfg.RetryMaxElapsedSecs > 0 {
		policy.MaxElapsedTime = time.Duration(cfg.RetryMaxElapsedSecs) * time.Second
	}

	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}
