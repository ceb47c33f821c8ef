package engine

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/waveplan/internal/task"
)

// Executor is the downstream consumer boundary: it performs a task's work
// and reports the outcome as an error. A *TaskFailedError means the task
// ran and failed; any other error is a dispatch failure.
type Executor interface {
	Name() string
	Execute(ctx context.Context, t *task.Task) error
}

// TaskFailedError is an executor's structured failure report.
type TaskFailedError struct {
	TaskID string
	Reason string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %q failed: %s", e.TaskID, e.Reason)
}

// TaskResult is the dispatch outcome for one task.
type TaskResult struct {
	TaskID  string
	Success bool
	Err     error
}

// Dispatcher is the scheduling loop: it plans waves against graph
// snapshots and dispatches one wave at a time, recomputing whenever the
// plan goes stale. The next wave starts only after the previous one is
// fully completed; failures stop the loop for external resolution.
type Dispatcher struct {
	engine   *Engine
	executor Executor
	breakers *breakerRegistry
}

// NewDispatcher creates a Dispatcher over the engine and executor.
func NewDispatcher(e *Engine, ex Executor) *Dispatcher {
	return &Dispatcher{
		engine:   e,
		executor: ex,
		breakers: newBreakerRegistry(e.cfg.Dispatch),
	}
}

// Run plans and dispatches until no eligible work remains, a wave fails,
// or the context is cancelled. Returns the per-task results so far.
func (d *Dispatcher) Run(ctx context.Context) ([]TaskResult, error) {
	var results []TaskResult

	for {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		if err := d.engine.RefreshBlocked(ctx); err != nil {
			return results, err
		}

		plan, err := d.engine.PlanWaves(ctx)
		if err != nil {
			return results, err
		}
		if len(plan.Waves) == 0 {
			return results, nil
		}

		// Optimistic invalidation: a plan computed against an older graph
		// version is discarded, never dispatched.
		current, err := d.engine.PlanIsCurrent(ctx, plan)
		if err != nil {
			return results, err
		}
		if !current {
			log.Printf("plan for graph version %d is stale, recomputing", plan.GraphVersion)
			continue
		}

		// Dispatch only the first wave; completions change the eligible
		// set, so later waves are replanned rather than trusted.
		waveResults, err := d.dispatchWave(ctx, plan.Waves[0].TaskIDs)
		results = append(results, waveResults...)
		if err != nil {
			return results, err
		}

		for _, res := range waveResults {
			if !res.Success {
				// Failed tasks need external resolution (retry, block, or
				// cancel) before any later wave may run.
				return results, nil
			}
		}
	}
}

// dispatchWave claims and executes every task in one wave with bounded
// concurrency.
func (d *Dispatcher) dispatchWave(ctx context.Context, taskIDs []string) ([]TaskResult, error) {
	concurrency := d.engine.cfg.Dispatch.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	results := make([]TaskResult, len(taskIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, id := range taskIDs {
		g.Go(func() error {
			results[i] = d.dispatchTask(gctx, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// dispatchTask runs one task through claim, execution and outcome report.
func (d *Dispatcher) dispatchTask(ctx context.Context, taskID string) TaskResult {
	t, err := d.engine.store.GetTask(ctx, taskID)
	if err != nil {
		return TaskResult{TaskID: taskID, Err: err}
	}

	if err := d.engine.Claim(ctx, taskID, d.executor.Name()); err != nil {
		// Someone else claimed it, or it was cancelled under us.
		return TaskResult{TaskID: taskID, Err: err}
	}

	cb := d.breakers.get(d.executor.Name())
	execErr := executeWithRetry(ctx, d.executor, t, cb, d.engine.cfg.Dispatch)

	passed := execErr == nil
	reason := "executor reported success"
	if execErr != nil {
		reason = execErr.Error()
	}
	if err := d.engine.ReportOutcome(ctx, taskID, d.executor.Name(), passed, reason); err != nil {
		return TaskResult{TaskID: taskID, Success: false, Err: err}
	}
	return TaskResult{TaskID: taskID, Success: passed, Err: execErr}
}
