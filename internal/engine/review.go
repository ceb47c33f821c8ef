package engine

import (
	"context"
	"log"

	"github.com/aristath/waveplan/internal/cascade"
)

const reviewQueueSize = 256

// DecideFunc is the external review surface's policy callback: given a
// pending proposal, approve or reject it with a reason.
type DecideFunc func(ctx context.Context, p cascade.Proposal) (approved bool, reason string, err error)

// resolveFunc applies the decision back into the engine.
type resolveFunc func(ctx context.Context, p cascade.Proposal, approved bool, reason string) error

// ReviewQueue holds cascade proposals awaiting external approval. The
// engine enqueues when auto-apply is off; a review surface drains the
// queue through its DecideFunc.
type ReviewQueue struct {
	ch      chan cascade.Proposal
	resolve resolveFunc
	done    chan struct{}
}

// NewReviewQueue creates a queue with the given buffer size.
func NewReviewQueue(bufSize int, resolve resolveFunc) *ReviewQueue {
	if bufSize <= 0 {
		bufSize = reviewQueueSize
	}
	return &ReviewQueue{
		ch:      make(chan cascade.Proposal, bufSize),
		resolve: resolve,
		done:    make(chan struct{}),
	}
}

// Enqueue adds proposals for review. Non-blocking; a full queue is logged
// loudly rather than stalling an edit, and the proposals remain in the
// returned analysis for the caller to resubmit.
func (q *ReviewQueue) Enqueue(proposals []cascade.Proposal) {
	for _, p := range proposals {
		select {
		case q.ch <- p:
		default:
			log.Printf("WARNING: review queue full, proposal for task %q not queued: %s", p.TaskID, p.Detail)
		}
	}
}

// Next blocks until a proposal is available or the context is cancelled.
func (q *ReviewQueue) Next(ctx context.Context) (cascade.Proposal, error) {
	select {
	case p := <-q.ch:
		return p, nil
	case <-ctx.Done():
		return cascade.Proposal{}, ctx.Err()
	}
}

// Start launches a goroutine that drains the queue through decide until
// the context is cancelled.
func (q *ReviewQueue) Start(ctx context.Context, decide DecideFunc) {
	go func() {
		defer close(q.done)
		for {
			select {
			case <-ctx.Done():
				return
			case p := <-q.ch:
				approved, reason, err := decide(ctx, p)
				if err != nil {
					log.Printf("ERROR: review decision for task %q failed: %v", p.TaskID, err)
					continue
				}
				if err := q.resolve(ctx, p, approved, reason); err != nil {
					log.Printf("ERROR: resolving proposal for task %q failed: %v", p.TaskID, err)
				}
			}
		}
	}()
}

// Wait blocks until the review loop started by Start has exited.
func (q *ReviewQueue) Wait() {
	<-q.done
}
