package flowexpr

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/flowcore/flowexpr/internal/worker"
)

// Re-export the worker surface so callers do not need to import
// internal/worker directly.
type (
	Job    = worker.Job
	Runner = worker.Runner
)

const (
	JobApplyRoot = worker.JobApplyRoot
	JobCancel    = worker.JobCancel
)

// LocalRunner bundles an in-memory Pool, an in-memory job queue, and a
// Runner to provide a simple local development/debugging setup, matching
// the teacher's LocalRunner (in-memory Engine + taskqueue.Queue + Worker).
//
// Typical usage:
//
//	runner := flowexpr.NewLocalRunner()
//	_ = runner.StartWorkers(ctx, 2)
//	_ = runner.EnqueueRoot(ctx, "wf1", tree, flowexpr.Workitem{Fields: map[string]any{}})
//	...
//	runner.Stop()
type LocalRunner struct {
	// Pool is the in-memory expression pool used by this runner.
	Pool *Pool

	// Runner processes jobs from an in-memory queue using Pool.
	Runner *Runner

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory pool, an
// in-memory job queue, and a Runner with the default (single-attempt,
// no-backoff) retry config.
func NewLocalRunner() *LocalRunner {
	p := NewInMemoryPool()
	q := worker.NewInMemoryQueue(1024)
	r := worker.New(p, q)
	return &LocalRunner{Pool: p, Runner: r}
}

// EnqueueRoot queues a job to apply tree as a new root workflow.
func (r *LocalRunner) EnqueueRoot(ctx context.Context, workflowID string, tree Tree, w Workitem) error {
	return r.Runner.EnqueueRoot(ctx, workflowID, tree, w)
}

// EnqueueCancel queues a job to cancel a running expression.
func (r *LocalRunner) EnqueueCancel(ctx context.Context, fei FEI, flavour Flavour) error {
	return r.Runner.EnqueueCancel(ctx, fei, flavour)
}

// StartWorkers starts concurrency goroutines that continuously call
// Runner.ProcessOne(ctx) until Stop is called.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("flowexpr: LocalRunner already started")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()
			for {
				processed, err := r.Runner.ProcessOne(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					slog.Default().ErrorContext(ctx, "flowexpr: local runner worker error", slog.Any("error", err))
					continue
				}
				if !processed {
					continue
				}
			}
		}()
	}
	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits for
// them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.running = false
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
