package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowcore/flowexpr/pkg/api"
	"github.com/flowcore/flowexpr/pkg/pool"
)

// Config controls a Runner's retry policy, grounded on the teacher's
// worker.Config{MaxAttempts, Backoff}.
type Config struct {
	// MaxAttempts is the total number of times a job is tried (the first
	// try plus retries) before it is given up on and logged as
	// worker_job_exhausted through the Runner's slog logger. A
	// non-positive value disables retries: a job
	// is tried exactly once.
	MaxAttempts int
	// Backoff is the fixed delay before a failed job is redelivered.
	// The teacher uses a fixed delay rather than exponential backoff; the
	// same simplification is kept here.
	Backoff time.Duration
}

// DefaultConfig matches the teacher's implicit zero-value behavior: a
// single attempt, no retry delay.
var DefaultConfig = Config{MaxAttempts: 1, Backoff: 0}

// Runner pulls Jobs from a Queue and drives them through a Pool, the way
// the teacher's Worker pulls Tasks from a taskqueue.Queue and drives them
// through an Engine. Runner is the asynchronous, queue-fed counterpart to
// calling Pool.ApplyRoot/CancelExpression directly.
type Runner struct {
	pool   *pool.Pool
	queue  Queue
	cfg    Config
	logger *slog.Logger
}

// New creates a Runner with DefaultConfig.
func New(p *pool.Pool, q Queue) *Runner {
	return NewWithConfig(p, q, DefaultConfig)
}

// NewWithConfig creates a Runner with an explicit retry policy.
func NewWithConfig(p *pool.Pool, q Queue, cfg Config) *Runner {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Runner{pool: p, queue: q, cfg: cfg, logger: slog.Default()}
}

// EnqueueRoot enqueues a job to apply tree as a new root workflow, the
// asynchronous counterpart to calling Pool.ApplyRoot directly.
func (r *Runner) EnqueueRoot(ctx context.Context, workflowID string, tree api.Tree, w api.Workitem) error {
	return r.queue.Enqueue(ctx, Job{
		ID:         uuid.NewString(),
		Type:       JobApplyRoot,
		WorkflowID: workflowID,
		Tree:       tree,
		Workitem:   w,
		EnqueuedAt: time.Now(),
	})
}

// EnqueueCancel enqueues a job to cancel a running expression.
func (r *Runner) EnqueueCancel(ctx context.Context, fei api.FEI, flavour api.Flavour) error {
	return r.queue.Enqueue(ctx, Job{
		ID:         uuid.NewString(),
		Type:       JobCancel,
		WorkflowID: fei.WorkflowID,
		Fei:        fei,
		Flavour:    flavour,
		EnqueuedAt: time.Now(),
	})
}

// ProcessOne dequeues and executes a single job. Returns (processed, err):
// processed is false only when ctx was done before a job arrived.
func (r *Runner) ProcessOne(ctx context.Context) (bool, error) {
	job, err := r.queue.Dequeue(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		return false, err
	}

	execErr := r.execute(ctx, job)
	if execErr != nil && job.Attempt+1 < r.cfg.MaxAttempts {
		retry := job
		retry.Attempt++
		r.scheduleRetry(retry)
		return true, execErr
	}
	if execErr != nil {
		r.logger.ErrorContext(ctx, "worker_job_exhausted",
			slog.String("job_id", job.ID), slog.String("type", string(job.Type)),
			slog.Int("attempts", job.Attempt+1), slog.Any("error", execErr))
	}
	return true, execErr
}

func (r *Runner) execute(ctx context.Context, job Job) error {
	switch job.Type {
	case JobApplyRoot:
		return r.pool.ApplyRoot(ctx, job.WorkflowID, job.Tree, job.Workitem)
	case JobCancel:
		return r.pool.CancelExpression(ctx, job.Fei, job.Flavour)
	default:
		return errors.New("worker: unknown job type: " + string(job.Type))
	}
}

func (r *Runner) scheduleRetry(job Job) {
	if r.cfg.Backoff <= 0 {
		_ = r.queue.Enqueue(context.Background(), job)
		return
	}
	time.AfterFunc(r.cfg.Backoff, func() {
		_ = r.queue.Enqueue(context.Background(), job)
	})
}

// Run drives ProcessOne in a loop until ctx is done, the way a real
// deployment would run a Runner in a dedicated goroutine. Errors from
// individual jobs are logged, not returned, so one bad job cannot stop the
// loop; only ctx cancellation ends Run.
func (r *Runner) Run(ctx context.Context) error {
	for {
		_, err := r.ProcessOne(ctx)
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return err
		}
	}
}
