package worker

import "context"

// Queue delivers Jobs to a Runner, grounded on the teacher's
// internal/taskqueue.Queue interface.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
	Len() int
}

// InMemoryQueue is a Queue backed by a buffered channel, grounded on the
// teacher's taskqueue.InMemoryQueue. It is safe for concurrent use and,
// like its teacher counterpart, does not honor Job.NotBefore itself —
// delayed redelivery is the Runner's job (see retry backoff in runner.go).
type InMemoryQueue struct {
	ch chan Job
}

// NewInMemoryQueue creates a queue with the given capacity. A non-positive
// capacity falls back to 1024, matching the teacher's default.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{ch: make(chan Job, capacity)}
}

var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case j := <-q.ch:
		return j, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (q *InMemoryQueue) Len() int {
	return len(q.ch)
}
