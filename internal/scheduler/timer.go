// Package scheduler provides the timed-wake-up collaborator (spec.md
// §1/§6): scheduling a future cancel(flavour=timeout) event for a FEI.
// Grounded on the teacher's internal/taskqueue poll-loop and delayed-task
// (not_before) conventions, retargeted from task dequeue to direct
// callback dispatch.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowcore/flowexpr/pkg/api"
)

// Fire is invoked when a scheduled duration elapses, spec.md §4.1's
// do_cancel(timeout) dispatch.
type Fire func(ctx context.Context, fei api.FEI) error

// Timer is an in-process api.Scheduler backed by time.AfterFunc,
// grounded on the teacher's taskqueue.InMemoryQueue in spirit: no
// durability across restarts, appropriate for a single-process pool.
type Timer struct {
	mu   sync.Mutex
	jobs map[string]*time.Timer
	fire Fire
}

var _ api.Scheduler = (*Timer)(nil)

// NewTimer constructs a Timer scheduler that calls fire when a job's
// duration elapses.
func NewTimer(fire Fire) *Timer {
	return &Timer{jobs: make(map[string]*time.Timer), fire: fire}
}

func (s *Timer) In(ctx context.Context, d time.Duration, fei api.FEI) (string, error) {
	jobID := uuid.NewString()

	t := time.AfterFunc(d, func() {
		s.mu.Lock()
		_, live := s.jobs[jobID]
		delete(s.jobs, jobID)
		s.mu.Unlock()
		if !live {
			return
		}
		_ = s.fire(context.Background(), fei)
	})

	s.mu.Lock()
	s.jobs[jobID] = t
	s.mu.Unlock()

	return jobID, nil
}

func (s *Timer) Unschedule(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	t.Stop()
	delete(s.jobs, jobID)
	return nil
}
