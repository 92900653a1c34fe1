// Package queue provides the work-queue collaborator (spec.md §1/§6):
// publish/subscribe event delivery for expression, variable, and error
// events, grounded on the teacher's internal/taskqueue package.
package queue

import (
	"context"
	"sync"

	"github.com/flowcore/flowexpr/pkg/api"
)

// InMemory is a goroutine-safe, in-process api.Queue, grounded on the
// teacher's taskqueue.InMemoryQueue (a channel-backed queue turned into a
// synchronous fan-out bus since subscribers here are callbacks, not a
// single worker's Dequeue loop).
type InMemory struct {
	mu   sync.RWMutex
	subs map[api.EventChannel][]*subscription
	next int
}

type subscription struct {
	id int
	fn func(api.Event)
}

var _ api.Queue = (*InMemory)(nil)

// New creates an empty in-memory queue.
func New() *InMemory {
	return &InMemory{subs: make(map[api.EventChannel][]*subscription)}
}

func (q *InMemory) Subscribe(channel api.EventChannel, fn func(api.Event)) func() {
	q.mu.Lock()
	q.next++
	id := q.next
	q.subs[channel] = append(q.subs[channel], &subscription{id: id, fn: fn})
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		list := q.subs[channel]
		for i, s := range list {
			if s.id == id {
				q.subs[channel] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

func (q *InMemory) subscribers(channel api.EventChannel) []*subscription {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]*subscription(nil), q.subs[channel]...)
}

// Emit and EmitSync are identical for this backend: delivery is
// synchronous, in-process function calls, so there is no asynchronous
// tail to wait on.
func (q *InMemory) Emit(ctx context.Context, ev api.Event) error {
	return q.EmitSync(ctx, ev)
}

func (q *InMemory) EmitSync(ctx context.Context, ev api.Event) error {
	for _, s := range q.subscribers(ev.Channel) {
		s.fn(ev)
	}
	return nil
}
