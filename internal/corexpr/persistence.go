package corexpr

import (
	"context"
	"time"

	"github.com/flowcore/flowexpr/pkg/api"
)

// persist updates modified_time and emits an update event on the work
// queue, spec.md §4.7. Every externally-observable mutation must be
// followed by a persist so crash recovery resumes at the exact next event.
func (b *Base) persist(ctx context.Context) error {
	b.rec.ModifiedTime = time.Now()
	if err := b.deps.Storage.Save(ctx, b.rec); err != nil {
		return err
	}
	return b.deps.Queue.EmitSync(ctx, api.Event{
		Channel: api.ChannelExpressions,
		Kind:    api.EventUpdate,
		Payload: b.rec.Clone(),
	})
}

// unpersist removes this expression's storage record and emits a delete
// event, spec.md §4.7.
func (b *Base) unpersist(ctx context.Context) error {
	if err := b.deps.Storage.Delete(ctx, b.rec.Fei); err != nil {
		return err
	}
	return b.deps.Queue.EmitSync(ctx, api.Event{
		Channel: api.ChannelExpressions,
		Kind:    api.EventDelete,
		Payload: b.rec.Fei,
	})
}
