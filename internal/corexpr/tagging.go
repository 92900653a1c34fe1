package corexpr

import (
	"context"

	"github.com/flowcore/flowexpr/pkg/api"
)

// considerTag implements spec.md §4.4: if a tag attribute is present, bind
// it to this node's fei in the nearest enclosing scope and emit
// tag-entered.
func (b *Base) considerTag(ctx context.Context, tree api.Tree) error {
	tag := tree.AttrString("tag")
	if tag == "" {
		return nil
	}
	if err := b.SetVariable(ctx, tag, b.rec.Fei); err != nil {
		return err
	}
	b.rec.Tagname = tag
	b.deps.Observer.OnTagEntered(ctx, b.rec.Fei, tag)
	return b.deps.Queue.Emit(ctx, api.Event{
		Channel: api.ChannelExpressions,
		Kind:    api.EventTagEntered,
		Payload: map[string]any{"tag": tag, "fei": b.rec.Fei},
	})
}

// clearTag implements the tag half of spec.md §4.4's reply-time cleanup:
// the binding is removed and tag-left is emitted.
func (b *Base) clearTag(ctx context.Context) error {
	if b.rec.Tagname == "" {
		return nil
	}
	tag := b.rec.Tagname
	if err := b.UnsetVariable(ctx, tag); err != nil {
		return err
	}
	b.rec.Tagname = ""
	b.deps.Observer.OnTagLeft(ctx, b.rec.Fei, tag)
	return b.deps.Queue.Emit(ctx, api.Event{
		Channel: api.ChannelExpressions,
		Kind:    api.EventTagLeft,
		Payload: map[string]any{"tag": tag, "fei": b.rec.Fei},
	})
}

// considerTimeout implements spec.md §4.1 step 4: if a timeout attribute
// is present, schedule a cancel-event after the given duration.
func (b *Base) considerTimeout(ctx context.Context, tree api.Tree) error {
	raw := tree.AttrString("timeout")
	if raw == "" {
		return nil
	}
	d, err := parseDuration(raw)
	if err != nil {
		return err
	}
	jobID, err := b.deps.Scheduler.In(ctx, d, b.rec.Fei)
	if err != nil {
		return err
	}
	b.rec.TimeoutJobID = jobID
	return nil
}

// unscheduleTimeout cancels a pending timeout job, used when a node
// replies normally before its timeout fires.
func (b *Base) unscheduleTimeout(ctx context.Context) error {
	if b.rec.TimeoutJobID == "" {
		return nil
	}
	jobID := b.rec.TimeoutJobID
	b.rec.TimeoutJobID = ""
	return b.deps.Scheduler.Unschedule(ctx, jobID)
}
