package corexpr

import (
	"context"

	"github.com/flowcore/flowexpr/pkg/api"
)

// Forget implements spec.md §4.5: detach this node so the rest of the
// tree can progress in parallel.
func (b *Base) Forget(ctx context.Context) error {
	formerParent := b.rec.ParentID

	if err := b.deps.Queue.Emit(ctx, api.Event{
		Channel: api.ChannelExpressions,
		Kind:    api.EventForgotten,
		Payload: map[string]any{"fei": b.rec.Fei, "parent": formerParent},
	}); err != nil {
		return err
	}

	env, err := b.visibleEnvironment(ctx)
	if err != nil {
		return err
	}
	b.rec.Variables = env

	b.rec.ParentID = nil
	b.deps.Observer.OnForgotten(ctx, b.rec.Fei, formerParent)

	return b.persist(ctx)
}

// visibleEnvironment materializes every variable visible from this node's
// current position by walking the parent chain bottom to top, merging so
// that local definitions override inherited ones — spec.md §4.5 step 2.
func (b *Base) visibleEnvironment(ctx context.Context) (map[string]any, error) {
	chain := []api.ExpressionRecord{b.rec}
	cur := b.rec
	for cur.ParentID != nil {
		parent, err := b.deps.Storage.Load(ctx, *cur.ParentID)
		if err != nil {
			return nil, err
		}
		chain = append(chain, parent)
		cur = parent
	}

	env := map[string]any{}
	// Merge from the outermost (engine-global-adjacent) scope inward so
	// that a closer scope's binding wins.
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].Variables {
			if v != nil {
				env[k] = v
			}
		}
	}
	return env, nil
}
