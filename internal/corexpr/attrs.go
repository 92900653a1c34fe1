package corexpr

import (
	"context"

	"github.com/flowcore/flowexpr/pkg/api"
)

// CurrentTree exposes the currently-effective tree (updated_tree when
// present, else original_tree) to concrete expression kinds, spec.md §3
// invariant 5.
func (b *Base) CurrentTree() api.Tree { return b.currentTree() }

// ReplyToParent exposes the terminal reply path of spec.md §4.1/§4.2/§4.4/
// §4.6 to concrete expression kinds that need to finish before all of
// do_apply's bookkeeping would otherwise run again (e.g. a leaf command
// expression replying once its work completes).
func (b *Base) ReplyToParent(ctx context.Context, w api.Workitem) error {
	return b.replyToParent(ctx, w)
}

// ApplyChild instructs the pool to spawn the childIndex-th child of this
// node's current tree, spec.md §6's pool.apply_child.
func (b *Base) ApplyChild(ctx context.Context, childIndex int, w api.Workitem, forget bool) error {
	return b.deps.Pool.ApplyChild(ctx, b.rec.Fei, childIndex, w, forget)
}

// SetUpdatedAttr records a self-mutation of this node's own tree, used by
// constructs like sequence/cursor to track progress (e.g. the next child
// index to apply) without touching the canonical original_tree, mirroring
// the cursor/loop use of updated_tree in spec.md §4.2. It persists the
// change immediately, matching spec.md §8 property 8.
func (b *Base) SetUpdatedAttr(ctx context.Context, name string, value any) error {
	if b.rec.UpdatedTree == nil {
		clone := b.rec.OriginalTree.Clone()
		b.rec.UpdatedTree = &clone
	}
	if b.rec.UpdatedTree.Attributes == nil {
		b.rec.UpdatedTree.Attributes = map[string]any{}
	}
	b.rec.UpdatedTree.Attributes[name] = value
	return b.persist(ctx)
}

// UpdatedAttr reads back a value set by SetUpdatedAttr, falling back to the
// original_tree's attribute of the same name when no local edit exists.
func (b *Base) UpdatedAttr(name string) (any, bool) {
	return b.currentTree().Attr(name)
}
