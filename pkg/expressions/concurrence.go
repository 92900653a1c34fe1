package expressions

import (
	"context"

	"github.com/flowcore/flowexpr/internal/corexpr"
	"github.com/flowcore/flowexpr/pkg/api"
	"github.com/flowcore/flowexpr/pkg/pool"
)

// concRepliedAttr is the updated_tree attribute Concurrence uses to count
// how many of its children have replied so far.
const concRepliedAttr = "__conc_replied__"

// Concurrence applies every child at once and replies to its own parent
// once all children have replied, grounded on the teacher's ParallelStep
// fan-out/join shape. Base.DoReply removes the finishing child and then
// calls the Reply hook for every child reply; Reply does the join itself.
type Concurrence struct {
	*corexpr.Base
}

// NewConcurrenceFactory returns a pool.KindFactory that binds a
// Concurrence to base.
func NewConcurrenceFactory() pool.KindFactory {
	return func(base *corexpr.Base) api.Expression {
		return &Concurrence{Base: base}
	}
}

func (c *Concurrence) Apply(ctx context.Context, w api.Workitem) error {
	tree := c.CurrentTree()
	if len(tree.Children) == 0 {
		return c.ReplyToParent(ctx, w)
	}
	if err := c.SetUpdatedAttr(ctx, concRepliedAttr, 0); err != nil {
		return err
	}
	for i := range tree.Children {
		if err := c.ApplyChild(ctx, i, w, false); err != nil {
			return err
		}
	}
	return nil
}

// Reply is invoked once per replying child (Base.DoReply has already
// removed it from Children by the time this runs); it counts the replies
// and the join completes once every child of the tree has replied. The
// count is kept rather than checking for an empty Children list, since a
// child can reply before its later siblings have been applied. The
// workitem replied to the parent is the last child's — merging sibling
// outputs is a concrete-expression policy this generic construct
// deliberately leaves unspecified (spec.md's Non-goals exclude concrete
// expression semantics beyond the protocol).
func (c *Concurrence) Reply(ctx context.Context, w api.Workitem) error {
	replied := 1
	if v, ok := c.UpdatedAttr(concRepliedAttr); ok {
		n, _ := v.(int)
		replied += n
	}
	if replied < len(c.CurrentTree().Children) {
		return c.SetUpdatedAttr(ctx, concRepliedAttr, replied)
	}
	return c.ReplyToParent(ctx, w)
}
