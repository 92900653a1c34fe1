package expressions

import (
	"context"
	"strconv"

	"github.com/flowcore/flowexpr/internal/corexpr"
	"github.com/flowcore/flowexpr/pkg/api"
	"github.com/flowcore/flowexpr/pkg/pool"
)

// cursorIterAttr is the updated_tree attribute Cursor uses to remember
// its iteration count across reapplications of the same body child,
// spec.md §4.2's "how constructs like cursor and loops re-enter rewritten
// subtrees after each iteration without ever mutating the canonical
// process definition."
const cursorIterAttr = "__cursor_iter__"

// Cursor repeatedly re-applies its single body child (children[0]),
// bounded by a "times" attribute (fixed repeat count) and/or a "while"
// attribute (a ${...}-interpolated guard re-evaluated against the
// workitem each iteration), grounded on the teacher's WhileStep/LoopStep
// (api.WhileStep, api.LoopStep — "the entire loop is treated as a single
// engine step"), re-expressed as the canonical consumer of tree
// propagation instead of an in-process Go loop.
type Cursor struct {
	*corexpr.Base
}

// NewCursorFactory returns a pool.KindFactory that binds a Cursor to
// base.
func NewCursorFactory() pool.KindFactory {
	return func(base *corexpr.Base) api.Expression {
		return &Cursor{Base: base}
	}
}

func (c *Cursor) Apply(ctx context.Context, w api.Workitem) error {
	tree := c.CurrentTree()
	if len(tree.Children) == 0 || !c.shouldIterate(tree, 0, w) {
		return c.ReplyToParent(ctx, w)
	}
	if err := c.SetUpdatedAttr(ctx, cursorIterAttr, 0); err != nil {
		return err
	}
	return c.ApplyChild(ctx, 0, w, false)
}

func (c *Cursor) Reply(ctx context.Context, w api.Workitem) error {
	tree := c.CurrentTree()
	next := c.iteration() + 1
	if !c.shouldIterate(tree, next, w) {
		return c.ReplyToParent(ctx, w)
	}
	if err := c.SetUpdatedAttr(ctx, cursorIterAttr, next); err != nil {
		return err
	}
	return c.ApplyChild(ctx, 0, w, false)
}

func (c *Cursor) iteration() int {
	v, ok := c.UpdatedAttr(cursorIterAttr)
	if !ok {
		return -1
	}
	i, _ := v.(int)
	return i
}

// shouldIterate reports whether the body should run for the given
// (0-based) iteration count, evaluating "times" and "while" the way
// api.Condition evaluates "if"/"unless": ${...} substitution against the
// current workitem.
func (c *Cursor) shouldIterate(tree api.Tree, iteration int, w api.Workitem) bool {
	if raw := tree.AttrString("times"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err == nil && iteration >= n {
			return false
		}
	}
	if raw, ok := tree.Attr("while"); ok {
		s, _ := raw.(string)
		if s != "" && !whileTruthy(s, w) {
			return false
		}
	}
	return true
}

func whileTruthy(s string, w api.Workitem) bool {
	resolved := api.Interpolate(s, w)
	return resolved != "" && resolved != "false" && resolved != "0"
}
