// Package expressions provides concrete expression kinds exercising the
// flow-expression base (internal/corexpr): sequence, concurrence, command,
// wait, and cursor. These are the "concrete expression kinds" spec.md §2
// lists as out of scope for the core itself — reference collaborators
// that make the module runnable end-to-end, grounded on the teacher's
// step combinators (executeSteps' sequential loop, ParallelStep,
// WhileStep/LoopStep) re-expressed over pool.ApplyChild instead of direct
// Go function calls.
package expressions

import (
	"context"

	"github.com/flowcore/flowexpr/internal/corexpr"
	"github.com/flowcore/flowexpr/pkg/api"
	"github.com/flowcore/flowexpr/pkg/pool"
)

// seqIdxAttr is the updated_tree attribute Sequence uses to remember which
// child it most recently applied, spec.md §4.2's tree-rewrite mechanism
// repurposed for progress tracking rather than structural rewrite.
const seqIdxAttr = "__seq_idx__"

// Sequence applies its children one at a time, in order, replying to its
// own parent once the last child has replied. Grounded on the teacher's
// executeSteps loop (internal/engine/engine_impl.go), re-expressed as a
// tree-of-expressions construct instead of a flat step list.
type Sequence struct {
	*corexpr.Base
}

// NewSequenceFactory returns a pool.KindFactory that binds a Sequence to
// base.
func NewSequenceFactory() pool.KindFactory {
	return func(base *corexpr.Base) api.Expression {
		return &Sequence{Base: base}
	}
}

func (s *Sequence) Apply(ctx context.Context, w api.Workitem) error {
	tree := s.CurrentTree()
	if len(tree.Children) == 0 {
		return s.ReplyToParent(ctx, w)
	}
	if err := s.SetUpdatedAttr(ctx, seqIdxAttr, 0); err != nil {
		return err
	}
	return s.ApplyChild(ctx, 0, w, false)
}

func (s *Sequence) Reply(ctx context.Context, w api.Workitem) error {
	tree := s.CurrentTree()
	idx := s.lastIndex()
	next := idx + 1
	if next >= len(tree.Children) {
		return s.ReplyToParent(ctx, w)
	}
	if err := s.SetUpdatedAttr(ctx, seqIdxAttr, next); err != nil {
		return err
	}
	return s.ApplyChild(ctx, next, w, false)
}

func (s *Sequence) lastIndex() int {
	v, ok := s.UpdatedAttr(seqIdxAttr)
	if !ok {
		return -1
	}
	i, _ := v.(int)
	return i
}
