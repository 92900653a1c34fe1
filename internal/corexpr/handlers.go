package corexpr

import (
	"context"

	"github.com/flowcore/flowexpr/pkg/api"
)

// LookupOn implements spec.md §4.6's lookup_on: walk up the parent chain
// to find the nearest ancestor (including self) that has a handler of the
// given kind ("on_cancel", "on_error", "on_timeout").
func (b *Base) LookupOn(ctx context.Context, kind api.HandlerTrigger) (any, api.FEI, error) {
	return lookupOn(ctx, b.deps.Storage, b.rec, kind)
}

// FailAncestor implements the "concrete expression or its child calls
// fail() on the nearest handler-owning ancestor" path of spec.md §4.6/§7:
// it walks the parent chain via LookupOn(on_error) and forces the node it
// finds into the failing state. If no ancestor declares on_error, the
// walk still terminates at the root and fail() is applied there, so the
// branch tears down cleanly instead of silently doing nothing.
func (b *Base) FailAncestor(ctx context.Context, cause error) error {
	_, target, err := b.LookupOn(ctx, api.HandlerOnError)
	if err != nil {
		return err
	}

	if target == (api.FEI{}) || target == b.rec.Fei {
		err = b.Fail(ctx, cause)
	} else {
		var rec api.ExpressionRecord
		rec, err = b.deps.Storage.Load(ctx, target)
		if err == nil {
			err = NewBase(rec, b.deps).Fail(ctx, cause)
		}
	}
	if err != nil {
		return err
	}
	// The ancestor's cascade has already torn down or reapplied this
	// node's own identity in storage (it is one of the ancestor's
	// descendants). The caller's own do_apply must not persist its
	// now-stale in-memory copy on top of that.
	b.replied = true
	return nil
}

func lookupOn(ctx context.Context, storage api.Storage, rec api.ExpressionRecord, kind api.HandlerTrigger) (any, api.FEI, error) {
	var h any
	switch kind {
	case api.HandlerOnError:
		h = rec.OnError
	case api.HandlerOnCancel:
		h = rec.OnCancel
	case api.HandlerOnTimeout:
		h = rec.OnTimeout
	}
	if h != nil {
		return h, rec.Fei, nil
	}
	if rec.ParentID == nil {
		// No node in the chain declares a handler. Terminate at the root's
		// own identity, not the zero FEI, so a caller like FailAncestor
		// still cascades the failure to the root instead of mistaking "no
		// handler anywhere" for "handle it on myself" at the leaf that
		// happened to ask.
		return nil, rec.Fei, nil
	}
	parent, err := storage.Load(ctx, *rec.ParentID)
	if err != nil {
		return nil, api.FEI{}, err
	}
	return lookupOn(ctx, storage, parent, kind)
}

// replyToParent implements the terminal behavior of spec.md §4.1/§4.2/
// §4.4/§4.6: splice tree edits upward, clear any tag, unschedule any
// pending timeout, dispatch a declared handler if this node is not
// active, and otherwise hand the reply to the real parent (or let it
// vanish, for a root).
func (b *Base) replyToParent(ctx context.Context, w api.Workitem) error {
	if err := b.propagateToParent(ctx); err != nil {
		return err
	}
	if err := b.clearTag(ctx); err != nil {
		return err
	}
	if err := b.unscheduleTimeout(ctx); err != nil {
		return err
	}

	switch b.rec.State {
	case api.StateFailing:
		handled, err := b.dispatchOnError(ctx, w)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	case api.StateCancelling:
		handled, err := b.dispatchOnCancel(ctx)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	case api.StateTimingOut:
		handled, err := b.dispatchOnTimeout(ctx)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}

	b.deps.Observer.OnReply(ctx, b.rec.Fei)
	// Always deliver the reply event through the pool, even for a root
	// (nil parent_id): spec.md §4.5 makes the pool responsible for
	// noticing a root reply and tearing the branch down, rather than the
	// base short-circuiting the call itself.
	if err := b.deps.Pool.ReplyToParent(ctx, b.rec.Fei, w); err != nil {
		return err
	}
	b.replied = true
	return b.unpersist(ctx)
}

func (b *Base) dispatchOnError(ctx context.Context, w api.Workitem) (bool, error) {
	h := b.rec.OnError
	if h == nil {
		return false, nil
	}
	if s, ok := h.(string); ok {
		switch s {
		case api.HandlerUndo:
			// The already-performed cancel is the resolution; fall
			// through to a normal terminal reply.
			return false, nil
		case api.HandlerRedo:
			return true, b.reapply(ctx, b.currentTree(), api.HandlerOnError)
		default:
			return true, b.reapply(ctx, api.Tree{Name: s}, api.HandlerOnError)
		}
	}
	if t, ok := h.(api.Tree); ok {
		return true, b.reapply(ctx, t, api.HandlerOnError)
	}
	return false, nil
}

func (b *Base) dispatchOnCancel(ctx context.Context) (bool, error) {
	h := b.rec.OnCancel
	if h == nil {
		return false, nil
	}
	if s, ok := h.(string); ok {
		return true, b.reapply(ctx, api.Tree{Name: s}, api.HandlerOnCancel)
	}
	if t, ok := h.(api.Tree); ok {
		return true, b.reapply(ctx, t, api.HandlerOnCancel)
	}
	return false, nil
}

func (b *Base) dispatchOnTimeout(ctx context.Context) (bool, error) {
	h := b.rec.OnTimeout
	if h == nil {
		return false, nil
	}
	if s, ok := h.(string); ok {
		if s == api.HandlerError {
			return true, b.publishTimeoutError(ctx)
		}
		if s == api.HandlerRedo {
			return true, b.reapply(ctx, b.currentTree(), api.HandlerOnTimeout)
		}
		return true, b.reapply(ctx, api.Tree{Name: s}, api.HandlerOnTimeout)
	}
	if t, ok := h.(api.Tree); ok {
		return true, b.reapply(ctx, t, api.HandlerOnTimeout)
	}
	return false, nil
}

// reapply reuses this node's fei, parent_id, variables, and
// applied_workitem, passing trigger so recursive failure can be detected
// by the pool (spec.md §4.6).
func (b *Base) reapply(ctx context.Context, tree api.Tree, trigger api.HandlerTrigger) error {
	params := api.ApplyParams{
		Tree:      tree,
		Fei:       b.rec.Fei,
		ParentID:  b.rec.ParentID,
		Workitem:  b.rec.AppliedWorkitem,
		Variables: b.rec.Variables,
		Trigger:   trigger,
	}
	return b.deps.Pool.Apply(ctx, params)
}

// publishTimeoutError implements spec.md §4.6/§7: when on_timeout is the
// literal "error", synthesize a TimeoutError on the errors channel instead
// of reapplying a handler tree.
func (b *Base) publishTimeoutError(ctx context.Context) error {
	te := &api.TimeoutError{Fei: b.rec.Fei, Timeout: b.currentTree().AttrString("timeout")}
	resumeParams := api.ApplyParams{
		Tree:      b.currentTree(),
		Fei:       b.rec.Fei,
		ParentID:  b.rec.ParentID,
		Workitem:  b.rec.AppliedWorkitem,
		Variables: b.rec.Variables,
		Trigger:   api.HandlerOnTimeout,
	}
	b.deps.Observer.OnTimeout(ctx, b.rec.Fei)
	if err := b.deps.Queue.Emit(ctx, api.Event{
		Channel: api.ChannelErrors,
		Kind:    api.EventExpressionPoolError,
		Payload: map[string]any{
			"error":   te,
			"wfid":    b.rec.Fei.WorkflowID,
			"message": resumeParams,
		},
	}); err != nil {
		return err
	}
	b.replied = true
	return b.unpersist(ctx)
}
