// Package corexpr implements the FlowExpression base: the abstract
// lifecycle, tree-propagation, variable-scoping, handler-dispatch, and
// persistence behavior shared by every concrete expression kind
// (spec.md §1/§4). It is the core deliverable of this module; concrete
// expression kinds (pkg/expressions) embed *Base and override Apply/
// Reply/Cancel where their semantics differ from the defaults.
package corexpr

import (
	"context"
	"time"

	"github.com/flowcore/flowexpr/pkg/api"
)

// Deps bundles the external collaborators a Base needs, mirroring the
// teacher's engine.Config{Persistence, Observer} bundling.
type Deps struct {
	Storage   api.Storage
	Queue     api.Queue
	Scheduler api.Scheduler
	Globals   api.GlobalVars
	Observer  api.Observer
	Pool      api.Pool
}

func (d Deps) withDefaults() Deps {
	if d.Observer == nil {
		d.Observer = api.NoopObserver{}
	}
	return d
}

// Base is the FlowExpression base. It holds the in-memory cache of one
// expression's persisted record (spec.md §3 "Ownership": the storage owns
// the canonical copy; this is a cache) plus the collaborators needed to
// carry out the lifecycle protocol.
type Base struct {
	rec  api.ExpressionRecord
	deps Deps
	self api.Expression

	replied bool // true once replyToParent has completed a terminal reply/absorb
}

// NewBase constructs a Base around rec. Callers (the pool) must call Bind
// with the concrete expression before dispatching DoApply/DoReply/DoCancel,
// unless the default behavior (Base's own Apply/Reply/Cancel) is desired.
func NewBase(rec api.ExpressionRecord, deps Deps) *Base {
	return &Base{rec: rec, deps: deps.withDefaults()}
}

// Bind wires self as the concrete expression whose Apply/Reply/Cancel hooks
// Base dispatches to — the "self type" pattern that gives this closed set
// of expression kinds dynamic dispatch without an owning object graph
// (spec.md §9).
func (b *Base) Bind(self api.Expression) { b.self = self }

func (b *Base) hook() api.Expression {
	if b.self != nil {
		return b.self
	}
	return b
}

// FEI returns this expression's identity.
func (b *Base) FEI() api.FEI { return b.rec.Fei }

// Record returns a deep copy of the current persisted-state snapshot, for
// inspection by tests and collaborators.
func (b *Base) Record() api.ExpressionRecord { return b.rec.Clone() }

// State returns the current lifecycle state.
func (b *Base) State() api.State { return b.rec.State }

// Children returns a copy of the currently-registered child FEIs.
func (b *Base) Children() []api.FEI {
	return append([]api.FEI(nil), b.rec.Children...)
}

// RegisterChild appends child to this node's children list and persists,
// spec.md §3 Lifecycle: "Mutated only by ... the pool when it registers a
// newly-spawned child."
func (b *Base) RegisterChild(ctx context.Context, child api.FEI) error {
	b.rec.Children = append(b.rec.Children, child)
	return b.persist(ctx)
}

func (b *Base) currentTree() api.Tree {
	if b.rec.UpdatedTree != nil {
		return *b.rec.UpdatedTree
	}
	return b.rec.OriginalTree
}

// Apply is the default Expression.Apply hook: apply the first child if one
// exists, else reply immediately with the unmodified workitem. A truthy
// "background" attribute spawns that child already-forgotten (spec.md
// §6's apply_child forget? parameter) instead of the normal wait-for-reply
// child: this node completes at once and the child runs on as its own
// detached root, the same way DoApply's own forget-attribute step detaches
// a node from its parent, one level down.
func (b *Base) Apply(ctx context.Context, w api.Workitem) error {
	tree := b.currentTree()
	if len(tree.Children) == 0 {
		return b.replyToParent(ctx, w)
	}
	if tree.AttrBool("background") {
		if err := b.deps.Pool.ApplyChild(ctx, b.rec.Fei, 0, w, true); err != nil {
			return err
		}
		// ApplyChild's forget branch already delivered our own reply via
		// Pool.Reply before spawning the child's real work, using a
		// separately-bound Base for that reply. This copy must not
		// persist its now-stale record on top of that.
		b.replied = true
		return nil
	}
	return b.deps.Pool.ApplyChild(ctx, b.rec.Fei, 0, w, false)
}

// Reply is the default Expression.Reply hook: reply to parent immediately
// with the child's workitem (spec.md §4.1's do_reply default).
func (b *Base) Reply(ctx context.Context, w api.Workitem) error {
	return b.replyToParent(ctx, w)
}

// Cancel is the default Expression.Cancel hook: cancel every registered
// child with the same flavour.
func (b *Base) Cancel(ctx context.Context, flavour api.Flavour) error {
	for _, child := range b.rec.Children {
		if err := b.deps.Pool.CancelExpression(ctx, child, flavour); err != nil {
			return err
		}
	}
	return nil
}

// DoApply is the lifecycle wrapper over the concrete Apply hook, spec.md
// §4.1.
func (b *Base) DoApply(ctx context.Context, w api.Workitem) error {
	b.rec.AppliedWorkitem = w.Clone()
	tree := b.currentTree()

	// 1. Guard.
	if !api.Condition(tree, w) {
		if err := b.deps.Pool.ReplyToParent(ctx, b.rec.Fei, w); err != nil {
			return err
		}
		return b.unpersist(ctx)
	}

	// 2. Forget.
	if tree.AttrBool("forget") {
		prevParent := b.rec.ParentID
		if err := b.Forget(ctx); err != nil {
			return err
		}
		if prevParent != nil {
			if err := b.deps.Pool.Reply(ctx, b.rec.Fei, w.Clone(), *prevParent); err != nil {
				return err
			}
		}
		// The detached branch (this node) continues applying below.
	}

	// 3. consider_tag.
	if err := b.considerTag(ctx, tree); err != nil {
		return err
	}

	// 4. consider_timeout.
	if err := b.considerTimeout(ctx, tree); err != nil {
		return err
	}

	// 5. Concrete apply hook. The record is persisted first and not saved
	// again afterwards: the hook may dispatch children synchronously, and
	// their replies can update, reapply or delete this node's stored record
	// through other Base instances, which this copy would overwrite.
	b.deps.Observer.OnApply(ctx, b.rec.Fei, tree.Name)
	if err := b.persist(ctx); err != nil {
		return err
	}
	return b.hook().Apply(ctx, w)
}

// DoReply is the lifecycle wrapper invoked when child has replied with w,
// spec.md §4.1.
func (b *Base) DoReply(ctx context.Context, child api.FEI, w api.Workitem) error {
	b.removeChild(child)

	if b.rec.State != api.StateActive {
		if err := b.persist(ctx); err != nil {
			return err
		}
		if len(b.rec.Children) == 0 {
			return b.replyToParent(ctx, w)
		}
		return nil
	}

	if err := b.hook().Reply(ctx, w); err != nil {
		return err
	}
	if b.replied {
		return nil
	}
	return b.persist(ctx)
}

// DoCancel is the lifecycle wrapper invoked to tear the node down, spec.md
// §4.1.
func (b *Base) DoCancel(ctx context.Context, flavour api.Flavour) error {
	if b.rec.State == api.StateFailed && flavour == api.FlavourTimeout {
		return nil // never timeout an already-errored node
	}

	switch flavour {
	case api.FlavourKill:
		b.rec.State = api.StateDying
	case api.FlavourTimeout:
		b.rec.State = api.StateTimingOut
		if b.rec.AppliedWorkitem.Fields == nil {
			b.rec.AppliedWorkitem.Fields = map[string]any{}
		}
		b.rec.AppliedWorkitem.Fields[api.TimedOutFieldKey] = api.TimedOutMarker{
			FEI: b.rec.Fei,
			At:  nowNanos(),
		}
	default:
		b.rec.State = api.StateCancelling
	}

	b.deps.Observer.OnCancel(ctx, b.rec.Fei, flavour)
	if err := b.persist(ctx); err != nil {
		return err
	}

	if err := b.hook().Cancel(ctx, flavour); err != nil {
		return err
	}

	if len(b.rec.Children) == 0 {
		return b.replyToParent(ctx, b.rec.AppliedWorkitem)
	}
	return nil
}

// Fail forces entry into the failing state, spec.md §4.1.
func (b *Base) Fail(ctx context.Context, cause error) error {
	b.rec.State = api.StateFailing
	b.deps.Observer.OnFail(ctx, b.rec.Fei, cause)
	if err := b.persist(ctx); err != nil {
		return err
	}
	for _, child := range b.rec.Children {
		if err := b.deps.Pool.CancelExpression(ctx, child, ""); err != nil {
			return err
		}
	}
	if len(b.rec.Children) == 0 {
		return b.replyToParent(ctx, b.rec.AppliedWorkitem)
	}
	return nil
}

func (b *Base) removeChild(child api.FEI) {
	out := b.rec.Children[:0]
	for _, c := range b.rec.Children {
		if c != child {
			out = append(out, c)
		}
	}
	b.rec.Children = out
}

var nowNanos = func() int64 { return time.Now().UnixNano() }
