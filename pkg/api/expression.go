package api

import (
	"context"
	"time"
)

// State is a FlowExpression's lifecycle state, spec.md §3 / §4.1.
type State string

const (
	StateActive     State = "active"
	StateFailing    State = "failing"
	StateCancelling State = "cancelling"
	StateTimingOut  State = "timing_out"
	StateDying      State = "dying"
	StateFailed     State = "failed"
)

// Flavour is the reason a cancel was issued, spec.md §4.1 / glossary.
type Flavour string

const (
	FlavourCancel  Flavour = "cancel"
	FlavourTimeout Flavour = "timeout"
	FlavourKill    Flavour = "kill"
)

// HandlerTrigger names which of on_cancel/on_error/on_timeout caused a
// handler reapply, passed through pool.Apply so recursive failure can be
// detected by the pool (spec.md §4.6).
type HandlerTrigger string

const (
	HandlerNone    HandlerTrigger = ""
	HandlerOnError HandlerTrigger = "on_error"
	HandlerOnCancel HandlerTrigger = "on_cancel"
	HandlerOnTimeout HandlerTrigger = "on_timeout"
)

// Literal handler values with reserved meaning (spec.md §4.6).
const (
	HandlerRedo  = "redo"
	HandlerUndo  = "undo"
	HandlerError = "error"
)

// Expression is the capability set every concrete expression kind
// implements; the base (corexpr.Base) supplies default behavior for all
// three, and concrete kinds override what they need (spec.md §9's "closed
// set of variants with a shared capability set").
type Expression interface {
	// FEI returns this expression's identity.
	FEI() FEI

	// Apply is invoked by Base.DoApply after bookkeeping (guard, forget,
	// tag, timeout) has run. The default implementation applies the first
	// child, if any, else replies immediately with the unmodified workitem.
	Apply(ctx context.Context, w Workitem) error

	// Reply is invoked by Base.DoReply when a child has replied and this
	// node is still active. The default implementation replies to parent
	// immediately with the child's workitem.
	Reply(ctx context.Context, w Workitem) error

	// Cancel is invoked by Base.DoCancel after the state transition. The
	// default implementation cancels every registered child with the same
	// flavour.
	Cancel(ctx context.Context, flavour Flavour) error
}

// ExpressionRecord is the persisted, storage-owned representation of a
// FlowExpression instance, spec.md §3. It excludes the engine-context
// back-reference (spec.md §4.7 / §6): that is rebound by the pool at load
// time.
type ExpressionRecord struct {
	Fei FEI

	Kind string // which concrete Expression constructor applies to this tree

	ParentID *FEI

	OriginalTree Tree
	UpdatedTree  *Tree

	Children []FEI

	Variables map[string]any // nil unless this node owns a scope

	AppliedWorkitem Workitem

	State State

	OnCancel  any // string | Tree | nil
	OnError   any
	OnTimeout any

	Tagname string

	TimeoutJobID string

	CreatedTime  time.Time
	ModifiedTime time.Time
}

// Clone returns a deep copy of the record, including tree and variable
// map, so in-memory caches never alias the canonical storage copy.
func (r ExpressionRecord) Clone() ExpressionRecord {
	out := r
	out.OriginalTree = r.OriginalTree.Clone()
	if r.UpdatedTree != nil {
		t := r.UpdatedTree.Clone()
		out.UpdatedTree = &t
	}
	if r.ParentID != nil {
		p := *r.ParentID
		out.ParentID = &p
	}
	if r.Children != nil {
		out.Children = append([]FEI(nil), r.Children...)
	}
	if r.Variables != nil {
		out.Variables = make(map[string]any, len(r.Variables))
		for k, v := range r.Variables {
			out.Variables[k] = v
		}
	}
	out.AppliedWorkitem = r.AppliedWorkitem.Clone()
	return out
}
