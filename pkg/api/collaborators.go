package api

import (
	"context"
	"time"
)

// Channel names for events published by the core (spec.md §6).
const (
	ChannelExpressions EventChannel = "expressions"
	ChannelVariables   EventChannel = "variables"
	ChannelErrors      EventChannel = "errors"
)

// EventChannel names a work-queue topic.
type EventChannel string

// EventKind names the kind of event within a channel.
type EventKind string

const (
	EventUpdate       EventKind = "update"
	EventDelete       EventKind = "delete"
	EventForgotten    EventKind = "forgotten"
	EventTagEntered   EventKind = "entered_tag"
	EventTagLeft      EventKind = "left_tag"
	EventVariableSet  EventKind = "set"
	EventVariableUnset EventKind = "unset"
	EventExpressionPoolError EventKind = "s_expression_pool"
)

// Event is the payload published on the work queue, matching the
// (channel, kind, payload) triples enumerated in spec.md §6.
type Event struct {
	Channel EventChannel
	Kind    EventKind
	Payload any
}

// Queue is the work-queue (publish/subscribe event bus) collaborator,
// spec.md §1/§6. It is an external collaborator: only the interface is
// specified by the flow-expression core.
type Queue interface {
	// Emit publishes ev best-effort: callers do not wait for subscribers.
	Emit(ctx context.Context, ev Event) error

	// EmitSync publishes ev and blocks until subscriber-side effects (e.g.
	// the storage write triggered by an `update`/`delete` event) have been
	// committed, matching spec.md §6's queue.emit_sync.
	EmitSync(ctx context.Context, ev Event) error

	// Subscribe registers fn to be called for every event published on
	// channel. It returns an unsubscribe function.
	Subscribe(channel EventChannel, fn func(Event)) (unsubscribe func())
}

// Storage is the expression-storage collaborator, spec.md §1/§6:
// content-addressable persistence keyed by FEI.
type Storage interface {
	// Load returns the stored record for fei, or ErrExpressionNotFound.
	Load(ctx context.Context, fei FEI) (ExpressionRecord, error)

	// Save upserts the record, keyed by its Fei field.
	Save(ctx context.Context, rec ExpressionRecord) error

	// Delete removes the record for fei. Deleting a missing record is not
	// an error (unpersist is idempotent, spec.md §4.7).
	Delete(ctx context.Context, fei FEI) error
}

// Scheduler is the timed-wake-up collaborator, spec.md §1/§6.
type Scheduler interface {
	// In schedules a cancel event with flavour timeout to be delivered to
	// fei after d elapses, returning a job token.
	In(ctx context.Context, d time.Duration, fei FEI) (jobID string, err error)

	// Unschedule cancels a previously scheduled job. Unscheduling an
	// unknown or already-fired job is not an error.
	Unschedule(ctx context.Context, jobID string) error
}

// ApplyParams mirrors pool.apply(params) in spec.md §6: the generic apply
// used by handler triggers to reapply a tree under an existing identity.
type ApplyParams struct {
	Tree      Tree
	Fei       FEI
	ParentID  *FEI
	Workitem  Workitem
	Variables map[string]any
	Trigger   HandlerTrigger
}

// Pool is the expression-pool collaborator, spec.md §1/§6: owns the
// scheduling loop and dispatches apply/reply/cancel to expressions. Only
// the operations the core calls on it are specified here.
type Pool interface {
	// ReplyToParent delivers a reply event from self to self's parent.
	ReplyToParent(ctx context.Context, self FEI, w Workitem) error

	// Reply delivers a reply event from self directly to an arbitrary
	// parent fei, bypassing self's own stored parent_id (used after
	// Forget, spec.md §4.5, to notify the former parent once).
	Reply(ctx context.Context, self FEI, w Workitem, parent FEI) error

	// ApplyChild spawns the childIndex-th child of self's current tree.
	ApplyChild(ctx context.Context, self FEI, childIndex int, w Workitem, forget bool) error

	// CancelExpression routes a cancel event to fei.
	CancelExpression(ctx context.Context, fei FEI, flavour Flavour) error

	// Apply is the generic apply used by handler reapplies.
	Apply(ctx context.Context, params ApplyParams) error
}

// GlobalVars is the engine-global variable table, spec.md §4.3/§9: a
// mapping protected by the same single-threaded dispatch discipline as
// everything else, but exposed here behind an interface because it is
// shared across every workflow the pool runs.
type GlobalVars interface {
	Get(name string) (any, bool)
	Set(name string, value any)
	Unset(name string)
}
