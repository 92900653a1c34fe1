package api

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Observer receives callbacks from the flow-expression base for logging and
// metrics, mirroring the teacher's Observer (OnWorkflowStart/OnStepStart/…)
// but retargeted at the flow-expression lifecycle of spec.md §4.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay the dispatch loop (spec.md §5).
type Observer interface {
	OnApply(ctx context.Context, fei FEI, treeName string)
	OnReply(ctx context.Context, fei FEI)
	OnCancel(ctx context.Context, fei FEI, flavour Flavour)
	OnFail(ctx context.Context, fei FEI, err error)
	OnTagEntered(ctx context.Context, fei FEI, tag string)
	OnTagLeft(ctx context.Context, fei FEI, tag string)
	OnForgotten(ctx context.Context, fei FEI, formerParent *FEI)
	OnVariableSet(ctx context.Context, fei FEI, name string)
	OnVariableUnset(ctx context.Context, fei FEI, name string)
	OnTimeout(ctx context.Context, fei FEI)
}

// NoopObserver is an Observer that does nothing. It is the default when no
// observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnApply(ctx context.Context, fei FEI, treeName string)       {}
func (NoopObserver) OnReply(ctx context.Context, fei FEI)                        {}
func (NoopObserver) OnCancel(ctx context.Context, fei FEI, flavour Flavour)      {}
func (NoopObserver) OnFail(ctx context.Context, fei FEI, err error)              {}
func (NoopObserver) OnTagEntered(ctx context.Context, fei FEI, tag string)       {}
func (NoopObserver) OnTagLeft(ctx context.Context, fei FEI, tag string)          {}
func (NoopObserver) OnForgotten(ctx context.Context, fei FEI, formerParent *FEI) {}
func (NoopObserver) OnVariableSet(ctx context.Context, fei FEI, name string)     {}
func (NoopObserver) OnVariableUnset(ctx context.Context, fei FEI, name string)   {}
func (NoopObserver) OnTimeout(ctx context.Context, fei FEI)                      {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards to each non-nil
// observer in obs, collapsing the trivial cases the way the teacher's
// NewCompositeObserver does.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	switch len(filtered) {
	case 0:
		return NoopObserver{}
	case 1:
		return filtered[0]
	default:
		return &CompositeObserver{observers: filtered}
	}
}

func (c *CompositeObserver) OnApply(ctx context.Context, fei FEI, treeName string) {
	for _, o := range c.observers {
		o.OnApply(ctx, fei, treeName)
	}
}

func (c *CompositeObserver) OnReply(ctx context.Context, fei FEI) {
	for _, o := range c.observers {
		o.OnReply(ctx, fei)
	}
}

func (c *CompositeObserver) OnCancel(ctx context.Context, fei FEI, flavour Flavour) {
	for _, o := range c.observers {
		o.OnCancel(ctx, fei, flavour)
	}
}

func (c *CompositeObserver) OnFail(ctx context.Context, fei FEI, err error) {
	for _, o := range c.observers {
		o.OnFail(ctx, fei, err)
	}
}

func (c *CompositeObserver) OnTagEntered(ctx context.Context, fei FEI, tag string) {
	for _, o := range c.observers {
		o.OnTagEntered(ctx, fei, tag)
	}
}

func (c *CompositeObserver) OnTagLeft(ctx context.Context, fei FEI, tag string) {
	for _, o := range c.observers {
		o.OnTagLeft(ctx, fei, tag)
	}
}

func (c *CompositeObserver) OnForgotten(ctx context.Context, fei FEI, formerParent *FEI) {
	for _, o := range c.observers {
		o.OnForgotten(ctx, fei, formerParent)
	}
}

func (c *CompositeObserver) OnVariableSet(ctx context.Context, fei FEI, name string) {
	for _, o := range c.observers {
		o.OnVariableSet(ctx, fei, name)
	}
}

func (c *CompositeObserver) OnVariableUnset(ctx context.Context, fei FEI, name string) {
	for _, o := range c.observers {
		o.OnVariableUnset(ctx, fei, name)
	}
}

func (c *CompositeObserver) OnTimeout(ctx context.Context, fei FEI) {
	for _, o := range c.observers {
		o.OnTimeout(ctx, fei)
	}
}

// LoggingObserver writes structured logs using log/slog, matching the
// teacher's LoggingObserver leveling convention: lifecycle milestones at
// Info, fine-grained variable/tag churn at Debug, failures at Error.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs via logger. If logger is
// nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnApply(ctx context.Context, fei FEI, treeName string) {
	o.Logger.InfoContext(ctx, "expr_apply", slog.String("fei", fei.String()), slog.String("tree", treeName))
}

func (o *LoggingObserver) OnReply(ctx context.Context, fei FEI) {
	o.Logger.InfoContext(ctx, "expr_reply", slog.String("fei", fei.String()))
}

func (o *LoggingObserver) OnCancel(ctx context.Context, fei FEI, flavour Flavour) {
	o.Logger.InfoContext(ctx, "expr_cancel", slog.String("fei", fei.String()), slog.String("flavour", string(flavour)))
}

func (o *LoggingObserver) OnFail(ctx context.Context, fei FEI, err error) {
	o.Logger.ErrorContext(ctx, "expr_fail", slog.String("fei", fei.String()), slog.Any("error", err))
}

func (o *LoggingObserver) OnTagEntered(ctx context.Context, fei FEI, tag string) {
	o.Logger.DebugContext(ctx, "tag_entered", slog.String("fei", fei.String()), slog.String("tag", tag))
}

func (o *LoggingObserver) OnTagLeft(ctx context.Context, fei FEI, tag string) {
	o.Logger.DebugContext(ctx, "tag_left", slog.String("fei", fei.String()), slog.String("tag", tag))
}

func (o *LoggingObserver) OnForgotten(ctx context.Context, fei FEI, formerParent *FEI) {
	parent := "<nil>"
	if formerParent != nil {
		parent = formerParent.String()
	}
	o.Logger.InfoContext(ctx, "forgotten", slog.String("fei", fei.String()), slog.String("former_parent", parent))
}

func (o *LoggingObserver) OnVariableSet(ctx context.Context, fei FEI, name string) {
	o.Logger.DebugContext(ctx, "variable_set", slog.String("fei", fei.String()), slog.String("var", name))
}

func (o *LoggingObserver) OnVariableUnset(ctx context.Context, fei FEI, name string) {
	o.Logger.DebugContext(ctx, "variable_unset", slog.String("fei", fei.String()), slog.String("var", name))
}

func (o *LoggingObserver) OnTimeout(ctx context.Context, fei FEI) {
	o.Logger.ErrorContext(ctx, "expr_timeout", slog.String("fei", fei.String()))
}

// BasicMetrics collects simple atomic counters, matching the teacher's
// BasicMetrics / BasicMetricsSnapshot shape.
type BasicMetrics struct {
	NoopObserver

	applies   atomic.Int64
	replies   atomic.Int64
	cancels   atomic.Int64
	fails     atomic.Int64
	timeouts  atomic.Int64
	forgotten atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	Applies   int64
	Replies   int64
	Cancels   int64
	Fails     int64
	Timeouts  int64
	Forgotten int64
	Live      int64 // Applies - Replies, a rough in-flight count
}

func (m *BasicMetrics) OnApply(ctx context.Context, fei FEI, treeName string) { m.applies.Add(1) }
func (m *BasicMetrics) OnReply(ctx context.Context, fei FEI)                  { m.replies.Add(1) }
func (m *BasicMetrics) OnCancel(ctx context.Context, fei FEI, flavour Flavour) {
	m.cancels.Add(1)
}
func (m *BasicMetrics) OnFail(ctx context.Context, fei FEI, err error)   { m.fails.Add(1) }
func (m *BasicMetrics) OnTimeout(ctx context.Context, fei FEI)           { m.timeouts.Add(1) }
func (m *BasicMetrics) OnForgotten(ctx context.Context, fei FEI, p *FEI) { m.forgotten.Add(1) }

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	applies := m.applies.Load()
	replies := m.replies.Load()
	return BasicMetricsSnapshot{
		Applies:   applies,
		Replies:   replies,
		Cancels:   m.cancels.Load(),
		Fails:     m.fails.Load(),
		Timeouts:  m.timeouts.Load(),
		Forgotten: m.forgotten.Load(),
		Live:      applies - replies,
	}
}
