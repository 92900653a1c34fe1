package expressions

import (
	"context"

	"github.com/flowcore/flowexpr/internal/corexpr"
	"github.com/flowcore/flowexpr/pkg/api"
	"github.com/flowcore/flowexpr/pkg/pool"
)

// Wait is a leaf expression that never replies on its own: it persists
// and returns, remaining active until an external cancel or timeout
// drives it forward (spec.md §5's "an expression never blocks ...
// represented by returning from the current event"). Cancel/Reply use
// Base's defaults, which is exactly what a childless leaf needs: Cancel
// has no children to forward to and immediately replies once the state
// transition is recorded (spec.md §4.1's do_cancel tail).
type Wait struct {
	*corexpr.Base
}

// NewWaitFactory returns a pool.KindFactory that binds a Wait to base.
func NewWaitFactory() pool.KindFactory {
	return func(base *corexpr.Base) api.Expression {
		return &Wait{Base: base}
	}
}

func (w *Wait) Apply(ctx context.Context, wi api.Workitem) error {
	return nil
}
