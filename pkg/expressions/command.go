package expressions

import (
	"context"

	"github.com/flowcore/flowexpr/internal/corexpr"
	"github.com/flowcore/flowexpr/pkg/api"
	"github.com/flowcore/flowexpr/pkg/pool"
)

// CommandFunc executes one leaf unit of work, the external-collaborator
// "command" expression spec.md §2 names as the sole concrete kind worth
// showing alongside the core. Grounded on the teacher's api.StepFunc
// (doc.go: "type StepFunc func(ctx context.Context, state *State) error"),
// adapted from linear step execution to a single leaf expression's
// apply/reply hook.
type CommandFunc func(ctx context.Context, tree api.Tree, w api.Workitem) (api.Workitem, error)

// Command is a leaf expression that shells out to a CommandFunc on apply
// and replies with whatever it returns. A CommandFunc error routes to the
// nearest on_error-owning ancestor via Base.FailAncestor, spec.md §7's
// "concrete expression ... calls fail() on the nearest handler-owning
// ancestor".
type Command struct {
	*corexpr.Base
	Fn CommandFunc
}

// NewCommandFactory returns a pool.KindFactory that binds a Command
// running fn to base. Register it once per distinct command tree name,
// e.g. pool.RegisterKind("send-email", NewCommandFactory(sendEmail)).
func NewCommandFactory(fn CommandFunc) pool.KindFactory {
	return func(base *corexpr.Base) api.Expression {
		return &Command{Base: base, Fn: fn}
	}
}

func (c *Command) Apply(ctx context.Context, w api.Workitem) error {
	out, err := c.Fn(ctx, c.CurrentTree(), w)
	if err != nil {
		return c.FailAncestor(ctx, err)
	}
	return c.ReplyToParent(ctx, out)
}
