package pool_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowexpr/internal/corexpr"
	"github.com/flowcore/flowexpr/internal/globalvars"
	"github.com/flowcore/flowexpr/internal/queue"
	"github.com/flowcore/flowexpr/internal/scheduler"
	"github.com/flowcore/flowexpr/internal/storage"
	"github.com/flowcore/flowexpr/pkg/api"
	"github.com/flowcore/flowexpr/pkg/expressions"
	"github.com/flowcore/flowexpr/pkg/pool"
)

// recorder is a test Observer that captures a serialized log of lifecycle
// callbacks, used to assert ordering the way the teacher's tests assert
// against a fake collaborator rather than internal state directly.
type recorder struct {
	api.NoopObserver

	mu     sync.Mutex
	events []string
}

func (r *recorder) log(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) OnApply(ctx context.Context, fei api.FEI, treeName string) {
	r.log("apply:" + treeName)
}
func (r *recorder) OnReply(ctx context.Context, fei api.FEI) { r.log("reply:" + fei.String()) }
func (r *recorder) OnTagEntered(ctx context.Context, fei api.FEI, tag string) {
	r.log("tag_entered:" + tag)
}
func (r *recorder) OnTagLeft(ctx context.Context, fei api.FEI, tag string) {
	r.log("tag_left:" + tag)
}
func (r *recorder) OnForgotten(ctx context.Context, fei api.FEI, formerParent *api.FEI) {
	r.log("forgotten:" + fei.String())
}
func (r *recorder) OnFail(ctx context.Context, fei api.FEI, err error) {
	r.log("fail:" + err.Error())
}
func (r *recorder) OnTimeout(ctx context.Context, fei api.FEI) { r.log("timeout:" + fei.String()) }

// harness bundles a Pool with the concrete collaborators backing it, so
// tests can inspect storage/queue state a bare api.Pool doesn't expose.
type harness struct {
	Pool    *pool.Pool
	Storage api.Storage
	Queue   api.Queue
	Rec     *recorder
}

func newHarness() *harness {
	h := &harness{
		Storage: storage.New(),
		Queue:   queue.New(),
		Rec:     &recorder{},
	}
	var p *pool.Pool
	sched := scheduler.NewTimer(func(ctx context.Context, fei api.FEI) error {
		return p.CancelExpression(ctx, fei, api.FlavourTimeout)
	})
	p = pool.New(pool.Config{
		Storage:   h.Storage,
		Queue:     h.Queue,
		Scheduler: sched,
		Globals:   globalvars.New(),
		Observer:  h.Rec,
	})
	expressions.RegisterDefaults(p)
	h.Pool = p
	return h
}

func rootFEI(workflowID string) api.FEI {
	return api.FEI{WorkflowID: workflowID, ExpressionID: "0", ChildID: 0}
}

// S1: a guard that fails vetoes the node before its concrete Apply hook
// ever runs. A bare "wait" leaf never replies on its own, so completion
// here can only be explained by the guard short-circuiting do_apply.
func TestGuardSkipCompletesWithoutDescending(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	tree := api.Tree{Name: "wait", Attributes: map[string]any{"if": "${go}"}}
	w := api.Workitem{Fields: map[string]any{}}

	require.NoError(t, h.Pool.ApplyRoot(ctx, "s1", tree, w))

	result, ok := h.Pool.Result(rootFEI("s1"))
	require.True(t, ok, "guarded root should complete immediately")
	assert.Equal(t, w.Fields, result.Fields)

	for _, e := range h.Rec.snapshot() {
		assert.NotEqual(t, "apply:wait", e, "veto must happen before the concrete Apply hook")
	}
}

// S2: a tagged node binds its tag in the nearest enclosing scope on apply
// and clears it on reply, in that order.
func TestTagLifecycle(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	tree := api.Tree{Name: "wait", Attributes: map[string]any{"tag": "mywait"}}
	w := api.Workitem{Fields: map[string]any{}}

	require.NoError(t, h.Pool.ApplyRoot(ctx, "s2", tree, w))

	fei := rootFEI("s2")
	rec, err := h.Storage.Load(ctx, fei)
	require.NoError(t, err)
	assert.Equal(t, fei, rec.Variables["mywait"])
	assert.Equal(t, "mywait", rec.Tagname)

	require.NoError(t, h.Pool.CancelExpression(ctx, fei, api.FlavourCancel))

	_, ok := h.Pool.Result(fei)
	require.True(t, ok)

	events := h.Rec.snapshot()
	enteredAt, leftAt := -1, -1
	for i, e := range events {
		if e == "tag_entered:mywait" {
			enteredAt = i
		}
		if e == "tag_left:mywait" {
			leftAt = i
		}
	}
	require.NotEqual(t, -1, enteredAt)
	require.NotEqual(t, -1, leftAt)
	assert.Less(t, enteredAt, leftAt)

	_, err = h.Storage.Load(ctx, fei)
	assert.ErrorIs(t, err, api.ErrExpressionNotFound, "a completed root is unpersisted")
}

// S3: forgetting a child during apply notifies its former parent within
// the same dispatch turn, and the forgotten node ends up parentless with
// every variable visible from its old position snapshotted locally.
func TestForgetDetachesAndNotifiesFormerParent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	tree := api.Tree{
		Name:       "sequence",
		Attributes: map[string]any{"tag": "root_tag"},
		Children: []api.Tree{
			{Name: "wait", Attributes: map[string]any{"forget": "true"}},
		},
	}
	w := api.Workitem{Fields: map[string]any{}}

	require.NoError(t, h.Pool.ApplyRoot(ctx, "s3", tree, w))

	root := rootFEI("s3")
	_, ok := h.Pool.Result(root)
	require.True(t, ok, "the parent should complete once its only child forgets itself")

	child := root.Child(0)
	childRec, err := h.Storage.Load(ctx, child)
	require.NoError(t, err)
	assert.Nil(t, childRec.ParentID)
	assert.Equal(t, root, childRec.Variables["root_tag"])

	found := false
	for _, e := range h.Rec.snapshot() {
		if e == "forgotten:"+child.String() {
			found = true
		}
	}
	assert.True(t, found)
}

// S4: on_timeout="error" publishes a synthetic TimeoutError on the errors
// channel instead of tearing the node down silently.
func TestTimeoutPublishesError(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	errs := make(chan api.Event, 1)
	unsub := h.Queue.Subscribe(api.ChannelErrors, func(ev api.Event) {
		errs <- ev
	})
	defer unsub()

	tree := api.Tree{Name: "wait", Attributes: map[string]any{
		"timeout":    "10ms",
		"on_timeout": "error",
	}}
	w := api.Workitem{Fields: map[string]any{}}

	require.NoError(t, h.Pool.ApplyRoot(ctx, "s4", tree, w))

	select {
	case ev := <-errs:
		payload, ok := ev.Payload.(map[string]any)
		require.True(t, ok)
		te, ok := payload["error"].(*api.TimeoutError)
		require.True(t, ok)
		assert.Equal(t, rootFEI("s4"), te.Fei)
		assert.Equal(t, "10ms", te.Timeout)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the synthesized TimeoutError event")
	}
}

// S5: on_error="redo" reapplies the same tree under the same identity;
// a command that fails once and succeeds the second time ends up
// completing the root rather than propagating the first failure.
func TestOnErrorRedoRecovers(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	var calls int
	h.Pool.RegisterKind("flaky", expressions.NewCommandFactory(func(ctx context.Context, tree api.Tree, w api.Workitem) (api.Workitem, error) {
		calls++
		if calls == 1 {
			return api.Workitem{}, assertError{"transient failure"}
		}
		out := w.Clone()
		out.Fields["done"] = true
		return out, nil
	}))

	tree := api.Tree{Name: "flaky", Attributes: map[string]any{"on_error": "redo"}}
	w := api.Workitem{Fields: map[string]any{}}

	require.NoError(t, h.Pool.ApplyRoot(ctx, "s5", tree, w))

	result, ok := h.Pool.Result(rootFEI("s5"))
	require.True(t, ok, "redo should recover and complete the root")
	assert.Equal(t, true, result.Fields["done"])
	assert.Equal(t, 2, calls)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

// S6: a single-slash-prefixed variable write targets the enclosing scope
// (the parent) rather than the writer's own node.
func TestPrefixedVariableWriteTargetsParentScope(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.Pool.RegisterKind("varwriter", func(base *corexpr.Base) api.Expression {
		return &varWriter{Base: base, name: "/greeting", value: "hi"}
	})

	sets := make(chan api.Event, 4)
	unsub := h.Queue.Subscribe(api.ChannelVariables, func(ev api.Event) {
		sets <- ev
	})
	defer unsub()

	tree := api.Tree{
		Name:     "sequence",
		Children: []api.Tree{{Name: "varwriter"}},
	}
	w := api.Workitem{Fields: map[string]any{}}

	require.NoError(t, h.Pool.ApplyRoot(ctx, "s6", tree, w))

	select {
	case ev := <-sets:
		require.Equal(t, api.EventVariableSet, ev.Kind)
		payload := ev.Payload.(map[string]any)
		assert.Equal(t, "greeting", payload["var"])
		assert.Equal(t, rootFEI("s6"), payload["fei"], "the write should be attributed to the parent, not the writer")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the variable-set event")
	}
}

// varWriter is a test-only expression kind exercising Base.SetVariable's
// prefix delegation without needing a CommandFunc's narrower signature.
type varWriter struct {
	*corexpr.Base
	name  string
	value any
}

func (v *varWriter) Apply(ctx context.Context, w api.Workitem) error {
	if err := v.SetVariable(ctx, v.name, v.value); err != nil {
		return err
	}
	return v.ReplyToParent(ctx, w)
}

// The sequence, concurrence and cursor tests below exercise multi-child
// dispatch: ordered application, the join over every child, and repeated
// re-application of a cursor's body.
func TestSequenceAppliesChildrenInOrder(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	var order []string
	var mu sync.Mutex
	record := func(name string) func(ctx context.Context, tree api.Tree, w api.Workitem) (api.Workitem, error) {
		return func(ctx context.Context, tree api.Tree, w api.Workitem) (api.Workitem, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return w.Clone(), nil
		}
	}
	h.Pool.RegisterKind("first", expressions.NewCommandFactory(record("first")))
	h.Pool.RegisterKind("second", expressions.NewCommandFactory(record("second")))

	tree := api.Tree{
		Name: "sequence",
		Children: []api.Tree{
			{Name: "first"},
			{Name: "second"},
		},
	}
	require.NoError(t, h.Pool.ApplyRoot(ctx, "seq1", tree, api.Workitem{Fields: map[string]any{}}))

	_, ok := h.Pool.Result(rootFEI("seq1"))
	require.True(t, ok)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestConcurrenceJoinsAllChildren(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	var mu sync.Mutex
	seen := map[string]bool{}
	kind := func(name string) func(ctx context.Context, tree api.Tree, w api.Workitem) (api.Workitem, error) {
		return func(ctx context.Context, tree api.Tree, w api.Workitem) (api.Workitem, error) {
			mu.Lock()
			seen[name] = true
			mu.Unlock()
			return w.Clone(), nil
		}
	}
	h.Pool.RegisterKind("a", expressions.NewCommandFactory(kind("a")))
	h.Pool.RegisterKind("b", expressions.NewCommandFactory(kind("b")))

	tree := api.Tree{
		Name: "concurrence",
		Children: []api.Tree{
			{Name: "a"},
			{Name: "b"},
		},
	}
	require.NoError(t, h.Pool.ApplyRoot(ctx, "conc1", tree, api.Workitem{Fields: map[string]any{}}))

	_, ok := h.Pool.Result(rootFEI("conc1"))
	require.True(t, ok)
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
}

func TestCursorRepeatsBodyByTimes(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	var count int
	h.Pool.RegisterKind("tick", expressions.NewCommandFactory(func(ctx context.Context, tree api.Tree, w api.Workitem) (api.Workitem, error) {
		count++
		return w.Clone(), nil
	}))

	tree := api.Tree{
		Name:       "cursor",
		Attributes: map[string]any{"times": "3"},
		Children:   []api.Tree{{Name: "tick"}},
	}
	require.NoError(t, h.Pool.ApplyRoot(ctx, "cur1", tree, api.Workitem{Fields: map[string]any{}}))

	_, ok := h.Pool.Result(rootFEI("cur1"))
	require.True(t, ok)
	assert.Equal(t, 3, count)
}

func TestCommandFailureRoutesToOnErrorAncestor(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.Pool.RegisterKind("boom", expressions.NewCommandFactory(func(ctx context.Context, tree api.Tree, w api.Workitem) (api.Workitem, error) {
		return api.Workitem{}, assertError{"boom"}
	}))

	tree := api.Tree{
		Name:       "sequence",
		Attributes: map[string]any{"on_error": "wait"},
		Children:   []api.Tree{{Name: "boom"}},
	}
	require.NoError(t, h.Pool.ApplyRoot(ctx, "err1", tree, api.Workitem{Fields: map[string]any{}}))

	fei := rootFEI("err1")
	rec, err := h.Storage.Load(ctx, fei)
	require.NoError(t, err, "on_error=wait should leave the root parked, not completed")
	assert.Equal(t, "wait", rec.OriginalTree.Name)

	_, err = h.Storage.Load(ctx, fei.Child(0))
	assert.ErrorIs(t, err, api.ErrExpressionNotFound, "the failed child's own do_apply must not resurrect the record its ancestor's fail() cascade already tore down")

	found := false
	for _, e := range h.Rec.snapshot() {
		if e == "fail:boom" {
			found = true
		}
	}
	assert.True(t, found)
}

// With zero on_error handlers anywhere in the chain, an unhandled failure
// must still cascade all the way to the root instead of being swallowed at
// the failing leaf's own real parent, which would let a sibling run as if
// the failed child had succeeded.
func TestUnhandledFailureWithNoHandlersCascadesToRoot(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.Pool.RegisterKind("boom", expressions.NewCommandFactory(func(ctx context.Context, tree api.Tree, w api.Workitem) (api.Workitem, error) {
		return api.Workitem{}, assertError{"boom"}
	}))
	var secondCalled bool
	h.Pool.RegisterKind("second", expressions.NewCommandFactory(func(ctx context.Context, tree api.Tree, w api.Workitem) (api.Workitem, error) {
		secondCalled = true
		return w.Clone(), nil
	}))

	tree := api.Tree{
		Name: "sequence",
		Children: []api.Tree{
			{Name: "boom"},
			{Name: "second"},
		},
	}
	require.NoError(t, h.Pool.ApplyRoot(ctx, "err2", tree, api.Workitem{Fields: map[string]any{}}))

	fei := rootFEI("err2")
	_, ok := h.Pool.Result(fei)
	require.True(t, ok, "an unhandled failure must still complete the root instead of leaving it parked forever")

	assert.False(t, secondCalled, "the sequence's second child must not run once its sibling's unhandled failure reaches the root")

	_, err := h.Storage.Load(ctx, fei)
	assert.ErrorIs(t, err, api.ErrExpressionNotFound, "the root must be torn down once the cascade reaches it")

	_, err = h.Storage.Load(ctx, fei.Child(0))
	assert.ErrorIs(t, err, api.ErrExpressionNotFound)

	found := false
	for _, e := range h.Rec.snapshot() {
		if e == "fail:boom" {
			found = true
		}
	}
	assert.True(t, found)
}

// A "background" attribute on a tree with no dedicated concrete kind falls
// through to Base's default Apply hook, which spawns child 0 via
// ApplyChild's forget parameter (spec.md §6's apply_child(..., forget?))
// instead of waiting for its reply.
func TestBackgroundAttributeSpawnsForgottenChildAndCompletesImmediately(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	slowRan := make(chan struct{})
	h.Pool.RegisterKind("slow", expressions.NewCommandFactory(func(ctx context.Context, tree api.Tree, w api.Workitem) (api.Workitem, error) {
		close(slowRan)
		return w.Clone(), nil
	}))

	tree := api.Tree{
		Name:       "detach",
		Attributes: map[string]any{"background": true},
		Children:   []api.Tree{{Name: "slow"}},
	}
	require.NoError(t, h.Pool.ApplyRoot(ctx, "bg1", tree, api.Workitem{Fields: map[string]any{}}))

	fei := rootFEI("bg1")
	_, ok := h.Pool.Result(fei)
	require.True(t, ok, "the root must complete without waiting for its backgrounded child")

	select {
	case <-slowRan:
	default:
		t.Fatal("the backgrounded child never ran")
	}

	_, err := h.Storage.Load(ctx, fei)
	assert.ErrorIs(t, err, api.ErrExpressionNotFound, "the root itself is torn down once it completes")

	found := false
	for _, e := range h.Rec.snapshot() {
		if e == "forgotten:"+fei.Child(0).String() {
			found = true
		}
	}
	assert.True(t, found, "the child must be reported forgotten before it runs")
}
