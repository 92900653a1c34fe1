// Package pool provides a reference expression pool: the dispatch loop
// that spec.md lists as an out-of-scope external collaborator, implemented
// here only so the flow-expression core (internal/corexpr) is runnable and
// testable end-to-end. Its scheduling policy — synchronous, recursive
// dispatch under a single logical scheduler — is a deliberate
// simplification of spec.md §5's single-threaded cooperative model: real
// deployments would drive dispatch from the work queue's delivery order
// instead of Go call-stack recursion, but the observable protocol (apply /
// reply / cancel, one event run to completion before the next) is the
// same either way.
//
// Grounded on the teacher's engineImpl (internal/engine/engine_impl.go):
// a synchronous, in-process, single-struct dispatcher wired to pluggable
// persistence, retargeted here from a linear step list to the recursive
// apply/reply/cancel tree protocol.
package pool

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/flowcore/flowexpr/internal/corexpr"
	"github.com/flowcore/flowexpr/internal/globalvars"
	"github.com/flowcore/flowexpr/internal/queue"
	"github.com/flowcore/flowexpr/internal/scheduler"
	"github.com/flowcore/flowexpr/internal/storage"
	"github.com/flowcore/flowexpr/pkg/api"
)

// KindFactory constructs the concrete Expression that should handle base's
// tree; the pool binds the result to base via base.Bind. Registered per tree name
// (spec.md §9's "closed set of variants").
type KindFactory func(base *corexpr.Base) api.Expression

// Config bundles the collaborators a Pool needs, mirroring the teacher's
// engine.Config{Persistence, Observer} shape (SPEC_FULL.md §5).
type Config struct {
	Storage   api.Storage
	Queue     api.Queue
	Scheduler api.Scheduler
	Globals   api.GlobalVars
	Observer  api.Observer
	Kinds     map[string]KindFactory
}

// Pool is a reference api.Pool implementation.
type Pool struct {
	deps corexpr.Deps

	kindsMu sync.RWMutex
	kinds   map[string]KindFactory

	completionsMu sync.Mutex
	completions   map[api.FEI]api.Workitem
	waiters       map[api.FEI]chan api.Workitem
}

var _ api.Pool = (*Pool)(nil)

// New constructs a Pool from cfg, defaulting Observer to api.NoopObserver{}
// the way the teacher's NewEngineWithConfig defaults cfg.Observer.
func New(cfg Config) *Pool {
	kinds := cfg.Kinds
	if kinds == nil {
		kinds = map[string]KindFactory{}
	}
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	p := &Pool{
		kinds:       kinds,
		completions: map[api.FEI]api.Workitem{},
		waiters:     map[api.FEI]chan api.Workitem{},
	}
	p.deps = corexpr.Deps{
		Storage:   cfg.Storage,
		Queue:     cfg.Queue,
		Scheduler: cfg.Scheduler,
		Globals:   cfg.Globals,
		Observer:  obs,
		Pool:      p,
	}
	return p
}

// RegisterKind associates treeName with factory. Trees whose name has no
// registered factory fall back to Base's own default Apply/Reply/Cancel
// hooks (spec.md §9: a default implementation for the shared capability
// set).
func (p *Pool) RegisterKind(treeName string, factory KindFactory) {
	p.kindsMu.Lock()
	defer p.kindsMu.Unlock()
	p.kinds[treeName] = factory
}

func (p *Pool) factory(treeName string) (KindFactory, bool) {
	p.kindsMu.RLock()
	defer p.kindsMu.RUnlock()
	f, ok := p.kinds[treeName]
	return f, ok
}

// NewInMemoryPool returns a Pool backed entirely by in-memory
// collaborators, matching the teacher's NewInMemoryEngine.
func NewInMemoryPool() *Pool {
	return NewInMemoryPoolWithObserver(nil)
}

// NewInMemoryPoolWithObserver is NewInMemoryPool with an explicit Observer,
// matching the teacher's NewInMemoryEngineWithObserver.
func NewInMemoryPoolWithObserver(obs api.Observer) *Pool {
	var p *Pool
	sched := scheduler.NewTimer(func(ctx context.Context, fei api.FEI) error {
		return p.CancelExpression(ctx, fei, api.FlavourTimeout)
	})
	p = New(Config{
		Storage:   storage.New(),
		Queue:     queue.New(),
		Scheduler: sched,
		Globals:   globalvars.New(),
		Observer:  obs,
	})
	return p
}

// NewSQLitePool returns a Pool whose storage and scheduler are backed by
// db, matching the teacher's NewSQLiteEngine.
func NewSQLitePool(db *sql.DB) (*Pool, error) {
	store, err := storage.NewSQLite(db)
	if err != nil {
		return nil, err
	}
	var p *Pool
	sched, err := scheduler.NewSQLite(db, func(ctx context.Context, fei api.FEI) error {
		return p.CancelExpression(ctx, fei, api.FlavourTimeout)
	})
	if err != nil {
		return nil, err
	}
	p = New(Config{
		Storage:   store,
		Queue:     queue.New(),
		Scheduler: sched,
		Globals:   globalvars.New(),
	})
	return p, nil
}

// NewPostgresPool returns a Pool whose storage is backed by db (a
// jackc/pgx/v5 stdlib connection), matching the teacher's
// NewPostgresEngine. Timeouts are scheduled in-process (a durable
// Postgres-backed scheduler mirrors internal/scheduler.SQLite's shape but
// is not shipped here — SPEC_FULL.md §7's storage/queue combinations
// compose orthogonally with schedulers).
func NewPostgresPool(db *sql.DB) (*Pool, error) {
	store, err := storage.NewPostgres(db)
	if err != nil {
		return nil, err
	}
	var p *Pool
	sched := scheduler.NewTimer(func(ctx context.Context, fei api.FEI) error {
		return p.CancelExpression(ctx, fei, api.FlavourTimeout)
	})
	p = New(Config{
		Storage:   store,
		Queue:     queue.New(),
		Scheduler: sched,
		Globals:   globalvars.New(),
	})
	return p, nil
}

// NewRedisPool returns a Pool whose storage and work queue are both
// backed by client, matching the teacher's NewRedisEngine.
func NewRedisPool(client *redis.Client) (*Pool, error) {
	var p *Pool
	sched := scheduler.NewTimer(func(ctx context.Context, fei api.FEI) error {
		return p.CancelExpression(ctx, fei, api.FlavourTimeout)
	})
	p = New(Config{
		Storage:   storage.NewRedis(client, ""),
		Queue:     queue.NewRedis(client, ""),
		Scheduler: sched,
		Globals:   globalvars.New(),
	})
	return p, nil
}

// NewMongoPool returns a Pool whose storage is backed by client, matching
// the teacher's NewMongoEngine.
func NewMongoPool(client *mongo.Client) (*Pool, error) {
	var p *Pool
	sched := scheduler.NewTimer(func(ctx context.Context, fei api.FEI) error {
		return p.CancelExpression(ctx, fei, api.FlavourTimeout)
	})
	p = New(Config{
		Storage:   storage.NewMongo(client, "", ""),
		Queue:     queue.New(),
		Scheduler: sched,
		Globals:   globalvars.New(),
	})
	return p, nil
}

func (p *Pool) bind(rec api.ExpressionRecord) *corexpr.Base {
	base := corexpr.NewBase(rec, p.deps)
	if f, ok := p.factory(rec.OriginalTree.Name); ok {
		base.Bind(f(base))
	}
	return base
}

func resolveHandler(tree api.Tree, name string) any {
	v, ok := tree.Attr(name)
	if !ok || v == nil {
		return nil
	}
	switch x := v.(type) {
	case string:
		return x
	case api.Tree:
		return x
	default:
		return nil
	}
}

func newRecord(fei api.FEI, parent *api.FEI, tree api.Tree, w api.Workitem, variables map[string]any) api.ExpressionRecord {
	now := time.Now()
	return api.ExpressionRecord{
		Fei:             fei,
		Kind:            tree.Name,
		ParentID:        parent,
		OriginalTree:    tree.Clone(),
		Children:        nil,
		Variables:       variables,
		AppliedWorkitem: w.Clone(),
		State:           api.StateActive,
		OnCancel:        resolveHandler(tree, "on_cancel"),
		OnError:         resolveHandler(tree, "on_error"),
		OnTimeout:       resolveHandler(tree, "on_timeout"),
		CreatedTime:     now,
		ModifiedTime:    now,
	}
}

// ApplyRoot starts a brand-new workflow tree as a root expression (nil
// parent_id, a fresh Variables scope per spec.md §3's "roots ... introduce
// a scope"). It is the pool-level entry point analogous to the teacher's
// Engine.Run.
func (p *Pool) ApplyRoot(ctx context.Context, workflowID string, tree api.Tree, w api.Workitem) error {
	fei := api.FEI{WorkflowID: workflowID, ExpressionID: "0", ChildID: 0}
	return p.Apply(ctx, api.ApplyParams{
		Tree:      tree,
		Fei:       fei,
		ParentID:  nil,
		Workitem:  w,
		Variables: map[string]any{},
	})
}

// Apply implements api.Pool's generic apply (spec.md §6), used both for
// ApplyRoot and for handler reapplies (spec.md §4.6).
func (p *Pool) Apply(ctx context.Context, params api.ApplyParams) error {
	rec := newRecord(params.Fei, params.ParentID, params.Tree, params.Workitem, params.Variables)
	if err := p.deps.Storage.Save(ctx, rec); err != nil {
		return err
	}
	base := p.bind(rec)
	return base.DoApply(ctx, params.Workitem)
}

// ApplyChild implements api.Pool's apply_child (spec.md §6): spawn the
// childIndex-th child of self's current tree.
func (p *Pool) ApplyChild(ctx context.Context, self api.FEI, childIndex int, w api.Workitem, forget bool) error {
	parentRec, err := p.deps.Storage.Load(ctx, self)
	if err != nil {
		return err
	}
	parentTree := parentRec.OriginalTree
	if parentRec.UpdatedTree != nil {
		parentTree = *parentRec.UpdatedTree
	}
	childTree, ok := parentTree.Child(childIndex)
	if !ok {
		return fmt.Errorf("flowexpr: pool: %s has no child %d", self, childIndex)
	}

	childFei := self.Child(childIndex)
	parentCopy := self
	childRec := newRecord(childFei, &parentCopy, childTree, w, nil)
	if err := p.deps.Storage.Save(ctx, childRec); err != nil {
		return err
	}

	parentBase := p.bind(parentRec)
	if err := parentBase.RegisterChild(ctx, childFei); err != nil {
		return err
	}

	childBase := p.bind(childRec)
	if forget {
		if err := childBase.Forget(ctx); err != nil {
			return err
		}
		if err := p.Reply(ctx, childFei, w.Clone(), self); err != nil {
			return err
		}
	}
	return childBase.DoApply(ctx, w)
}

// ReplyToParent implements api.Pool's reply_to_parent (spec.md §6): look
// up self's own stored parent_id and route accordingly. spec.md §4.5
// makes the pool responsible for recognizing a root reply (nil parent_id)
// and tearing the branch down instead of routing it anywhere further.
func (p *Pool) ReplyToParent(ctx context.Context, self api.FEI, w api.Workitem) error {
	rec, err := p.deps.Storage.Load(ctx, self)
	if err != nil {
		return err
	}
	if rec.ParentID == nil {
		p.completeRoot(self, w)
		return nil
	}
	return p.Reply(ctx, self, w, *rec.ParentID)
}

// Reply implements api.Pool's reply (spec.md §6): deliver a reply event
// from self directly to an arbitrary parent fei, used after Forget (the
// former parent is notified once, bypassing self's own now-nil parent_id)
// and by ApplyChild's forget=true path.
func (p *Pool) Reply(ctx context.Context, self api.FEI, w api.Workitem, parent api.FEI) error {
	parentRec, err := p.deps.Storage.Load(ctx, parent)
	if err != nil {
		return err
	}
	parentBase := p.bind(parentRec)
	return parentBase.DoReply(ctx, self, w)
}

// CancelExpression implements api.Pool's cancel_expression (spec.md §6):
// route a cancel event to fei.
func (p *Pool) CancelExpression(ctx context.Context, fei api.FEI, flavour api.Flavour) error {
	rec, err := p.deps.Storage.Load(ctx, fei)
	if err != nil {
		return err
	}
	base := p.bind(rec)
	return base.DoCancel(ctx, flavour)
}

func (p *Pool) completeRoot(fei api.FEI, w api.Workitem) {
	p.completionsMu.Lock()
	p.completions[fei] = w
	ch, waiting := p.waiters[fei]
	delete(p.waiters, fei)
	p.completionsMu.Unlock()
	if waiting {
		ch <- w
	}
}

// Result returns the final workitem a completed root replied with, and
// whether it has completed yet. Roots that are still in flight (waiting
// on a child, a scheduled timeout, or an external signal) report false.
func (p *Pool) Result(fei api.FEI) (api.Workitem, bool) {
	p.completionsMu.Lock()
	defer p.completionsMu.Unlock()
	w, ok := p.completions[fei]
	return w, ok
}

// AwaitResult blocks until fei's root replies or ctx is done, for tests
// that drive completion from a separate goroutine (e.g. a real timer
// scheduler firing asynchronously). Grounded on the teacher's
// WaitForChildrenStep polling pattern, retargeted to a one-shot channel
// since a single root either completes or it doesn't.
func (p *Pool) AwaitResult(ctx context.Context, fei api.FEI) (api.Workitem, error) {
	p.completionsMu.Lock()
	if w, ok := p.completions[fei]; ok {
		p.completionsMu.Unlock()
		return w, nil
	}
	ch := make(chan api.Workitem, 1)
	p.waiters[fei] = ch
	p.completionsMu.Unlock()

	select {
	case w := <-ch:
		return w, nil
	case <-ctx.Done():
		return api.Workitem{}, ctx.Err()
	}
}

// FailExpression forces fei's own node into the failing state, spec.md
// §4.1's fail(). Exposed at the pool level so a concrete expression that
// only holds its own *corexpr.Base can still ask the pool to fail a
// sibling collaborator it depends on (e.g. a participant timing out a
// peer); ordinary self-failure should call Base.Fail or Base.FailAncestor
// directly.
func (p *Pool) FailExpression(ctx context.Context, fei api.FEI, cause error) error {
	rec, err := p.deps.Storage.Load(ctx, fei)
	if err != nil {
		return err
	}
	base := p.bind(rec)
	return base.Fail(ctx, cause)
}

// NewChildFEI derives a fresh, collision-resistant identifier (a uuid
// expression id) for spawns that are not simple positional children of the
// current tree; ApplyChild itself uses positional FEI.Child ids. Grounded
// on the teacher's reliance on google/uuid for identifier generation,
// promoted here from an indirect SQLite/Postgres dependency to a direct
// one.
func NewChildFEI(workflowID string) api.FEI {
	return api.FEI{WorkflowID: workflowID, ExpressionID: uuid.NewString(), ChildID: 0}
}
