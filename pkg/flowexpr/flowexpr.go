// Package flowexpr re-exports the public surface of the flow-expression
// core so callers do not need to reach into pkg/api, pkg/pool, or
// pkg/expressions directly, matching the teacher's fluxo.go re-export
// style ("Re-export key types so users don't need to dig into pkg/api.").
package flowexpr

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/flowcore/flowexpr/pkg/api"
	"github.com/flowcore/flowexpr/pkg/expressions"
	"github.com/flowcore/flowexpr/pkg/pool"
)

// Re-export key types so users don't need to dig into pkg/api.
type (
	FEI                  = api.FEI
	Tree                 = api.Tree
	Workitem             = api.Workitem
	State                = api.State
	Flavour              = api.Flavour
	HandlerTrigger       = api.HandlerTrigger
	Expression           = api.Expression
	ExpressionRecord     = api.ExpressionRecord
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	Storage              = api.Storage
	Queue                = api.Queue
	Scheduler            = api.Scheduler
	GlobalVars           = api.GlobalVars
	TimeoutError         = api.TimeoutError
	CommandFunc          = expressions.CommandFunc
	Pool                 = pool.Pool
)

// Re-export state/flavour constants for convenience.
const (
	StateActive     = api.StateActive
	StateFailing    = api.StateFailing
	StateCancelling = api.StateCancelling
	StateTimingOut  = api.StateTimingOut
	StateDying      = api.StateDying
	StateFailed     = api.StateFailed

	FlavourCancel  = api.FlavourCancel
	FlavourTimeout = api.FlavourTimeout
	FlavourKill    = api.FlavourKill
)

// Re-export common observer helpers.
var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Pool constructors.
// These wrap pkg/pool so external callers never need to import it or the
// internal storage/queue/scheduler packages directly.

// NewInMemoryPool returns a Pool backed entirely by in-memory
// collaborators, with the default expression kinds pre-registered.
func NewInMemoryPool() *Pool {
	p := pool.NewInMemoryPool()
	expressions.RegisterDefaults(p)
	return p
}

// NewInMemoryPoolWithObserver is NewInMemoryPool with an explicit
// Observer.
func NewInMemoryPoolWithObserver(obs Observer) *Pool {
	p := pool.NewInMemoryPoolWithObserver(obs)
	expressions.RegisterDefaults(p)
	return p
}

// NewSQLitePool returns a Pool whose storage and scheduler persist to db.
func NewSQLitePool(db *sql.DB) (*Pool, error) {
	p, err := pool.NewSQLitePool(db)
	if err != nil {
		return nil, err
	}
	expressions.RegisterDefaults(p)
	return p, nil
}

// NewPostgresPool returns a Pool whose storage persists to db.
func NewPostgresPool(db *sql.DB) (*Pool, error) {
	p, err := pool.NewPostgresPool(db)
	if err != nil {
		return nil, err
	}
	expressions.RegisterDefaults(p)
	return p, nil
}

// NewRedisPool returns a Pool whose storage and work queue are backed by
// client.
func NewRedisPool(client *redis.Client) (*Pool, error) {
	p, err := pool.NewRedisPool(client)
	if err != nil {
		return nil, err
	}
	expressions.RegisterDefaults(p)
	return p, nil
}

// NewMongoPool returns a Pool whose storage is backed by client.
func NewMongoPool(client *mongo.Client) (*Pool, error) {
	p, err := pool.NewMongoPool(client)
	if err != nil {
		return nil, err
	}
	expressions.RegisterDefaults(p)
	return p, nil
}

// RegisterCommand wires a named command tree into p, e.g.
//
//	flowexpr.RegisterCommand(p, "send-email", sendEmail)
func RegisterCommand(p *Pool, name string, fn CommandFunc) {
	p.RegisterKind(name, expressions.NewCommandFactory(fn))
}

// ApplyRoot starts a brand-new workflow tree as a root expression.
func ApplyRoot(ctx context.Context, p *Pool, workflowID string, tree Tree, w Workitem) error {
	return p.ApplyRoot(ctx, workflowID, tree, w)
}

// Result returns the final workitem a completed root replied with.
func Result(p *Pool, fei FEI) (Workitem, bool) {
	return p.Result(fei)
}

// AwaitResult blocks until fei's root replies or ctx is done.
func AwaitResult(ctx context.Context, p *Pool, fei FEI) (Workitem, error) {
	return p.AwaitResult(ctx, fei)
}
