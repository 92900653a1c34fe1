// Package globalvars implements the engine-global variable table,
// spec.md §4.3/§9: a mapping protected by the same single-threaded
// dispatch discipline as every other shared resource, grounded in the
// teacher's workflowRegistry (internal/engine/registry.go)'s
// sync.RWMutex-guarded map.
package globalvars

import "sync"

// Table is a concurrency-safe implementation of api.GlobalVars.
type Table struct {
	mu   sync.RWMutex
	vars map[string]any
}

// New returns an empty Table.
func New() *Table {
	return &Table{vars: make(map[string]any)}
}

func (t *Table) Get(name string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.vars[name]
	return v, ok
}

func (t *Table) Set(name string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vars[name] = value
}

func (t *Table) Unset(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.vars, name)
}
