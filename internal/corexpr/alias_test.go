package corexpr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowexpr/pkg/api"
)

// fakeStorage is a minimal in-package api.Storage double for exercising
// IterativeVarLookup's alias-chasing without pulling in internal/storage.
type fakeStorage struct {
	recs map[string]api.ExpressionRecord
}

func (f *fakeStorage) Load(ctx context.Context, fei api.FEI) (api.ExpressionRecord, error) {
	rec, ok := f.recs[fei.String()]
	if !ok {
		return api.ExpressionRecord{}, api.ErrExpressionNotFound
	}
	return rec, nil
}
func (f *fakeStorage) Save(ctx context.Context, rec api.ExpressionRecord) error {
	f.recs[rec.Fei.String()] = rec
	return nil
}
func (f *fakeStorage) Delete(ctx context.Context, fei api.FEI) error {
	delete(f.recs, fei.String())
	return nil
}

type fakeGlobals struct{ vars map[string]any }

func (g *fakeGlobals) Get(name string) (any, bool) { v, ok := g.vars[name]; return v, ok }
func (g *fakeGlobals) Set(name string, v any)       { g.vars[name] = v }
func (g *fakeGlobals) Unset(name string)            { delete(g.vars, name) }

type fakeQueue struct{}

func (fakeQueue) Emit(ctx context.Context, ev api.Event) error     { return nil }
func (fakeQueue) EmitSync(ctx context.Context, ev api.Event) error { return nil }
func (fakeQueue) Subscribe(ch api.EventChannel, fn func(api.Event)) func() {
	return func() {}
}

func TestIterativeVarLookupChasesStringAliases(t *testing.T) {
	fei := api.FEI{WorkflowID: "wf", ExpressionID: "0"}
	rec := api.ExpressionRecord{
		Fei: fei,
		Variables: map[string]any{
			"a": "b",
			"b": "c",
			"c": 42,
		},
	}
	deps := Deps{Storage: &fakeStorage{recs: map[string]api.ExpressionRecord{fei.String(): rec}}, Globals: &fakeGlobals{vars: map[string]any{}}, Queue: fakeQueue{}}
	base := NewBase(rec, deps)

	name, v, err := base.IterativeVarLookup(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "c", name)
	assert.Equal(t, 42, v)
}

func TestIterativeVarLookupDetectsCycle(t *testing.T) {
	fei := api.FEI{WorkflowID: "wf", ExpressionID: "0"}
	rec := api.ExpressionRecord{
		Fei: fei,
		Variables: map[string]any{
			"a": "b",
			"b": "a",
		},
	}
	deps := Deps{Storage: &fakeStorage{recs: map[string]api.ExpressionRecord{fei.String(): rec}}, Globals: &fakeGlobals{vars: map[string]any{}}, Queue: fakeQueue{}}
	base := NewBase(rec, deps)

	_, _, err := base.IterativeVarLookup(context.Background(), "a")
	assert.ErrorIs(t, err, api.ErrAliasCycle)
}

func TestSetVariableGlobalPrefix(t *testing.T) {
	fei := api.FEI{WorkflowID: "wf", ExpressionID: "0"}
	rec := api.ExpressionRecord{Fei: fei, Variables: map[string]any{}}
	globals := &fakeGlobals{vars: map[string]any{}}
	deps := Deps{Storage: &fakeStorage{recs: map[string]api.ExpressionRecord{fei.String(): rec}}, Globals: globals, Queue: fakeQueue{}}
	base := NewBase(rec, deps)

	require.NoError(t, base.SetVariable(context.Background(), "//shared", "v"))
	v, ok := globals.Get("shared")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}
