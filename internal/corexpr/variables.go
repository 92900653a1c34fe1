package corexpr

import (
	"context"

	"github.com/flowcore/flowexpr/pkg/api"
)

// splitPrefix extracts the leading run of '/' characters from name,
// clamped to at most two for classification purposes, and returns the
// bare name with the entire run stripped, spec.md §4.3 "Prefix
// extraction".
func splitPrefix(name string) (prefixLen int, bare string) {
	i := 0
	for i < len(name) && name[i] == '/' {
		i++
	}
	pl := i
	if pl > 2 {
		pl = 2
	}
	return pl, name[i:]
}

// LookupVariable implements spec.md §4.3's lookup_variable.
func (b *Base) LookupVariable(ctx context.Context, name string) (any, error) {
	prefixLen, bare := splitPrefix(name)
	v, _, err := lookupVariable(ctx, b.deps.Storage, b.deps.Globals, b.rec, bare, prefixLen)
	return v, err
}

func lookupVariable(ctx context.Context, storage api.Storage, globals api.GlobalVars, rec api.ExpressionRecord, bare string, prefixLen int) (any, bool, error) {
	if prefixLen >= 2 {
		v, ok := globals.Get(bare)
		return v, ok, nil
	}

	if prefixLen >= 1 {
		if rec.ParentID == nil {
			return nil, false, api.ErrNoParent
		}
		parent, err := storage.Load(ctx, *rec.ParentID)
		if err != nil {
			return nil, false, err
		}
		return lookupVariable(ctx, storage, globals, parent, bare, prefixLen-1)
	}

	if rec.Variables != nil {
		if v, ok := rec.Variables[bare]; ok && v != nil {
			return v, true, nil
		}
	}

	if rec.ParentID != nil {
		parent, err := storage.Load(ctx, *rec.ParentID)
		if err != nil {
			return nil, false, err
		}
		return lookupVariable(ctx, storage, globals, parent, bare, 0)
	}

	v, ok := globals.Get(bare)
	return v, ok, nil
}

// SetVariable implements spec.md §4.3's set_variable.
func (b *Base) SetVariable(ctx context.Context, name string, value any) error {
	prefixLen, bare := splitPrefix(name)
	return b.setVariable(ctx, bare, value, prefixLen)
}

func (b *Base) setVariable(ctx context.Context, bare string, value any, prefixLen int) error {
	if prefixLen >= 2 {
		b.deps.Globals.Set(bare, value)
		return nil
	}

	if prefixLen >= 1 {
		if b.rec.ParentID == nil {
			return api.ErrNoParent
		}
		return setVariableOn(ctx, b.deps, *b.rec.ParentID, bare, value, prefixLen-1)
	}

	if b.rec.Variables != nil {
		b.rec.Variables[bare] = value
		b.deps.Observer.OnVariableSet(ctx, b.rec.Fei, bare)
		if err := b.deps.Queue.Emit(ctx, api.Event{
			Channel: api.ChannelVariables,
			Kind:    api.EventVariableSet,
			Payload: map[string]any{"var": bare, "fei": b.rec.Fei},
		}); err != nil {
			return err
		}
		return b.persist(ctx)
	}

	if b.rec.ParentID != nil {
		return setVariableOn(ctx, b.deps, *b.rec.ParentID, bare, value, 0)
	}

	// spec.md §9 open question: orphan without an engine root. At least
	// log it rather than silently no-op.
	b.deps.Observer.OnVariableSet(ctx, b.rec.Fei, bare)
	return nil
}

// setVariableOn loads the record at fei, applies the write, and persists
// whichever node ends up owning it — used once a write has to delegate to
// an ancestor that is not the currently-dispatched expression.
func setVariableOn(ctx context.Context, deps Deps, fei api.FEI, bare string, value any, prefixLen int) error {
	rec, err := deps.Storage.Load(ctx, fei)
	if err != nil {
		return err
	}
	tmp := NewBase(rec, deps)
	if err := tmp.setVariable(ctx, bare, value, prefixLen); err != nil {
		return err
	}
	return nil
}

// UnsetVariable implements spec.md §4.3's unset_variable, symmetric to
// SetVariable.
func (b *Base) UnsetVariable(ctx context.Context, name string) error {
	prefixLen, bare := splitPrefix(name)
	return b.unsetVariable(ctx, bare, prefixLen)
}

func (b *Base) unsetVariable(ctx context.Context, bare string, prefixLen int) error {
	if prefixLen >= 2 {
		b.deps.Globals.Unset(bare)
		return nil
	}

	if prefixLen >= 1 {
		if b.rec.ParentID == nil {
			return api.ErrNoParent
		}
		return unsetVariableOn(ctx, b.deps, *b.rec.ParentID, bare, prefixLen-1)
	}

	if b.rec.Variables != nil {
		if _, ok := b.rec.Variables[bare]; ok {
			delete(b.rec.Variables, bare)
			b.deps.Observer.OnVariableUnset(ctx, b.rec.Fei, bare)
			if err := b.deps.Queue.Emit(ctx, api.Event{
				Channel: api.ChannelVariables,
				Kind:    api.EventVariableUnset,
				Payload: map[string]any{"var": bare, "fei": b.rec.Fei},
			}); err != nil {
				return err
			}
			return b.persist(ctx)
		}
		return nil
	}

	if b.rec.ParentID != nil {
		return unsetVariableOn(ctx, b.deps, *b.rec.ParentID, bare, 0)
	}

	b.deps.Globals.Unset(bare)
	return nil
}

func unsetVariableOn(ctx context.Context, deps Deps, fei api.FEI, bare string, prefixLen int) error {
	rec, err := deps.Storage.Load(ctx, fei)
	if err != nil {
		return err
	}
	tmp := NewBase(rec, deps)
	return tmp.unsetVariable(ctx, bare, prefixLen)
}

// maxAliasHops bounds IterativeVarLookup against a pathological alias
// cycle (SPEC_FULL.md §8); spec.md does not bound this explicitly.
const maxAliasHops = 64

// IterativeVarLookup implements spec.md §4.3's iterative_var_lookup:
// chase string aliases until a non-string value (or an absent binding) is
// found.
func (b *Base) IterativeVarLookup(ctx context.Context, name string) (string, any, error) {
	cur := name
	for i := 0; i < maxAliasHops; i++ {
		v, err := b.LookupVariable(ctx, cur)
		if err != nil {
			return cur, nil, err
		}
		s, ok := v.(string)
		if !ok {
			return cur, v, nil
		}
		cur = s
	}
	return cur, nil, api.ErrAliasCycle
}
