package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowexpr/internal/storage"
	"github.com/flowcore/flowexpr/pkg/api"
)

func TestInMemoryLoadMissing(t *testing.T) {
	s := storage.New()
	_, err := s.Load(context.Background(), api.FEI{WorkflowID: "wf"})
	assert.ErrorIs(t, err, api.ErrExpressionNotFound)
}

func TestInMemorySaveLoadRoundTripsAndClonesOnBothSides(t *testing.T) {
	s := storage.New()
	ctx := context.Background()

	fei := api.FEI{WorkflowID: "wf", ExpressionID: "0"}
	rec := api.ExpressionRecord{
		Fei:          fei,
		OriginalTree: api.Tree{Name: "sequence", Attributes: map[string]any{"tag": "t"}},
		Variables:    map[string]any{"x": 1},
	}
	require.NoError(t, s.Save(ctx, rec))

	// Mutating the caller's copy after Save must not affect the stored
	// record.
	rec.Variables["x"] = 999

	loaded, err := s.Load(ctx, fei)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Variables["x"])

	// Mutating the loaded copy must not affect the stored record either.
	loaded.Variables["x"] = 2
	loaded2, err := s.Load(ctx, fei)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded2.Variables["x"])
}

func TestInMemoryDeleteIsIdempotent(t *testing.T) {
	s := storage.New()
	ctx := context.Background()
	fei := api.FEI{WorkflowID: "wf"}

	assert.NoError(t, s.Delete(ctx, fei))

	require.NoError(t, s.Save(ctx, api.ExpressionRecord{Fei: fei}))
	require.NoError(t, s.Delete(ctx, fei))
	require.NoError(t, s.Delete(ctx, fei))

	_, err := s.Load(ctx, fei)
	assert.ErrorIs(t, err, api.ErrExpressionNotFound)
}
