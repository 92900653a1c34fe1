package storage_test

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowexpr/internal/storage"
	"github.com/flowcore/flowexpr/pkg/api"
)

func newTestSQLiteStore(t *testing.T) *storage.SQLite {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := storage.NewSQLite(db)
	require.NoError(t, err)
	return s
}

func TestSQLiteSaveLoadRoundTrips(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	fei := api.FEI{WorkflowID: "wf", ExpressionID: "0"}
	rec := api.ExpressionRecord{
		Fei:          fei,
		State:        api.StateActive,
		OriginalTree: api.Tree{Name: "sequence", Attributes: map[string]any{"tag": "t"}},
		Variables:    map[string]any{"x": 1},
	}
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Load(ctx, fei)
	require.NoError(t, err)
	assert.Equal(t, fei, got.Fei)
	assert.Equal(t, api.StateActive, got.State)
	assert.Equal(t, "sequence", got.OriginalTree.Name)
	assert.Equal(t, 1, got.Variables["x"])
}

func TestSQLiteSaveIsUpsert(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	fei := api.FEI{WorkflowID: "wf", ExpressionID: "0"}

	require.NoError(t, s.Save(ctx, api.ExpressionRecord{Fei: fei, State: api.StateActive}))
	require.NoError(t, s.Save(ctx, api.ExpressionRecord{Fei: fei, State: api.StateFailing}))

	got, err := s.Load(ctx, fei)
	require.NoError(t, err)
	assert.Equal(t, api.StateFailing, got.State)
}

func TestSQLiteLoadMissingReturnsNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	_, err := s.Load(context.Background(), api.FEI{WorkflowID: "wf"})
	assert.ErrorIs(t, err, api.ErrExpressionNotFound)
}

func TestSQLiteDeleteIsIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	fei := api.FEI{WorkflowID: "wf"}

	assert.NoError(t, s.Delete(ctx, fei))

	require.NoError(t, s.Save(ctx, api.ExpressionRecord{Fei: fei}))
	require.NoError(t, s.Delete(ctx, fei))
	require.NoError(t, s.Delete(ctx, fei))

	_, err := s.Load(ctx, fei)
	assert.ErrorIs(t, err, api.ErrExpressionNotFound)
}
