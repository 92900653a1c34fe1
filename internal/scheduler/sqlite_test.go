package scheduler_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowexpr/internal/scheduler"
	"github.com/flowcore/flowexpr/pkg/api"
)

func newTestSQLiteScheduler(t *testing.T, fire scheduler.Fire) *scheduler.SQLite {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := scheduler.NewSQLite(db, fire)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteSchedulerFiresAfterDuration(t *testing.T) {
	fired := make(chan api.FEI, 1)
	s := newTestSQLiteScheduler(t, func(ctx context.Context, fei api.FEI) error {
		fired <- fei
		return nil
	})

	fei := api.FEI{WorkflowID: "wf", ExpressionID: "0"}
	_, err := s.In(context.Background(), 10*time.Millisecond, fei)
	require.NoError(t, err)

	select {
	case got := <-fired:
		assert.Equal(t, fei, got)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled job never fired")
	}
}

func TestSQLiteSchedulerUnscheduleCancelsFire(t *testing.T) {
	fired := make(chan api.FEI, 1)
	s := newTestSQLiteScheduler(t, func(ctx context.Context, fei api.FEI) error {
		fired <- fei
		return nil
	})

	fei := api.FEI{WorkflowID: "wf", ExpressionID: "0"}
	jobID, err := s.In(context.Background(), 60*time.Millisecond, fei)
	require.NoError(t, err)

	require.NoError(t, s.Unschedule(context.Background(), jobID))

	select {
	case <-fired:
		t.Fatal("unscheduled job fired anyway")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSQLiteSchedulerUnscheduleUnknownJobIsNotError(t *testing.T) {
	s := newTestSQLiteScheduler(t, func(ctx context.Context, fei api.FEI) error { return nil })
	assert.NoError(t, s.Unschedule(context.Background(), "does-not-exist"))
}

func TestSQLiteSchedulerSurvivesFireError(t *testing.T) {
	var calls int
	s := newTestSQLiteScheduler(t, func(ctx context.Context, fei api.FEI) error {
		calls++
		return assertSchedulerError{"boom"}
	})

	_, err := s.In(context.Background(), 10*time.Millisecond, api.FEI{WorkflowID: "wf"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return calls == 1 }, time.Second, 5*time.Millisecond)
}

type assertSchedulerError struct{ msg string }

func (e assertSchedulerError) Error() string { return e.msg }
