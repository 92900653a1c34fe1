package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowexpr/internal/scheduler"
	"github.com/flowcore/flowexpr/pkg/api"
)

func TestTimerFiresAfterDuration(t *testing.T) {
	fired := make(chan api.FEI, 1)
	s := scheduler.NewTimer(func(ctx context.Context, fei api.FEI) error {
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
		t.Fatal("timer never fired")
	}
}

func TestTimerUnscheduleCancelsFire(t *testing.T) {
	fired := make(chan api.FEI, 1)
	s := scheduler.NewTimer(func(ctx context.Context, fei api.FEI) error {
		fired <- fei
		return nil
	})

	fei := api.FEI{WorkflowID: "wf", ExpressionID: "0"}
	jobID, err := s.In(context.Background(), 30*time.Millisecond, fei)
	require.NoError(t, err)

	require.NoError(t, s.Unschedule(context.Background(), jobID))

	select {
	case <-fired:
		t.Fatal("unscheduled job fired anyway")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestTimerUnscheduleUnknownJobIsNotError(t *testing.T) {
	s := scheduler.NewTimer(func(ctx context.Context, fei api.FEI) error { return nil })
	assert.NoError(t, s.Unschedule(context.Background(), "does-not-exist"))
}
