package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowexpr/internal/worker"
)

func TestInMemoryQueueEnqueueDequeueRoundTrips(t *testing.T) {
	q := worker.NewInMemoryQueue(4)
	ctx := context.Background()

	job := worker.Job{ID: "j1", Type: worker.JobApplyRoot, WorkflowID: "wf"}
	require.NoError(t, q.Enqueue(ctx, job))
	assert.Equal(t, 1, q.Len())

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, job, got)
	assert.Equal(t, 0, q.Len())
}

func TestInMemoryQueueDequeueRespectsContextCancellation(t *testing.T) {
	q := worker.NewInMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryQueueDefaultsCapacity(t *testing.T) {
	q := worker.NewInMemoryQueue(0)
	assert.Equal(t, 0, q.Len())

	// A zero capacity would make the channel unbuffered and block Enqueue;
	// the default capacity lets jobs queue up without a reader.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Enqueue(ctx, worker.Job{ID: "a"}))
	require.NoError(t, q.Enqueue(ctx, worker.Job{ID: "b"}))
	assert.Equal(t, 2, q.Len())
}
