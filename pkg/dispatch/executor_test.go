package dispatch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/proctrace/pkg/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_RunsInOrder(t *testing.T) {
	e := dispatch.New(100)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 50; i++ {
		i := i
		require.True(t, e.Submit(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	require.NoError(t, e.Close(context.Background()))

	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestExecutor_SubmitDoesNotBlock(t *testing.T) {
	e := dispatch.New(1)
	release := make(chan struct{})
	started := make(chan struct{})

	require.True(t, e.Submit(func() {
		close(started)
		<-release
	}))
	<-started

	// Worker is busy; one slot left in the queue.
	assert.True(t, e.Submit(func() {}))

	begin := time.Now()
	assert.False(t, e.Submit(func() {}), "full queue must reject the task")
	assert.Less(t, time.Since(begin), 50*time.Millisecond)

	close(release)
	require.NoError(t, e.Close(context.Background()))
}

func TestExecutor_RecoversPanics(t *testing.T) {
	e := dispatch.New(10)
	var ran atomic.Bool

	e.Submit(func() { panic("boom") })
	e.Submit(func() { ran.Store(true) })

	require.NoError(t, e.Close(context.Background()))
	assert.True(t, ran.Load(), "a panicking task must not stop the worker")
}

func TestExecutor_ClosedRejects(t *testing.T) {
	e := dispatch.New(10)
	require.NoError(t, e.Close(context.Background()))
	require.NoError(t, e.Close(context.Background()), "Close is idempotent")

	assert.False(t, e.Submit(func() {}))
}

func TestExecutor_CloseHonoursContext(t *testing.T) {
	e := dispatch.New(10)
	release := make(chan struct{})
	defer close(release)

	e.Submit(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Close(ctx), context.DeadlineExceeded)
}
