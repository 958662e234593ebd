package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskGroup_RunsTasks(t *testing.T) {
	g := NewTaskGroup(time.Second, nil)
	var n atomic.Int32

	for i := 0; i < 10; i++ {
		require.True(t, g.Go("count", func(ctx context.Context) error {
			n.Add(1)
			return nil
		}))
	}
	g.Wait()
	assert.Equal(t, int32(10), n.Load())
	require.NoError(t, g.Close(context.Background()))
}

func TestTaskGroup_FailuresAreContained(t *testing.T) {
	g := NewTaskGroup(time.Second, nil)
	ran := make(chan struct{})
	g.Go("fail", func(ctx context.Context) error {
		close(ran)
		return errBoom
	})
	<-ran
	require.NoError(t, g.Close(context.Background()))
}

func TestTaskGroup_PerTaskTimeout(t *testing.T) {
	g := NewTaskGroup(20*time.Millisecond, nil)
	var deadlineHit atomic.Bool

	g.Go("slow", func(ctx context.Context) error {
		<-ctx.Done()
		deadlineHit.Store(ctx.Err() == context.DeadlineExceeded)
		return ctx.Err()
	})
	g.Wait()
	assert.True(t, deadlineHit.Load())
}

func TestTaskGroup_RejectsAfterClose(t *testing.T) {
	g := NewTaskGroup(time.Second, nil)
	require.NoError(t, g.Close(context.Background()))

	assert.False(t, g.Go("late", func(ctx context.Context) error {
		t.Error("task must not run after close")
		return nil
	}))
}

func TestTaskGroup_CloseCancelsOutstandingTasks(t *testing.T) {
	g := NewTaskGroup(time.Minute, nil)
	started := make(chan struct{})
	var cancelled atomic.Bool

	g.Go("stuck", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	g.Wait()
	assert.True(t, cancelled.Load())
}
