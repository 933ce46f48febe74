package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScheduler_At(t *testing.T) {
	s := New(zap.NewNop())
	s.Start()
	defer s.Stop()

	var executed atomic.Bool
	require.NoError(t, s.At("once", time.Now().Add(50*time.Millisecond), func(ctx context.Context) {
		executed.Store(true)
	}))

	assert.Eventually(t, executed.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, s.Stats().ScheduledTasks)
}

func TestScheduler_Cancel(t *testing.T) {
	s := New(zap.NewNop())
	s.Start()
	defer s.Stop()

	var executed atomic.Bool
	require.NoError(t, s.At("once", time.Now().Add(100*time.Millisecond), func(ctx context.Context) {
		executed.Store(true)
	}))

	assert.True(t, s.Cancel("once"))
	assert.False(t, s.Cancel("once"))

	time.Sleep(200 * time.Millisecond)
	assert.False(t, executed.Load())
}

func TestScheduler_Ordering(t *testing.T) {
	s := New(zap.NewNop())
	s.Start()
	defer s.Stop()

	var mu sync.Mutex
	var results []int
	record := func(n int) func(context.Context) {
		return func(context.Context) {
			mu.Lock()
			results = append(results, n)
			mu.Unlock()
		}
	}

	now := time.Now()
	require.NoError(t, s.At("task3", now.Add(150*time.Millisecond), record(3)))
	require.NoError(t, s.At("task1", now.Add(50*time.Millisecond), record(1)))
	require.NoError(t, s.At("task2", now.Add(100*time.Millisecond), record(2)))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{1, 2, 3}, results)
}

func TestScheduler_ReplaceExisting(t *testing.T) {
	s := New(zap.NewNop())
	s.Start()
	defer s.Stop()

	var count atomic.Int32
	require.NoError(t, s.At("job", time.Now().Add(100*time.Millisecond), func(context.Context) { count.Add(1) }))
	require.NoError(t, s.At("job", time.Now().Add(50*time.Millisecond), func(context.Context) { count.Add(10) }))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(10), count.Load())
}

func TestScheduler_Every(t *testing.T) {
	s := New(zap.NewNop())
	s.Start()
	defer s.Stop()

	var count atomic.Int32
	require.NoError(t, s.Every("tick", 20*time.Millisecond, func(context.Context) { count.Add(1) }))

	assert.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.Stats().ScheduledTasks)
}

func TestScheduler_SingleFlight(t *testing.T) {
	s := New(zap.NewNop())
	s.Start()

	var inFlight, maxInFlight atomic.Int32
	release := make(chan struct{})
	require.NoError(t, s.Every("slow", 10*time.Millisecond, func(ctx context.Context) {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		inFlight.Add(-1)
	}))

	assert.Eventually(t, func() bool { return s.Stats().Skipped >= 3 }, time.Second, 5*time.Millisecond)
	close(release)
	s.Stop()

	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestScheduler_StopCancelsRunningJobs(t *testing.T) {
	s := New(zap.NewNop())
	s.Start()

	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, s.At("long", time.Now(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	}))

	<-started
	s.Stop()
	assert.True(t, cancelled.Load())
	assert.ErrorIs(t, s.At("late", time.Now(), func(context.Context) {}), ErrSchedulerStopped)
}

func TestScheduler_Stats(t *testing.T) {
	s := New(zap.NewNop())
	s.Start()
	defer s.Stop()

	require.NoError(t, s.At("task1", time.Now().Add(time.Hour), func(context.Context) {}))
	require.NoError(t, s.At("task2", time.Now().Add(2*time.Hour), func(context.Context) {}))
	require.NoError(t, s.Every("task3", 3*time.Hour, func(context.Context) {}))

	assert.Equal(t, 3, s.Stats().ScheduledTasks)
	assert.ErrorIs(t, s.Every("bad", 0, func(context.Context) {}), ErrInvalidInterval)
}

func TestScheduler_PanicDoesNotKillLoop(t *testing.T) {
	s := New(zap.NewNop())
	s.Start()
	defer s.Stop()

	var ran atomic.Bool
	require.NoError(t, s.At("boom", time.Now(), func(context.Context) { panic("boom") }))
	require.NoError(t, s.At("after", time.Now().Add(30*time.Millisecond), func(context.Context) { ran.Store(true) }))

	assert.Eventually(t, ran.Load, time.Second, 5*time.Millisecond)
}
