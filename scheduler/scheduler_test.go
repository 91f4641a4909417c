package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAddTicker_Fires(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var count atomic.Int32
	s.AddTicker("tick", 20*time.Millisecond, func(context.Context) {
		count.Add(1)
	})

	assert.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, 10*time.Millisecond)
}

func TestAddTicker_Replaces(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var count1, count2 atomic.Int32
	s.AddTicker("task", 20*time.Millisecond, func(context.Context) { count1.Add(1) })
	time.Sleep(30 * time.Millisecond)
	s.AddTicker("task", 20*time.Millisecond, func(context.Context) { count2.Add(1) })
	time.Sleep(60 * time.Millisecond)

	snap1 := count1.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, snap1, count1.Load(), "old ticker must stop after replacement")
	assert.Positive(t, count2.Load())
	assert.Equal(t, []string{"task"}, s.ListTickers())
}

func TestRemove(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var count atomic.Int32
	s.AddTicker("sweep", 10*time.Millisecond, func(context.Context) { count.Add(1) })
	s.Remove("sweep")
	s.Remove("missing")
	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, count.Load())
	assert.Empty(t, s.ListTickers())
}

func TestPanicRecovered(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	s := New(zap.New(core))
	defer s.Stop()

	var after atomic.Int32
	s.AddTicker("boom", 10*time.Millisecond, func(context.Context) {
		if after.Add(1) == 1 {
			panic("first run fails")
		}
	})
	assert.Eventually(t, func() bool { return after.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, logs.FilterMessage("scheduler task panicked").Len(), 1)
}

func TestStop_CancelsRunningTask(t *testing.T) {
	s := New(zap.NewNop())
	started := make(chan struct{})
	var cancelled atomic.Bool
	s.AddTicker("long", 5*time.Millisecond, func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		cancelled.Store(true)
	})
	<-started
	s.Stop()
	assert.True(t, cancelled.Load())

	s.AddTicker("late", time.Millisecond, func(context.Context) {})
	require.Empty(t, s.ListTickers(), "stopped scheduler accepts no tasks")
	assert.NotPanics(t, s.Stop)
}
