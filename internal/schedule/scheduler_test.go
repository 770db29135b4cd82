package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAfter_Runs(t *testing.T) {
	s := New(zap.NewNop())
	done := make(chan struct{})

	s.After(5*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, time.Millisecond)
}

func TestTask_Cancel(t *testing.T) {
	s := New(zap.NewNop())
	var ran atomic.Bool

	task := s.After(20*time.Millisecond, func() { ran.Store(true) })
	assert.True(t, task.Cancel())
	assert.False(t, task.Cancel())

	time.Sleep(40 * time.Millisecond)
	assert.False(t, ran.Load())
	assert.Equal(t, 0, s.Pending())
}

func TestStop_CancelsPendingAndWakesSleep(t *testing.T) {
	s := New(zap.NewNop())
	var ran atomic.Bool
	s.After(20*time.Millisecond, func() { ran.Store(true) })

	errCh := make(chan error, 1)
	go func() { errCh <- s.Sleep(context.Background(), time.Minute) }()

	s.Stop()
	s.Stop()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("sleep was not woken by Stop")
	}

	time.Sleep(40 * time.Millisecond)
	assert.False(t, ran.Load())

	// 停止后新任务不会执行
	late := s.After(time.Millisecond, func() { ran.Store(true) })
	time.Sleep(10 * time.Millisecond)
	assert.False(t, ran.Load())
	assert.False(t, late.Cancel())
}

func TestSleep_ContextCancel(t *testing.T) {
	s := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Sleep(ctx, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAfter_RecoversPanic(t *testing.T) {
	s := New(zap.NewNop())
	done := make(chan struct{})

	s.After(time.Millisecond, func() { panic("boom") })
	s.After(5*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not survive panic")
	}
}
