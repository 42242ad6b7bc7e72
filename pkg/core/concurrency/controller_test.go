package concurrency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_RequestExit(t *testing.T) {
	c := NewController()
	assert.False(t, c.IsExitRequested())

	require.NoError(t, c.RequestExit())
	assert.True(t, c.IsExitRequested())

	// Idempotent and monotonic
	require.NoError(t, c.RequestExit())
	assert.True(t, c.IsExitRequested())

	select {
	case <-c.ExitRequested():
	default:
		t.Error("ExitRequested() should be closed after RequestExit()")
	}
}

func TestController_CheckPauseNotPaused(t *testing.T) {
	c := NewController()
	assert.NoError(t, c.CheckPause(context.Background()))
}

func waitReleased(t *testing.T, c *LocalController, n int) {
	t.Helper()

	released := make(chan struct{}, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.CheckPause(context.Background()); err == nil {
				released <- struct{}{}
			}
		}()
	}

	select {
	case <-released:
		t.Fatal("CheckPause() returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, c.Resume())
	wg.Wait()
	assert.Len(t, released, n)
}

func TestController_PauseResumeCycles(t *testing.T) {
	c := NewController()

	for cycle := 0; cycle < 2; cycle++ {
		require.NoError(t, c.Pause())
		assert.True(t, c.IsPaused())
		waitReleased(t, c, 3)
		assert.False(t, c.IsPaused())
	}
}

func TestController_PauseIdempotent(t *testing.T) {
	c := NewController()
	require.NoError(t, c.Pause())
	require.NoError(t, c.Pause())
	waitReleased(t, c, 1)

	require.NoError(t, c.Resume())
	assert.False(t, c.IsPaused())
}

func TestController_ExitReleasesPause(t *testing.T) {
	c := NewController()
	require.NoError(t, c.Pause())

	done := make(chan error, 1)
	go func() {
		done <- c.CheckPause(context.Background())
	}()

	require.NoError(t, c.RequestExit())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("CheckPause() not released by RequestExit()")
	}
	assert.True(t, c.IsPaused())
}

func TestController_CheckPauseContext(t *testing.T) {
	c := NewController()
	require.NoError(t, c.Pause())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.CheckPause(ctx), context.DeadlineExceeded)
}

func TestController_SetPaused(t *testing.T) {
	c := NewController()
	c.SetPaused(true)
	assert.True(t, c.IsPaused())
	c.SetPaused(false)
	assert.False(t, c.IsPaused())
}
