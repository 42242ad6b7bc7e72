package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
)

// LocalController implements Controller with atomics and a gate channel.
// The gate is replaced on Pause and closed on Resume, so every goroutine
// parked in CheckPause is released at once.
type LocalController struct {
	exit   int32 // Atomic flag
	exitCh chan struct{}

	mu     sync.Mutex
	paused bool
	gate   chan struct{}
}

// NewController creates an in-process controller that is neither paused
// nor exiting.
func NewController() *LocalController {
	gate := make(chan struct{})
	close(gate)
	return &LocalController{
		exitCh: make(chan struct{}),
		gate:   gate,
	}
}

// RequestExit implements Controller interface
func (c *LocalController) RequestExit() error {
	if atomic.CompareAndSwapInt32(&c.exit, 0, 1) {
		close(c.exitCh)
	}
	return nil
}

// IsExitRequested implements Controller interface
func (c *LocalController) IsExitRequested() bool {
	return atomic.LoadInt32(&c.exit) == 1
}

// Pause implements Controller interface
func (c *LocalController) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.paused {
		c.paused = true
		c.gate = make(chan struct{})
	}
	return nil
}

// Resume implements Controller interface
func (c *LocalController) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused {
		c.paused = false
		close(c.gate)
	}
	return nil
}

// IsPaused implements Controller interface
func (c *LocalController) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// CheckPause implements Controller interface
func (c *LocalController) CheckPause(ctx context.Context) error {
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()

	select {
	case <-gate:
		return nil
	case <-c.exitCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExitRequested returns a channel closed once exit has been requested
func (c *LocalController) ExitRequested() <-chan struct{} {
	return c.exitCh
}

// SetPaused forces the pause flag to paused.
// Used by mirrors that follow a controller living elsewhere.
func (c *LocalController) SetPaused(paused bool) {
	if paused {
		_ = c.Pause()
	} else {
		_ = c.Resume()
	}
}
