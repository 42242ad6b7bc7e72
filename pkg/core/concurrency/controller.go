package concurrency

import "context"

// Controller is the control plane shared by every worker of a run.
// Only the orchestrator writes it; workers poll it cooperatively.
type Controller interface {
	// RequestExit sets the exit flag. Idempotent; the flag never resets.
	RequestExit() error

	// IsExitRequested reports the exit flag without blocking
	IsExitRequested() bool

	// Pause closes the pause gate
	Pause() error

	// Resume opens the pause gate
	Resume() error

	// IsPaused reports the pause flag without blocking
	IsPaused() bool

	// CheckPause blocks while the controller is paused.
	// It returns nil once resumed or once exit has been requested, and
	// ctx.Err() if ctx ends first.
	CheckPause(ctx context.Context) error
}
