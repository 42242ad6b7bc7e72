package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core/concurrency"
)

// exitPollInterval bounds how long Sleep takes to notice an exit request.
const exitPollInterval = 50 * time.Millisecond

// Env is what a running instance sees of the framework.
type Env struct {
	// Name is "<spec>_<index>_<pid>", also the name of Logger.
	Name  string
	Spec  string
	Index int
	PID   int

	Inputs     []concurrency.Channel
	Outputs    []concurrency.Channel
	Controller concurrency.Controller

	// Logger is private to this instance.
	Logger core.Logger
}

// IterationFunc is one pass of a worker loop.
type IterationFunc func(ctx context.Context) error

// Loop runs iteration until exit is requested or ctx ends.
// Every pass first waits at the pause gate and re-checks exit. Errors and
// panics from a single pass are logged and the loop continues.
func (e *Env) Loop(ctx context.Context, iteration IterationFunc) error {
	for !e.Controller.IsExitRequested() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Controller.CheckPause(ctx); err != nil {
			return err
		}
		if e.Controller.IsExitRequested() {
			break
		}

		if err := e.runIteration(ctx, iteration); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.Logger.Errorf("iteration failed: %v", err)
		}
	}
	e.Logger.Info("exit requested, stopping")
	return nil
}

func (e *Env) runIteration(ctx context.Context, iteration IterationFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return iteration(ctx)
}

// Poll reads input i without blocking. ok=false means the input was empty.
func (e *Env) Poll(i int) (item any, ok bool, err error) {
	if i < 0 || i >= len(e.Inputs) {
		return nil, false, fmt.Errorf("%s: no input %d", e.Name, i)
	}
	return e.Inputs[i].TryGet()
}

// Emit writes item to output i, blocking while that channel is full.
// A blocked Emit is released by the shutdown drain.
func (e *Env) Emit(ctx context.Context, i int, item any) error {
	if i < 0 || i >= len(e.Outputs) {
		return fmt.Errorf("%s: no output %d", e.Name, i)
	}
	return e.Outputs[i].Put(ctx, item)
}

// Sleep waits for d, returning early when exit is requested or ctx ends.
// It returns false if the caller should stop.
func (e *Env) Sleep(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if e.Controller.IsExitRequested() || ctx.Err() != nil {
			return false
		}
		left := time.Until(deadline)
		if left <= 0 {
			return true
		}
		if left > exitPollInterval {
			left = exitPollInterval
		}

		t := time.NewTimer(left)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return false
		}
	}
}
