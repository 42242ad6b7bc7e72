package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Launcher starts one instance of a pool
type Launcher interface {
	Launch(ctx context.Context, p *Pool, index int) (*Handle, error)
}

// GoroutineLauncher runs each instance on its own goroutine in the current
// process. Channels and controller must be reachable from this process.
type GoroutineLauncher struct{}

// Launch implements Launcher interface
func (GoroutineLauncher) Launch(ctx context.Context, p *Pool, index int) (*Handle, error) {
	h := newHandle(p.InstanceName(index, os.Getpid()), index)
	go func() {
		h.finish(p.RunInstance(ctx, index))
	}()
	return h, nil
}

// ProcessLauncher runs each instance as a child OS process by re-executing
// a binary that rebuilds the same topology and calls RunInstance.
// Channels and controller must come from a cross-process backend.
type ProcessLauncher struct {
	// Path of the binary. Default: the current executable.
	Path string

	// Args builds the child's arguments for one instance. Required.
	Args func(spec string, index int) []string

	// Env is appended to the current environment.
	Env []string

	// Stdout and Stderr of the child. Default: the parent's.
	Stdout io.Writer
	Stderr io.Writer
}

// Launch implements Launcher interface.
// The child is not tied to ctx: cancellation stays cooperative through the
// controller and nothing here kills a running child.
func (l ProcessLauncher) Launch(ctx context.Context, p *Pool, index int) (*Handle, error) {
	if l.Args == nil {
		return nil, errors.New("process launcher: Args is required")
	}
	path := l.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("process launcher: %w", err)
		}
		path = exe
	}

	cmd := exec.Command(path, l.Args(p.spec.name, index)...)
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Stdout = l.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = l.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("process launcher: start %s: %w", path, err)
	}

	h := newHandle(p.InstanceName(index, cmd.Process.Pid), index)
	go func() {
		err := cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("%w: %v", ErrInstanceCrashed, exitErr)
		}
		h.finish(err)
	}()
	return h, nil
}
