package worker

import "errors"

// ErrInstanceCrashed marks an instance that terminated abnormally: a
// panicking goroutine or a child process with a non-zero exit status.
var ErrInstanceCrashed = errors.New("worker instance crashed")

// Handle tracks one launched instance.
type Handle struct {
	id    string
	index int
	done  chan struct{}
	err   error
}

func newHandle(id string, index int) *Handle {
	return &Handle{id: id, index: index, done: make(chan struct{})}
}

// finish records the result and releases waiters. Called exactly once.
func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}

// ID returns the instance name
func (h *Handle) ID() string { return h.id }

// Index returns the instance index within its spec
func (h *Handle) Index() int { return h.index }

// Done returns a channel closed when the instance has terminated
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the instance has terminated and returns its error.
// Safe to call more than once.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Alive reports whether the instance is still running
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
