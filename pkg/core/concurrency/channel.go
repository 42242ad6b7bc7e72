package concurrency

import (
	"context"
	"errors"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
)

var (
	// ErrChannelFull is returned by TryPut when the channel is at capacity
	ErrChannelFull = errors.New("channel is full")

	// ErrChannelClosed is returned once the backend owning the channel has been closed
	ErrChannelClosed = errors.New("channel is closed")

	// ErrNilItem is returned when putting a nil item. Nil is reserved so that
	// an empty TryGet can never be mistaken for a payload.
	ErrNilItem = errors.New("channel item cannot be nil")
)

// Channel is a bounded multi-producer/multi-consumer FIFO queue.
// Every synchronization detail lives behind this interface; worker code
// never sees a lock or a Go chan.
type Channel interface {
	// Name returns the channel name
	Name() string

	// Put appends item, blocking while the channel is full.
	// Unbounded channels (Cap() <= 0) never block.
	// ctx only lets the caller give up; shutdown never cancels it.
	Put(ctx context.Context, item any) error

	// TryPut appends item without blocking.
	// Returns ErrChannelFull if the channel is at capacity.
	TryPut(item any) error

	// Get removes and returns the oldest item, blocking until one exists
	Get(ctx context.Context) (any, error)

	// TryGet removes the oldest item without blocking.
	// Returns (nil, false, nil) when the channel is empty.
	TryGet() (any, bool, error)

	// Drain removes and returns every queued item in FIFO order without
	// blocking. Puts racing with Drain may or may not be captured.
	Drain(ctx context.Context) ([]any, error)

	// Len returns the current number of queued items
	Len() int

	// Cap returns the capacity; <= 0 means unbounded
	Cap() int
}

// Backend creates the shared objects of one pipeline run.
// Channels and Controllers from the same Backend are visible to every
// participant of the run; Close releases them.
type Backend interface {
	// NewChannel creates a channel. codec is used when items have to cross
	// a process boundary and may be nil for in-process backends.
	NewChannel(name string, capacity int, codec core.Codec) (Channel, error)

	// NewController creates a fresh controller
	NewController() (Controller, error)

	// Close releases everything the backend created
	Close() error
}
