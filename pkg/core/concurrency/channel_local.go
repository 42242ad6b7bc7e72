package concurrency

import (
	"context"
	"sync"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
)

// localChannel implements Channel for participants sharing one address space.
// Items live in a slice guarded by mu; notEmpty and notFull carry wakeups
// (buffer 1) and are re-signalled after every state change so that no
// waiter is left parked while its condition holds.
type localChannel struct {
	name     string
	capacity int

	mu    sync.Mutex
	items []any

	notEmpty chan struct{}
	notFull  chan struct{}
}

// NewChannel creates an in-process channel.
// capacity <= 0 creates an unbounded channel.
func NewChannel(name string, capacity int) (Channel, error) {
	if err := core.ValidateName(name); err != nil {
		return nil, err
	}
	if capacity < 0 {
		capacity = 0
	}

	c := &localChannel{
		name:     name,
		capacity: capacity,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
	}
	if capacity > 0 {
		c.items = make([]any, 0, capacity)
	}
	return c, nil
}

func (c *localChannel) Name() string {
	return c.name
}

func (c *localChannel) Cap() int {
	return c.capacity
}

func (c *localChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Put implements Channel interface
func (c *localChannel) Put(ctx context.Context, item any) error {
	if item == nil {
		return ErrNilItem
	}

	for {
		c.mu.Lock()
		if c.hasSpaceLocked() {
			c.items = append(c.items, item)
			c.signalLocked()
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		select {
		case <-c.notFull:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// TryPut implements Channel interface
func (c *localChannel) TryPut(item any) error {
	if item == nil {
		return ErrNilItem
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasSpaceLocked() {
		return ErrChannelFull
	}
	c.items = append(c.items, item)
	c.signalLocked()
	return nil
}

// Get implements Channel interface
func (c *localChannel) Get(ctx context.Context) (any, error) {
	for {
		item, ok, _ := c.TryGet()
		if ok {
			return item, nil
		}

		select {
		case <-c.notEmpty:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryGet implements Channel interface
func (c *localChannel) TryGet() (any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) == 0 {
		return nil, false, nil
	}

	item := c.items[0]
	c.items[0] = nil
	c.items = c.items[1:]
	c.signalLocked()
	return item, true, nil
}

// Drain implements Channel interface
func (c *localChannel) Drain(ctx context.Context) ([]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := c.items
	if c.capacity > 0 {
		c.items = make([]any, 0, c.capacity)
	} else {
		c.items = nil
	}
	c.signalLocked()
	if items == nil {
		items = []any{}
	}
	return items, nil
}

func (c *localChannel) hasSpaceLocked() bool {
	return c.capacity <= 0 || len(c.items) < c.capacity
}

// signalLocked wakes one waiter per condition that currently holds.
func (c *localChannel) signalLocked() {
	if len(c.items) > 0 {
		select {
		case c.notEmpty <- struct{}{}:
		default:
		}
	}
	if c.hasSpaceLocked() {
		select {
		case c.notFull <- struct{}{}:
		default:
		}
	}
}
