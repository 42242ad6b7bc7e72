package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core/concurrency"
)

// StopReason says why Consume returned
type StopReason string

const (
	StopHandler  StopReason = "handler"
	StopDeadline StopReason = "deadline"
	StopContext  StopReason = "context"
)

// Handler processes one item taken from a terminal channel.
// Returning stop=true ends Consume; a returned error is logged and
// consumption goes on.
type Handler func(channel string, item any) (stop bool, err error)

// ConsumeOptions configures the orchestrator's own event loop.
type ConsumeOptions struct {
	// Channels are polled round-robin without blocking. Required.
	Channels []concurrency.Channel

	// Handler receives every item. Required.
	Handler Handler

	// Duration bounds the loop; 0 runs until the handler or ctx stops it.
	Duration time.Duration

	// IdleInterval is slept when a full round found nothing. Default: 10ms.
	IdleInterval time.Duration
}

// Consume polls terminal channels and hands every item to the handler until
// the handler asks to stop, the duration elapses or ctx ends.
func (p *Pipeline) Consume(ctx context.Context, opts ConsumeOptions) (StopReason, error) {
	if len(opts.Channels) == 0 || opts.Handler == nil {
		return "", errors.New("consume: channels and handler are required")
	}
	idle := opts.IdleInterval
	if idle <= 0 {
		idle = 10 * time.Millisecond
	}
	var deadline time.Time
	if opts.Duration > 0 {
		deadline = time.Now().Add(opts.Duration)
	}

	for {
		if ctx.Err() != nil {
			return StopContext, nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return StopDeadline, nil
		}

		got := false
		for _, ch := range opts.Channels {
			item, ok, err := ch.TryGet()
			if err != nil {
				p.logger.Warnf("consume %s: %v", ch.Name(), err)
				continue
			}
			if !ok {
				continue
			}
			got = true

			stop, err := opts.Handler(ch.Name(), item)
			if err != nil {
				p.logger.Errorf("consume %s: handler: %v", ch.Name(), err)
			}
			if stop {
				return StopHandler, nil
			}
		}
		if got {
			continue
		}

		t := time.NewTimer(idle)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return StopContext, nil
		}
	}
}
