package cluster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core/concurrency"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"
)

// jsChannel implements concurrency.Channel on a JetStream work-queue stream.
// MaxMsgs with DiscardNew gives the capacity bound; every process pulls
// through the same durable consumer and acks on receipt, which removes the
// message from the stream.
type jsChannel struct {
	b        *Backend
	name     string
	capacity int
	codec    core.Codec
	stream   string
	subject  string
	limiter  *rate.Limiter

	mu  sync.Mutex
	sub *nats.Subscription
}

func newJSChannel(b *Backend, name string, capacity int, codec core.Codec) *jsChannel {
	return &jsChannel{
		b:        b,
		name:     name,
		capacity: capacity,
		codec:    codec,
		stream:   streamName(b.cfg.RunID, name),
		subject:  subjectName(b.cfg.RunID, name),
		limiter:  rate.NewLimiter(rate.Every(b.cfg.RetryInterval), 1),
	}
}

func (c *jsChannel) Name() string {
	return c.name
}

func (c *jsChannel) Cap() int {
	return c.capacity
}

// Len implements concurrency.Channel interface.
// Messages fetched but not yet acked by another process still count.
func (c *jsChannel) Len() int {
	info, err := c.b.js.StreamInfo(c.stream)
	if err != nil {
		c.b.logger.Warnf("channel %s: stream info: %v", c.name, err)
		return 0
	}
	return int(info.State.Msgs)
}

// Put implements concurrency.Channel interface
func (c *jsChannel) Put(ctx context.Context, item any) error {
	data, err := c.encode(item)
	if err != nil {
		return err
	}

	for {
		full, err := c.publish(data)
		if err == nil {
			return nil
		}
		if !full {
			return err
		}
		// Backpressure: wait for a consumer to free space.
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
}

// TryPut implements concurrency.Channel interface
func (c *jsChannel) TryPut(item any) error {
	data, err := c.encode(item)
	if err != nil {
		return err
	}

	full, err := c.publish(data)
	if full {
		return concurrency.ErrChannelFull
	}
	return err
}

// Get implements concurrency.Channel interface
func (c *jsChannel) Get(ctx context.Context) (any, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msgs, err := c.fetch(1, c.b.cfg.FetchWait)
		if errors.Is(err, concurrency.ErrChannelClosed) || errors.Is(err, nats.ErrConnectionClosed) {
			return nil, err
		}
		if err != nil {
			c.b.logger.Debugf("channel %s: %v", c.name, err)
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			continue
		}
		if len(msgs) > 0 {
			return c.receive(msgs[0])
		}
	}
}

// TryGet implements concurrency.Channel interface.
// An empty poll costs one short pull request (PollWait).
func (c *jsChannel) TryGet() (any, bool, error) {
	msgs, err := c.fetch(1, c.b.cfg.PollWait)
	if err != nil {
		return nil, false, err
	}
	if len(msgs) == 0 {
		return nil, false, nil
	}

	item, err := c.receive(msgs[0])
	if err != nil {
		return nil, false, err
	}
	return item, true, nil
}

// Drain implements concurrency.Channel interface.
// It pulls until the stream reports no queued messages or a poll comes back
// empty; items that fail to decode are logged and dropped.
func (c *jsChannel) Drain(ctx context.Context) ([]any, error) {
	items := []any{}
	for {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		remaining := c.Len()
		if remaining == 0 {
			return items, nil
		}
		if remaining > 256 {
			remaining = 256
		}

		msgs, err := c.fetch(remaining, c.b.cfg.PollWait)
		if err != nil {
			return items, err
		}
		if len(msgs) == 0 {
			return items, nil
		}
		for _, m := range msgs {
			item, err := c.receive(m)
			if err != nil {
				c.b.logger.Warnf("channel %s: drain: %v", c.name, err)
				continue
			}
			items = append(items, item)
		}
	}
}

func (c *jsChannel) encode(item any) ([]byte, error) {
	if item == nil {
		return nil, concurrency.ErrNilItem
	}
	if c.b.isClosed() {
		return nil, concurrency.ErrChannelClosed
	}
	data, err := c.codec.Encode(item)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", c.name, err)
	}
	return data, nil
}

// publish reports full=true when the stream rejected the message for
// being at capacity.
func (c *jsChannel) publish(data []byte) (full bool, err error) {
	_, err = c.b.js.Publish(c.subject, data)
	if err == nil {
		return false, nil
	}
	if c.capacity > 0 && isMaxMsgs(err) {
		return true, err
	}
	return false, fmt.Errorf("channel %s: publish: %w", c.name, err)
}

// fetch returns no messages and a nil error when the poll timed out.
func (c *jsChannel) fetch(batch int, wait time.Duration) ([]*nats.Msg, error) {
	sub, err := c.subscription()
	if err != nil {
		return nil, err
	}
	msgs, err := sub.Fetch(batch, nats.MaxWait(wait))
	if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("channel %s: fetch: %w", c.name, err)
	}
	return msgs, nil
}

func (c *jsChannel) receive(m *nats.Msg) (any, error) {
	if err := m.AckSync(); err != nil {
		return nil, fmt.Errorf("channel %s: ack: %w", c.name, err)
	}
	item, err := c.codec.Decode(m.Data)
	if err != nil {
		return nil, fmt.Errorf("channel %s: decode: %w", c.name, err)
	}
	return item, nil
}

func (c *jsChannel) subscription() (*nats.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		return c.sub, nil
	}
	if c.b.isClosed() {
		return nil, concurrency.ErrChannelClosed
	}
	sub, err := c.b.js.PullSubscribe("", durableName, nats.Bind(c.stream, durableName))
	if err != nil {
		return nil, fmt.Errorf("channel %s: subscribe: %w", c.name, err)
	}
	c.sub = sub
	return sub, nil
}

func (c *jsChannel) unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		// Bound subscriptions leave the shared consumer in place.
		_ = c.sub.Unsubscribe()
		c.sub = nil
	}
}

func isMaxMsgs(err error) bool {
	var apiErr *nats.APIError
	if errors.As(err, &apiErr) {
		return strings.Contains(apiErr.Description, "maximum messages")
	}
	return strings.Contains(err.Error(), "maximum messages")
}
