package prometheus

import (
	"context"
	"errors"
	"time"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core/concurrency"
)

// instrumentedChannel records every operation of the wrapped channel
type instrumentedChannel struct {
	concurrency.Channel
	m *Metrics
}

// InstrumentChannel wraps ch so that its operations are recorded in m.
// It fits pipeline.Config.WrapChannel.
func InstrumentChannel(m *Metrics) func(concurrency.Channel) concurrency.Channel {
	return func(ch concurrency.Channel) concurrency.Channel {
		return &instrumentedChannel{Channel: ch, m: m}
	}
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, concurrency.ErrChannelFull):
		return "full"
	case errors.Is(err, concurrency.ErrChannelClosed):
		return "closed"
	default:
		return "error"
	}
}

func (c *instrumentedChannel) depth() {
	c.m.ChannelDepth.WithLabelValues(c.Name()).Set(float64(c.Channel.Len()))
}

func (c *instrumentedChannel) Put(ctx context.Context, item any) error {
	start := time.Now()
	err := c.Channel.Put(ctx, item)
	c.m.ChannelPutWait.WithLabelValues(c.Name()).Observe(time.Since(start).Seconds())
	c.m.ChannelPuts.WithLabelValues(c.Name(), result(err)).Inc()
	c.depth()
	return err
}

func (c *instrumentedChannel) TryPut(item any) error {
	err := c.Channel.TryPut(item)
	c.m.ChannelPuts.WithLabelValues(c.Name(), result(err)).Inc()
	c.depth()
	return err
}

func (c *instrumentedChannel) Get(ctx context.Context) (any, error) {
	item, err := c.Channel.Get(ctx)
	c.m.ChannelGets.WithLabelValues(c.Name(), result(err)).Inc()
	c.depth()
	return item, err
}

func (c *instrumentedChannel) TryGet() (any, bool, error) {
	item, ok, err := c.Channel.TryGet()
	r := result(err)
	if err == nil && !ok {
		r = "empty"
	}
	c.m.ChannelGets.WithLabelValues(c.Name(), r).Inc()
	if ok {
		c.depth()
	}
	return item, ok, err
}

func (c *instrumentedChannel) Drain(ctx context.Context) ([]any, error) {
	items, err := c.Channel.Drain(ctx)
	c.m.ChannelDrained.WithLabelValues(c.Name()).Add(float64(len(items)))
	c.depth()
	return items, err
}
