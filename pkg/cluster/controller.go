package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core/concurrency"
	"github.com/nats-io/nats.go"
)

const (
	keyExit   = "exit"
	keyPaused = "paused"

	valueOn  = "1"
	valueOff = "0"

	initialSyncTimeout = 5 * time.Second
)

// kvController implements concurrency.Controller on a JetStream key-value
// bucket. A watcher mirrors the bucket into a local controller, so reads
// and CheckPause never hit the network. Writes go to the bucket and are
// applied locally at once; the watcher skips revisions older than the
// last one applied.
type kvController struct {
	kv      nats.KeyValue
	local   *concurrency.LocalController
	watcher nats.KeyWatcher
	logger  core.Logger

	mu      sync.Mutex
	applied map[string]uint64

	done chan struct{}
}

func newKVController(kv nats.KeyValue, logger core.Logger) (*kvController, error) {
	w, err := kv.WatchAll()
	if err != nil {
		return nil, fmt.Errorf("watch controller bucket: %w", err)
	}

	c := &kvController{
		kv:      kv,
		local:   concurrency.NewController(),
		watcher: w,
		logger:  logger,
		applied: make(map[string]uint64),
		done:    make(chan struct{}),
	}

	synced := make(chan struct{})
	go c.watch(synced)

	select {
	case <-synced:
	case <-time.After(initialSyncTimeout):
		_ = w.Stop()
		return nil, fmt.Errorf("controller bucket: initial sync timed out after %s", initialSyncTimeout)
	}
	return c, nil
}

// watch applies bucket updates until the watcher stops. The nil entry
// marks the end of the initial values.
func (c *kvController) watch(synced chan struct{}) {
	defer close(c.done)

	for entry := range c.watcher.Updates() {
		if entry == nil {
			close(synced)
			continue
		}
		if entry.Operation() != nats.KeyValuePut {
			continue
		}
		c.apply(entry.Key(), string(entry.Value()), entry.Revision())
	}
}

func (c *kvController) apply(key, value string, revision uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if revision <= c.applied[key] {
		return
	}
	c.applied[key] = revision

	switch key {
	case keyExit:
		if value == valueOn {
			_ = c.local.RequestExit()
		}
	case keyPaused:
		c.local.SetPaused(value == valueOn)
	default:
		c.logger.Warnf("controller: unknown key %q", key)
	}
}

func (c *kvController) put(key, value string) error {
	rev, err := c.kv.Put(key, []byte(value))
	if err != nil {
		return fmt.Errorf("controller: put %s: %w", key, err)
	}
	c.apply(key, value, rev)
	return nil
}

// RequestExit implements concurrency.Controller interface
func (c *kvController) RequestExit() error {
	if c.local.IsExitRequested() {
		return nil
	}
	return c.put(keyExit, valueOn)
}

// IsExitRequested implements concurrency.Controller interface
func (c *kvController) IsExitRequested() bool {
	return c.local.IsExitRequested()
}

// Pause implements concurrency.Controller interface
func (c *kvController) Pause() error {
	return c.put(keyPaused, valueOn)
}

// Resume implements concurrency.Controller interface
func (c *kvController) Resume() error {
	return c.put(keyPaused, valueOff)
}

// IsPaused implements concurrency.Controller interface
func (c *kvController) IsPaused() bool {
	return c.local.IsPaused()
}

// CheckPause implements concurrency.Controller interface
func (c *kvController) CheckPause(ctx context.Context) error {
	return c.local.CheckPause(ctx)
}

func (c *kvController) stop() {
	_ = c.watcher.Stop()
	select {
	case <-c.done:
	case <-time.After(time.Second):
		c.logger.Warn("controller: watcher did not stop")
	}
}
