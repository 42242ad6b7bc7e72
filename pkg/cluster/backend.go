package cluster

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core/concurrency"
	"github.com/nats-io/nats.go"
)

// Config configures a NATS JetStream backend.
type Config struct {
	// URL is the NATS server URL, e.g. "nats://127.0.0.1:4222".
	URL string

	// RunID scopes every stream and bucket to one pipeline run. Required.
	// Every process of the run must use the same value.
	RunID string

	// Name is an optional NATS connection name.
	Name string

	// Owner marks the orchestrator side. Closing an owner backend deletes
	// the streams and bucket of the run.
	Owner bool

	// FileStorage keeps the streams and the controller bucket on disk.
	// Default: memory.
	FileStorage bool

	// RetryInterval paces Put retries while a channel is full. Default: 20ms.
	RetryInterval time.Duration

	// FetchWait bounds a single pull request inside Get. Default: 1s.
	FetchWait time.Duration

	// PollWait bounds the pull request of TryGet and Drain. Default: 50ms.
	PollWait time.Duration

	// Logger receives backend diagnostics. Default: core.NewDefaultLogger().
	Logger core.Logger
}

// storage maps FileStorage onto the JetStream storage type. The zero
// nats.StorageType is FileStorage, so the choice cannot live in the enum.
func (c Config) storage() nats.StorageType {
	if c.FileStorage {
		return nats.FileStorage
	}
	return nats.MemoryStorage
}

// Backend implements concurrency.Backend on NATS JetStream.
// Channels are work-queue streams; the controller is a key-value bucket.
type Backend struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	cfg    Config
	logger core.Logger

	mu          sync.Mutex
	closed      bool
	channels    []*jsChannel
	controllers []*kvController
}

// Connect connects to a coordinator and returns a backend for cfg.RunID.
func Connect(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.RunID) == "" {
		return nil, &core.Error{Code: core.CodeInvalidArgument, Message: "run id is required"}
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 20 * time.Millisecond
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = time.Second
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = 50 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	nc, err := nats.Connect(cfg.URL, func(o *nats.Options) error {
		if cfg.Name != "" {
			o.Name = cfg.Name
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.URL, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &Backend{
		nc:     nc,
		js:     js,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// RunID returns the run this backend is scoped to.
func (b *Backend) RunID() string {
	return b.cfg.RunID
}

// NewChannel implements concurrency.Backend interface.
// The stream is created on first use and bound to by every later caller
// of the same run, so each process can rebuild the same topology.
func (b *Backend) NewChannel(name string, capacity int, codec core.Codec) (concurrency.Channel, error) {
	if err := core.ValidateName(name); err != nil {
		return nil, err
	}
	if codec == nil {
		return nil, &core.Error{Code: core.CodeInvalidArgument, Message: fmt.Sprintf("channel %s: codec is required", name)}
	}
	if capacity < 0 {
		capacity = 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, concurrency.ErrChannelClosed
	}

	stream := streamName(b.cfg.RunID, name)
	maxMsgs := int64(-1)
	if capacity > 0 {
		maxMsgs = int64(capacity)
	}

	// Ensure stream exists (idempotent).
	if _, err := b.js.StreamInfo(stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return nil, fmt.Errorf("channel %s: %w", name, err)
		}
		if _, err := b.js.AddStream(&nats.StreamConfig{
			Name:      stream,
			Subjects:  []string{subjectName(b.cfg.RunID, name)},
			Storage:   b.cfg.storage(),
			Retention: nats.WorkQueuePolicy,
			Discard:   nats.DiscardNew,
			MaxMsgs:   maxMsgs,
			Replicas:  1,
		}); err != nil {
			return nil, fmt.Errorf("channel %s: create stream: %w", name, err)
		}
	}

	// One durable pull consumer per stream, shared by every process.
	if _, err := b.js.ConsumerInfo(stream, durableName); err != nil {
		if !errors.Is(err, nats.ErrConsumerNotFound) {
			return nil, fmt.Errorf("channel %s: %w", name, err)
		}
		if _, err := b.js.AddConsumer(stream, &nats.ConsumerConfig{
			Durable:   durableName,
			AckPolicy: nats.AckExplicitPolicy,
		}); err != nil {
			return nil, fmt.Errorf("channel %s: create consumer: %w", name, err)
		}
	}

	ch := newJSChannel(b, name, capacity, codec)
	b.channels = append(b.channels, ch)
	return ch, nil
}

// NewController implements concurrency.Backend interface.
// Every process of a run shares the same controller bucket.
func (b *Backend) NewController() (concurrency.Controller, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, concurrency.ErrChannelClosed
	}

	bucket := bucketName(b.cfg.RunID)
	kv, err := b.js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = b.js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  bucket,
			Storage: b.cfg.storage(),
			History: 1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("controller bucket %s: %w", bucket, err)
	}

	c, err := newKVController(kv, b.logger)
	if err != nil {
		return nil, err
	}
	b.controllers = append(b.controllers, c)
	return c, nil
}

// Close implements concurrency.Backend interface.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	channels := b.channels
	controllers := b.controllers
	b.channels = nil
	b.controllers = nil
	b.mu.Unlock()

	for _, c := range controllers {
		c.stop()
	}
	for _, ch := range channels {
		ch.unsubscribe()
	}

	if b.cfg.Owner {
		for _, ch := range channels {
			if err := b.js.DeleteStream(ch.stream); err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
				b.logger.Warnf("delete stream %s: %v", ch.stream, err)
			}
		}
		if len(controllers) > 0 {
			if err := b.js.DeleteKeyValue(bucketName(b.cfg.RunID)); err != nil && !errors.Is(err, nats.ErrBucketNotFound) {
				b.logger.Warnf("delete bucket: %v", err)
			}
		}
	}

	_ = b.nc.Drain()
	b.nc.Close()
	return nil
}

func (b *Backend) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
