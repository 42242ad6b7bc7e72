package drone

import (
	"fmt"
	"time"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core/concurrency"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/pipeline"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/worker"
)

// Channel names
const (
	ChannelHeartbeat = "heartbeat"
	ChannelTelemetry = "telemetry"
	ChannelCommand   = "command"
)

// Worker type names
const (
	WorkerHeartbeatSender   = "heartbeat_sender"
	WorkerHeartbeatReceiver = "heartbeat_receiver"
	WorkerTelemetry         = "telemetry"
	WorkerCommand           = "command"
)

// Options sizes the drone pipeline.
type Options struct {
	HeartbeatCapacity int
	TelemetryCapacity int
	CommandCapacity   int

	HeartbeatSenders   int
	HeartbeatReceivers int
	TelemetryWorkers   int
	CommandWorkers     int

	HeartbeatPeriod time.Duration
	TelemetryPeriod time.Duration
	CommandPeriod   time.Duration

	Target Position
}

// DefaultOptions returns the stock sizing
func DefaultOptions() Options {
	return Options{
		HeartbeatCapacity:  10,
		TelemetryCapacity:  100,
		CommandCapacity:    50,
		HeartbeatSenders:   1,
		HeartbeatReceivers: 1,
		TelemetryWorkers:   1,
		CommandWorkers:     1,
		HeartbeatPeriod:    time.Second,
		TelemetryPeriod:    100 * time.Millisecond,
		CommandPeriod:      10 * time.Millisecond,
		Target:             Position{X: 10, Y: 20, Z: 30},
	}
}

// Topology holds the channels of a built pipeline.
type Topology struct {
	Heartbeat concurrency.Channel
	Telemetry concurrency.Channel
	Command   concurrency.Channel
}

// Terminal returns the channels the orchestrator consumes, last stage first.
func (t *Topology) Terminal() []concurrency.Channel {
	return []concurrency.Channel{t.Command, t.Telemetry, t.Heartbeat}
}

// Build creates the drone channels and worker types on p. Every process of
// a run calls Build with the same options so that channel and worker names
// line up. A worker type that fails validation is skipped by the pipeline;
// only channel creation errors are returned.
func Build(p *pipeline.Pipeline, device Device, opts Options) (*Topology, error) {
	t := &Topology{}
	var err error
	if t.Heartbeat, err = p.NewChannel(ChannelHeartbeat, opts.HeartbeatCapacity, core.JSONCodec[string]{}); err != nil {
		return nil, err
	}
	if t.Telemetry, err = p.NewChannel(ChannelTelemetry, opts.TelemetryCapacity, core.JSONCodec[TelemetryData]{}); err != nil {
		return nil, err
	}
	if t.Command, err = p.NewChannel(ChannelCommand, opts.CommandCapacity, core.JSONCodec[string]{}); err != nil {
		return nil, err
	}

	hb := HeartbeatArgs{Device: device, Period: opts.HeartbeatPeriod}
	specs := []worker.SpecConfig{
		{Name: WorkerHeartbeatSender, Count: opts.HeartbeatSenders, Entry: HeartbeatSenderEntry, Args: hb},
		{
			Name: WorkerHeartbeatReceiver, Count: opts.HeartbeatReceivers, Entry: HeartbeatReceiverEntry, Args: hb,
			Outputs: []concurrency.Channel{t.Heartbeat},
		},
		{
			Name: WorkerTelemetry, Count: opts.TelemetryWorkers, Entry: TelemetryEntry,
			Args:    TelemetryArgs{Device: device, Period: opts.TelemetryPeriod},
			Outputs: []concurrency.Channel{t.Telemetry},
		},
		{
			Name: WorkerCommand, Count: opts.CommandWorkers, Entry: CommandEntry,
			Args:    CommandArgs{Device: device, Target: opts.Target, Period: opts.CommandPeriod},
			Inputs:  []concurrency.Channel{t.Telemetry},
			Outputs: []concurrency.Channel{t.Command},
		},
	}
	for _, cfg := range specs {
		// skipped types are recorded by the pipeline
		_, _ = p.AddWorker(cfg)
	}
	return t, nil
}

// Monitor returns a Consume handler that logs every item and stops once
// the heartbeat receiver reports the link as lost.
func Monitor(logger core.Logger) pipeline.Handler {
	return func(channel string, item any) (bool, error) {
		if s, ok := item.(string); ok && s == StateDisconnected {
			logger.Warn("device disconnected")
			return true, nil
		}
		logger.Infof("received from %s: %v", channel, item)
		return false, nil
	}
}

// Describe returns a one-line summary of opts for logs
func (o Options) Describe() string {
	return fmt.Sprintf("capacities hb=%d tel=%d cmd=%d, workers %d/%d/%d/%d, target %+v",
		o.HeartbeatCapacity, o.TelemetryCapacity, o.CommandCapacity,
		o.HeartbeatSenders, o.HeartbeatReceivers, o.TelemetryWorkers, o.CommandWorkers, o.Target)
}
