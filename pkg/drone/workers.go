package drone

import (
	"context"
	"time"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/worker"
)

// HeartbeatArgs configures the heartbeat workers
type HeartbeatArgs struct {
	Device Device
	Period time.Duration
}

// TelemetryArgs configures the telemetry worker
type TelemetryArgs struct {
	Device Device
	// Period is slept between receive attempts.
	Period time.Duration
}

// CommandArgs configures the command worker
type CommandArgs struct {
	Device Device
	Target Position
	// Period is slept when no telemetry is waiting.
	Period time.Duration
}

// Worker entry points
var (
	HeartbeatSenderEntry   = worker.NewEntry("heartbeat_sender", runHeartbeatSender)
	HeartbeatReceiverEntry = worker.NewEntry("heartbeat_receiver", runHeartbeatReceiver)
	TelemetryEntry         = worker.NewEntry("telemetry", runTelemetry)
	CommandEntry           = worker.NewEntry("command", runCommand)
)

func runHeartbeatSender(ctx context.Context, args HeartbeatArgs, env *worker.Env) error {
	sender, err := NewHeartbeatSender(args.Device)
	if err != nil {
		return err
	}
	env.Logger.Info("heartbeat sender started")

	return env.Loop(ctx, func(ctx context.Context) error {
		if err := sender.Run(); err != nil {
			env.Logger.Errorf("send heartbeat: %v", err)
		} else {
			env.Logger.Debug("heartbeat sent")
		}
		env.Sleep(ctx, args.Period)
		return nil
	})
}

func runHeartbeatReceiver(ctx context.Context, args HeartbeatArgs, env *worker.Env) error {
	receiver, err := NewHeartbeatReceiver(args.Device)
	if err != nil {
		return err
	}
	env.Logger.Info("heartbeat receiver started")

	return env.Loop(ctx, func(ctx context.Context) error {
		state := receiver.Run()
		if state == StateDisconnected {
			env.Logger.Warnf("lost connection to device after %d missed heartbeats", receiver.Missed())
		}
		env.Logger.Debugf("current state: %s", state)
		if err := env.Emit(ctx, 0, state); err != nil {
			return err
		}
		env.Sleep(ctx, args.Period)
		return nil
	})
}

func runTelemetry(ctx context.Context, args TelemetryArgs, env *worker.Env) error {
	telemetry, err := NewTelemetry(args.Device)
	if err != nil {
		return err
	}
	env.Logger.Info("telemetry worker started")

	return env.Loop(ctx, func(ctx context.Context) error {
		data, ok := telemetry.Run()
		if ok {
			if err := env.Emit(ctx, 0, data); err != nil {
				return err
			}
			env.Logger.Debugf("telemetry queued: %s", data)
		}
		env.Sleep(ctx, args.Period)
		return nil
	})
}

func runCommand(ctx context.Context, args CommandArgs, env *worker.Env) error {
	commander, err := NewCommander(args.Device, args.Target, env.Logger)
	if err != nil {
		return err
	}
	env.Logger.Infof("command worker started, target %+v", args.Target)

	return env.Loop(ctx, func(ctx context.Context) error {
		item, ok, err := env.Poll(0)
		if err != nil {
			return err
		}
		if !ok {
			env.Sleep(ctx, args.Period)
			return nil
		}
		data, ok := item.(TelemetryData)
		if !ok {
			env.Logger.Warnf("unexpected telemetry item %T", item)
			return nil
		}

		d, err := commander.Run(data)
		if err != nil {
			env.Logger.Errorf("command: %v", err)
		}
		for _, report := range d.Reports() {
			if err := env.Emit(ctx, 0, report); err != nil {
				return err
			}
		}
		return nil
	})
}
