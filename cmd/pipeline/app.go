package main

import (
	"fmt"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/cluster"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/config"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core/concurrency"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/drone"
)

func droneOptions(cfg config.Config) drone.Options {
	return drone.Options{
		HeartbeatCapacity:  cfg.Channels.Heartbeat,
		TelemetryCapacity:  cfg.Channels.Telemetry,
		CommandCapacity:    cfg.Channels.Command,
		HeartbeatSenders:   cfg.Workers.HeartbeatSenders,
		HeartbeatReceivers: cfg.Workers.HeartbeatReceivers,
		TelemetryWorkers:   cfg.Workers.Telemetry,
		CommandWorkers:     cfg.Workers.Command,
		HeartbeatPeriod:    cfg.Periods.Heartbeat,
		TelemetryPeriod:    cfg.Periods.Telemetry,
		CommandPeriod:      cfg.Periods.Command,
		Target:             drone.Position{X: cfg.Target.X, Y: cfg.Target.Y, Z: cfg.Target.Z},
	}
}

func newDevice(cfg config.Config) *drone.Simulator {
	return drone.NewSimulator(drone.SimulatorConfig{Heartbeats: cfg.Simulator.Heartbeats})
}

// backendHandle is an opened backend plus the coordinator it may own.
type backendHandle struct {
	backend concurrency.Backend
	coord   *cluster.Coordinator
	url     string
}

func (h *backendHandle) Close() error {
	err := h.backend.Close()
	if h.coord != nil {
		h.coord.Shutdown()
	}
	return err
}

// openBackend opens the configured backend. The orchestrator is the owner
// and starts the embedded coordinator; a child connects to url.
func openBackend(cfg config.Config, runID, url string, owner bool, logger core.Logger) (*backendHandle, error) {
	if cfg.Backend == config.BackendLocal {
		return &backendHandle{backend: concurrency.NewLocalBackend()}, nil
	}

	h := &backendHandle{url: url}
	if h.url == "" {
		h.url = cfg.NATS.URL
	}
	if owner && cfg.NATS.Embedded {
		coord, err := cluster.StartCoordinator(cluster.CoordinatorConfig{
			Host:     cfg.NATS.Host,
			Port:     cfg.NATS.Port,
			StoreDir: cfg.NATS.StoreDir,
		})
		if err != nil {
			return nil, err
		}
		h.coord = coord
		h.url = coord.ClientURL()
		logger.Infof("embedded coordinator listening on %s", h.url)
	}

	b, err := cluster.Connect(cluster.Config{
		URL:         h.url,
		RunID:       runID,
		Name:        fmt.Sprintf("%s-%s", cfg.Name, runID),
		Owner:       owner,
		FileStorage: cfg.NATS.FileStorage,
		Logger:      logger,
	})
	if err != nil {
		if h.coord != nil {
			h.coord.Shutdown()
		}
		return nil, err
	}
	h.backend = b
	return h, nil
}
