package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/config"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/drone"
	metrics "github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/observability/prometheus"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/observability/otel"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/pipeline"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/web"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/worker"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the drone pipeline until the device disconnects or the duration elapses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if d, _ := cmd.Flags().GetDuration("duration"); d > 0 {
				cfg.Duration = d
			}

			logger, err := core.NewLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := run(ctx, cfg, path, logger)
			if err != nil {
				return err
			}
			logger.Infof("stopped (%s) after draining %v, joined %d worker type(s) in %s",
				res.Reason, res.Report.Drained, res.Report.Joined, res.Report.Duration)
			return nil
		},
	}
	cmd.Flags().Duration("duration", 0, "override the configured run duration")
	return cmd
}

// result is what one orchestrator run produced
type result struct {
	RunID    string
	Reason   pipeline.StopReason
	Report   pipeline.ShutdownReport
	Commands []string
}

// run executes one orchestrator run: wire, start, consume, shut down.
// configPath is handed to child processes so they rebuild the same topology.
func run(ctx context.Context, cfg config.Config, configPath string, logger core.Logger) (result, error) {
	res := result{RunID: cfg.RunID}
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}

	if err := otel.Initialize(ctx, otel.Config{
		ServiceName:    cfg.Name,
		ServiceVersion: version,
		Environment:    os.Getenv("ENVIRONMENT"),
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRatio,
	}); err != nil {
		logger.Warnf("tracing disabled: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("flush traces: %v", err)
		}
	}()

	backend, err := openBackend(cfg, res.RunID, "", true, logger)
	if err != nil {
		return res, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	poolOpts := []worker.Option{
		worker.WithObserver(metrics.NewWorkerObserver(m)),
		worker.WithLoggerFactory(func(name string) (core.Logger, error) {
			return core.NewWorkerLogger(cfg.Log, name)
		}),
	}
	if cfg.Processes {
		poolOpts = append(poolOpts, worker.WithLauncher(worker.ProcessLauncher{
			Args: childArgs(configPath, res.RunID, backend.url),
		}))
	}

	p, err := pipeline.New(pipeline.Config{
		Name:         cfg.Name,
		RunID:        res.RunID,
		Backend:      backend.backend,
		Logger:       logger,
		PoolOptions:  poolOpts,
		WrapChannel:  metrics.InstrumentChannel(m),
		OnTransition: metrics.StateHook(m, cfg.Name),
		Tracer:       otel.Tracer("pipeline"),
	})
	if err != nil {
		_ = backend.Close()
		return res, err
	}
	// closes the backend and any embedded coordinator
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warnf("close backend: %v", err)
		}
	}()

	opts := droneOptions(cfg)
	topo, err := drone.Build(p, newDevice(cfg), opts)
	if err != nil {
		return res, err
	}
	logger.Infof("drone pipeline: %s", opts.Describe())
	for name, reason := range p.Skipped() {
		logger.Warnf("worker type %s skipped: %v", name, reason)
	}

	if cfg.Metrics.Enabled {
		srvCfg := web.DefaultConfig(cfg.Metrics.Addr)
		srvCfg.Logger = logger
		srvCfg.Metrics = m
		srvCfg.Gatherer = registry
		srv := web.NewServer(p, srvCfg)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				logger.Errorf("status server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// workers stop through the controller, not through ctx
	if err := p.Start(context.WithoutCancel(ctx)); err != nil {
		logger.Errorf("start: %v", err)
	}

	monitor := drone.Monitor(logger)
	res.Reason, err = p.Consume(ctx, pipeline.ConsumeOptions{
		Channels: topo.Terminal(),
		Handler: func(channel string, item any) (bool, error) {
			if channel == drone.ChannelCommand {
				if s, ok := item.(string); ok {
					res.Commands = append(res.Commands, s)
				}
			}
			return monitor(channel, item)
		},
		Duration: cfg.Duration,
	})
	if err != nil {
		return res, err
	}
	logger.Infof("main loop stopped: %s", res.Reason)

	// shutdown must finish even when ctx was cancelled by a signal
	res.Report, err = p.Shutdown(context.WithoutCancel(ctx))
	m.RecordShutdown(res.Report.Duration)
	if err != nil {
		return res, fmt.Errorf("shutdown: %w", err)
	}
	return res, nil
}

// childArgs builds the arguments of a worker child process
func childArgs(configPath, runID, natsURL string) func(spec string, index int) []string {
	return func(spec string, index int) []string {
		args := []string{"worker",
			"--run-id", runID,
			"--nats-url", natsURL,
			"--name", spec,
			"--index", strconv.Itoa(index),
		}
		if configPath != "" {
			args = append(args, "--config", configPath)
		}
		return args
	}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
