package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/config"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/drone"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/pipeline"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/worker"
	"github.com/spf13/cobra"
)

// workerFlags identify the instance a child process runs
type workerFlags struct {
	runID   string
	natsURL string
	name    string
	index   int
}

func newWorkerCmd() *cobra.Command {
	var f workerFlags
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run one worker instance (started by the orchestrator)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if f.runID == "" || f.name == "" {
				return errors.New("worker: --run-id and --name are required")
			}
			if cfg.Backend != config.BackendNATS {
				return fmt.Errorf("worker: the %s backend cannot be shared across processes", cfg.Backend)
			}

			logger, err := core.NewLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			backend, err := openBackend(cfg, f.runID, f.natsURL, false, logger)
			if err != nil {
				return fmt.Errorf("worker: connect: %w", err)
			}

			p, err := pipeline.New(pipeline.Config{
				Name:    cfg.Name,
				RunID:   f.runID,
				Backend: backend.backend,
				Logger:  logger,
				PoolOptions: []worker.Option{
					worker.WithLoggerFactory(func(name string) (core.Logger, error) {
						return core.NewWorkerLogger(cfg.Log, name)
					}),
				},
			})
			if err != nil {
				_ = backend.Close()
				return err
			}
			defer p.Close()

			// each child drives its own device connection
			if _, err := drone.Build(p, newDevice(cfg), droneOptions(cfg)); err != nil {
				return err
			}

			err = p.RunWorker(ctx, f.name, f.index)
			if err != nil && !isCanceled(err) {
				return fmt.Errorf("worker %s[%d]: %w", f.name, f.index, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run to join")
	cmd.Flags().StringVar(&f.natsURL, "nats-url", "", "coordinator URL; default nats.url from the config")
	cmd.Flags().StringVar(&f.name, "name", "", "worker type")
	cmd.Flags().IntVar(&f.index, "index", 0, "instance index")
	return cmd
}
