package main

import (
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pipeline",
		Short: "Multi-process drone pipeline orchestrator",
		Long: `pipeline wires heartbeat, telemetry and command workers through bounded
channels, runs them as goroutines or child processes, and shuts them down by
requesting exit, draining channels from last to first and joining every worker.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (YAML or JSON); "+config.EnvPrefix+"_* variables override it")

	root.AddCommand(newRunCmd(), newWorkerCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, string, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, "", err
	}
	cfg, err := config.LoadFile(path)
	return cfg, path, err
}
