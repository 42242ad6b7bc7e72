package config

import (
	"fmt"
	"time"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
)

// EnvPrefix prefixes every environment override, e.g. PIPELINE_NATS_URL.
const EnvPrefix = "PIPELINE"

// Backend names
const (
	BackendLocal = "local"
	BackendNATS  = "nats"
)

// Config is the orchestrator configuration.
type Config struct {
	Name string `yaml:"name" json:"name"`

	// Backend selects in-process channels ("local") or JetStream ("nats").
	Backend string `yaml:"backend" json:"backend"`

	// RunID names the run; empty generates one.
	RunID string `yaml:"run_id" json:"run_id"`

	// Processes runs every worker instance as a child process. Requires the
	// nats backend.
	Processes bool `yaml:"processes" json:"processes"`

	// Duration bounds the main loop.
	Duration time.Duration `yaml:"duration" json:"duration"`

	NATS      NATSConfig      `yaml:"nats" json:"nats"`
	Channels  ChannelsConfig  `yaml:"channels" json:"channels"`
	Workers   WorkersConfig   `yaml:"workers" json:"workers"`
	Periods   PeriodsConfig   `yaml:"periods" json:"periods"`
	Target    TargetConfig    `yaml:"target" json:"target"`
	Simulator SimulatorConfig `yaml:"simulator" json:"simulator"`
	Log       core.LogConfig  `yaml:"log" json:"log"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing" json:"tracing"`
}

// NATSConfig locates the coordinator.
type NATSConfig struct {
	// URL of an external server. Ignored when Embedded is set.
	URL string `yaml:"url" json:"url"`

	// Embedded starts an in-process server owned by the orchestrator.
	Embedded bool   `yaml:"embedded" json:"embedded"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	StoreDir string `yaml:"store_dir" json:"store_dir"`

	// FileStorage keeps channels and the controller on disk instead of memory.
	FileStorage bool `yaml:"file_storage" json:"file_storage"`
}

// ChannelsConfig holds channel capacities; <= 0 is unbounded.
type ChannelsConfig struct {
	Heartbeat int `yaml:"heartbeat" json:"heartbeat"`
	Telemetry int `yaml:"telemetry" json:"telemetry"`
	Command   int `yaml:"command" json:"command"`
}

// WorkersConfig holds instance counts per worker type.
type WorkersConfig struct {
	HeartbeatSenders   int `yaml:"heartbeat_senders" json:"heartbeat_senders"`
	HeartbeatReceivers int `yaml:"heartbeat_receivers" json:"heartbeat_receivers"`
	Telemetry          int `yaml:"telemetry" json:"telemetry"`
	Command            int `yaml:"command" json:"command"`
}

// PeriodsConfig holds worker pacing.
type PeriodsConfig struct {
	Heartbeat time.Duration `yaml:"heartbeat" json:"heartbeat"`
	Telemetry time.Duration `yaml:"telemetry" json:"telemetry"`
	Command   time.Duration `yaml:"command" json:"command"`
}

// TargetConfig is the position the vehicle is steered to.
type TargetConfig struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	Z float64 `yaml:"z" json:"z"`
}

// SimulatorConfig configures the simulated device.
type SimulatorConfig struct {
	// Heartbeats answered before the device goes silent; 0 never.
	Heartbeats int `yaml:"heartbeats" json:"heartbeats"`
}

// MetricsConfig configures the status server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Exporter is "none", "stdout" or "zipkin".
	Exporter    string  `yaml:"exporter" json:"exporter"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio"`
}

// Default returns the stock configuration
func Default() Config {
	return Config{
		Name:     "drone",
		Backend:  BackendLocal,
		Duration: 100 * time.Second,
		NATS: NATSConfig{
			Embedded: true,
			Host:     "127.0.0.1",
			Port:     -1,
		},
		Channels: ChannelsConfig{Heartbeat: 10, Telemetry: 100, Command: 50},
		Workers:  WorkersConfig{HeartbeatSenders: 1, HeartbeatReceivers: 1, Telemetry: 1, Command: 1},
		Periods: PeriodsConfig{
			Heartbeat: time.Second,
			Telemetry: 100 * time.Millisecond,
			Command:   10 * time.Millisecond,
		},
		Target:  TargetConfig{X: 10, Y: 20, Z: 30},
		Log:     core.DefaultLogConfig(),
		Metrics: MetricsConfig{Addr: ":9090"},
		Tracing: TracingConfig{Exporter: "none", SampleRatio: 1},
	}
}

// LoadFile layers path (when non-empty) and environment overrides on top
// of Default and validates the result.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := Load(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnvOverrides(EnvPrefix, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	validators := []Validator{
		RequiredFields("Name", "Duration"),
		OneOfValidator("Backend", BackendLocal, BackendNATS),
		OneOfValidator("Tracing.Exporter", "none", "stdout", "zipkin"),
		RangeValidator("Tracing.SampleRatio", 0, 1),
		RangeValidator("Simulator.Heartbeats", 0, 1<<31-1),
	}
	for _, name := range []string{"Heartbeat", "Telemetry", "Command"} {
		validators = append(validators, RangeValidator("Periods."+name, 0, float64(time.Hour)))
	}
	validators = append(validators, ValidatorFunc(func(interface{}) error {
		if c.Processes && c.Backend != BackendNATS {
			return fmt.Errorf("processes requires the %s backend", BackendNATS)
		}
		if c.Backend == BackendNATS && !c.NATS.Embedded && c.NATS.URL == "" {
			return fmt.Errorf("nats.url is required unless nats.embedded is set")
		}
		if c.Tracing.Exporter == "zipkin" && c.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required for the zipkin exporter")
		}
		if c.Metrics.Enabled && c.Metrics.Addr == "" {
			return fmt.Errorf("metrics.addr is required when metrics are enabled")
		}
		return nil
	}))
	return Validate(c, validators...)
}
