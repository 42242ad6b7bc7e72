package core

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging capabilities
// This abstraction allows swapping logging implementations
type Logger interface {
	// Error logs an error message
	Error(args ...interface{})

	// Errorf logs a formatted error message
	Errorf(format string, args ...interface{})

	// Warn logs a warning message
	Warn(args ...interface{})

	// Warnf logs a formatted warning message
	Warnf(format string, args ...interface{})

	// Info logs an informational message
	Info(args ...interface{})

	// Infof logs a formatted informational message
	Infof(format string, args ...interface{})

	// Debug logs a debug message
	Debug(args ...interface{})

	// Debugf logs a formatted debug message
	Debugf(format string, args ...interface{})

	// With returns a child logger carrying the given key/value pairs
	With(keysAndValues ...interface{}) Logger

	// Sync flushes buffered entries
	Sync() error
}

// LogConfig configures a zap-backed Logger.
type LogConfig struct {
	Level       string   `yaml:"level" json:"level"` // "debug", "info", "warn", "error"
	Development bool     `yaml:"development" json:"development"`
	OutputPaths []string `yaml:"output_paths" json:"output_paths"`
	// Dir, when set, receives one log file per worker logger.
	Dir string `yaml:"dir" json:"dir"`
}

// DefaultLogConfig returns production logger configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Development: false,
		OutputPaths: []string{"stdout"},
	}
}

// zapLogger implements Logger on top of zap's sugared logger
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewLogger builds a Logger from cfg.
func NewLogger(cfg LogConfig) (Logger, error) {
	l, err := buildZap(cfg, cfg.OutputPaths)
	if err != nil {
		return nil, err
	}
	return &zapLogger{s: l.Sugar()}, nil
}

// NewDefaultLogger creates a production logger, falling back to a no-op logger
// if zap cannot be configured.
func NewDefaultLogger() Logger {
	l, err := NewLogger(DefaultLogConfig())
	if err != nil {
		return NewNopLogger()
	}
	return l
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

// NewWorkerLogger creates the private logger of one worker instance.
// The logger is named after the instance and, when cfg.Dir is set, also
// writes to <Dir>/<name>.log.
func NewWorkerLogger(cfg LogConfig, name string) (Logger, error) {
	outputs := append([]string(nil), cfg.OutputPaths...)
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", cfg.Dir, err)
		}
		outputs = append(outputs, filepath.Join(cfg.Dir, name+".log"))
	}
	l, err := buildZap(cfg, outputs)
	if err != nil {
		return nil, err
	}
	return &zapLogger{s: l.Named(name).Sugar()}, nil
}

func buildZap(cfg LogConfig, outputs []string) (*zap.Logger, error) {
	var level zapcore.Level
	if cfg.Level == "" {
		level = zapcore.InfoLevel
	} else if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encodingFormat(cfg.Development),
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}
	return zapCfg.Build(zap.AddCallerSkip(1))
}

func encodingFormat(development bool) string {
	if development {
		return "console"
	}
	return "json"
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return ec
	}
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return ec
}

func (l *zapLogger) Error(args ...interface{}) { l.s.Error(args...) }

func (l *zapLogger) Errorf(format string, args ...interface{}) { l.s.Errorf(format, args...) }

func (l *zapLogger) Warn(args ...interface{}) { l.s.Warn(args...) }

func (l *zapLogger) Warnf(format string, args ...interface{}) { l.s.Warnf(format, args...) }

func (l *zapLogger) Info(args ...interface{}) { l.s.Info(args...) }

func (l *zapLogger) Infof(format string, args ...interface{}) { l.s.Infof(format, args...) }

func (l *zapLogger) Debug(args ...interface{}) { l.s.Debug(args...) }

func (l *zapLogger) Debugf(format string, args ...interface{}) { l.s.Debugf(format, args...) }

func (l *zapLogger) With(keysAndValues ...interface{}) Logger {
	return &zapLogger{s: l.s.With(keysAndValues...)}
}

// Sync ignores the EINVAL/ENOTTY zap reports for stdout/stderr.
func (l *zapLogger) Sync() error {
	_ = l.s.Sync()
	return nil
}
