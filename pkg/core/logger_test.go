package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultLogger(t *testing.T) {
	logger := NewDefaultLogger()
	require.NotNil(t, logger)

	// Logger methods must not panic
	logger.Error("test error")
	logger.Errorf("test error: %s", "message")
	logger.Warn("test warning")
	logger.Warnf("test warning: %s", "message")
	logger.Info("test info")
	logger.Infof("test info: %s", "message")
	logger.Debug("test debug")
	logger.Debugf("test debug: %s", "message")
	logger.With("k", "v").Info("with fields")
	assert.NoError(t, logger.Sync())
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWorkerLogger_WritesFile(t *testing.T) {
	dir := t.TempDir()
	cfg := LogConfig{Level: "debug", OutputPaths: []string{}, Dir: dir}

	logger, err := NewWorkerLogger(cfg, "telemetry_0_42")
	require.NoError(t, err)
	logger.Infof("iteration %d", 7)
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(filepath.Join(dir, "telemetry_0_42.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "iteration 7"), "log file content: %s", data)
	assert.True(t, strings.Contains(string(data), "telemetry_0_42"))
}

func TestNewNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Info("discarded")
	assert.NoError(t, logger.Sync())
}
