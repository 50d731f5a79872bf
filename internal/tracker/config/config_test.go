package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tracker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := NewDefault()

	require.Equal(t, DefaultPollInterval, cfg.PollInterval.Duration)
	require.Equal(t, DefaultReconnectDelay, cfg.ReconnectDelay.Duration)
	require.Equal(t, DefaultMaxReconnectDelay, cfg.MaxReconnectDelay.Duration)
	require.Equal(t, DefaultHistoryRefreshInterval, cfg.HistoryRefreshInterval.Duration)
	require.Equal(t, DefaultBufferCapacity, cfg.BufferCapacity)
	require.Equal(t, DefaultRecentOperations, cfg.RecentOperations)
	require.Equal(t, DefaultStatusPort, cfg.StatusPort)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestParseConfigFile(t *testing.T) {
	path := writeConfig(t, `
operations-service:
  service:
    server: https://ops.example.com
poll-interval: 5s
reconnect-delay: 1s
max-reconnect-delay: 30s
buffer-capacity: 50
lab-id: lab-7
log-level: debug
`)

	cfg := NewDefault()
	require.NoError(t, cfg.ParseConfigFile(path))

	require.Equal(t, "https://ops.example.com", cfg.OperationsService.Service.Server)
	require.Equal(t, 5*time.Second, cfg.PollInterval.Duration)
	require.Equal(t, time.Second, cfg.ReconnectDelay.Duration)
	require.Equal(t, 30*time.Second, cfg.MaxReconnectDelay.Duration)
	require.Equal(t, 50, cfg.BufferCapacity)
	require.Equal(t, "lab-7", cfg.LabId)
	require.Equal(t, "debug", cfg.LogLevel)

	// untouched fields keep their defaults
	require.Equal(t, DefaultRecentOperations, cfg.RecentOperations)
	require.Equal(t, DefaultHistoryRefreshInterval, cfg.HistoryRefreshInterval.Duration)
}

func TestParseConfigFileMissing(t *testing.T) {
	cfg := NewDefault()
	require.Error(t, cfg.ParseConfigFile(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRACKER_POLL_INTERVAL", "7s")
	t.Setenv("TRACKER_BUFFER_CAPACITY", "200")
	t.Setenv("TRACKER_LOG_LEVEL", "warn")

	cfg := NewDefault()
	require.NoError(t, cfg.ApplyEnvOverrides())

	require.Equal(t, 7*time.Second, cfg.PollInterval.Duration)
	require.Equal(t, 200, cfg.BufferCapacity)
	require.Equal(t, "warn", cfg.LogLevel)
	// unset variables leave the file/default values alone
	require.Equal(t, DefaultReconnectDelay, cfg.ReconnectDelay.Duration)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, `
operations-service:
  service:
    server: https://ops.example.com
poll-interval: 5s
`)
	t.Setenv("TRACKER_POLL_INTERVAL", "9s")

	cfg := NewDefault()
	require.NoError(t, cfg.ParseConfigFile(path))
	require.Equal(t, 9*time.Second, cfg.PollInterval.Duration)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := NewDefault()
		cfg.OperationsService.Service.Server = "https://ops.example.com"
		return cfg
	}

	t.Run("default with server is valid", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("missing server", func(t *testing.T) {
		cfg := NewDefault()
		require.Error(t, cfg.Validate())
	})

	t.Run("malformed server url", func(t *testing.T) {
		cfg := valid()
		cfg.OperationsService.Service.Server = "ops.example.com"
		require.Error(t, cfg.Validate())
	})

	t.Run("non-positive poll interval", func(t *testing.T) {
		cfg := valid()
		cfg.PollInterval.Duration = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("backoff cap below base", func(t *testing.T) {
		cfg := valid()
		cfg.ReconnectDelay.Duration = 10 * time.Second
		cfg.MaxReconnectDelay.Duration = 5 * time.Second
		require.Error(t, cfg.Validate())
	})

	t.Run("zero buffer capacity", func(t *testing.T) {
		cfg := valid()
		cfg.BufferCapacity = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("status port out of range", func(t *testing.T) {
		cfg := valid()
		cfg.StatusPort = 70000
		require.Error(t, cfg.Validate())
	})
}
