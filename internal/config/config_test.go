package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gaze.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	for _, key := range []string{EnvConfig, EnvEngineURL, EnvMQTTBroker, EnvPort, EnvDB, EnvLogLevel} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mock://", cfg.Engine.URL)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.MQTT.Broker)

	g, err := cfg.GazeConfig()
	require.NoError(t, err)
	assert.Equal(t, gaze.DefaultConfig(), g)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
log_level: debug
pipeline:
  preset: steady
  confidence_threshold: 0.7
  smoothing: kalman
  poll_interval: 20ms
  screen_width: 2560
  screen_height: 1440
  calibration_samples: 12
engine:
  url: ws://localhost:9000/gaze
  camera_id: 1
server:
  addr: 127.0.0.1:9090
mqtt:
  broker: tcp://localhost:1883
  prefix: lab/gaze
  format: cbor
  qos: 1
profile:
  path: /var/lib/gaze/profiles.db
  restore: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "ws://localhost:9000/gaze", cfg.Engine.URL)
	assert.Equal(t, 1, cfg.Engine.CameraID)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, "cbor", cfg.MQTT.Format)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.False(t, cfg.Profile.Restore)

	g, err := cfg.GazeConfig()
	require.NoError(t, err)
	steady := gaze.SteadyConfig()
	assert.Equal(t, 0.7, g.ConfidenceThreshold)
	assert.Equal(t, gaze.SmoothingKalman, g.Smoothing)
	assert.Equal(t, steady.SmoothingWindow, g.SmoothingWindow)
	assert.Equal(t, 20*time.Millisecond, g.PollInterval)
	assert.Equal(t, 12, g.CalibrationSamples)
	w, h := g.ScreenSize()
	assert.Equal(t, 2560.0, w)
	assert.Equal(t, 1440.0, h)
}

func TestLoadFromEnvPath(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConfig, writeFile(t, "engine:\n  url: exec:///bin/true\n"))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "exec:///bin/true", cfg.Engine.URL)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvEngineURL, "mqtt://broker:1883/eyes")
	t.Setenv(EnvMQTTBroker, "tcp://broker:1883")
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvDB, "/tmp/gaze.db")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(writeFile(t, "engine:\n  url: mock://\nserver:\n  addr: :1234\n"))
	require.NoError(t, err)
	assert.Equal(t, "mqtt://broker:1883/eyes", cfg.Engine.URL)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "/tmp/gaze.db", cfg.Profile.Path)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "pipeline: [\n"},
		{"unknown preset", "pipeline:\n  preset: wobbly\n"},
		{"invalid threshold", "pipeline:\n  confidence_threshold: 2\n"},
		{"unknown smoothing", "pipeline:\n  smoothing: median\n"},
		{"too few fit points", "pipeline:\n  calibration_min_points: 3\n"},
		{"bad format", "mqtt:\n  format: xml\n"},
		{"bad qos", "mqtt:\n  qos: 3\n"},
		{"empty engine", "engine:\n  url: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestListenAddr(t *testing.T) {
	assert.Equal(t, ":8080", ListenAddr("8080"))
	assert.Equal(t, "127.0.0.1:80", ListenAddr("127.0.0.1:80"))
}
