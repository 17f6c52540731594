// Package config loads gazed configuration.
//
// Configuration comes from a YAML file named by the --config flag or the
// GAZE_CONFIG environment variable. A few deployment settings can then be
// overridden from the environment (see applyEnv). Without a file the
// defaults are used.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// File is the gazed configuration file.
type File struct {
	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	Pipeline PipelineConfig `yaml:"pipeline"`
	Engine   EngineConfig   `yaml:"engine"`
	Server   ServerConfig   `yaml:"server"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Profile  ProfileConfig  `yaml:"profile"`
}

// PipelineConfig tunes the gaze pipeline. Unset fields keep the preset's value.
type PipelineConfig struct {
	// Preset is default, responsive or steady.
	Preset string `yaml:"preset"`

	ConfidenceThreshold     *float64       `yaml:"confidence_threshold"`
	Smoothing               string         `yaml:"smoothing"`
	SmoothingWindow         *int           `yaml:"smoothing_window"`
	ProcessNoise            *float64       `yaml:"process_noise"`
	MeasurementNoise        *float64       `yaml:"measurement_noise"`
	OutlierDistanceFraction *float64       `yaml:"outlier_distance_fraction"`
	StabilityThreshold      *float64       `yaml:"stability_threshold"`
	PollInterval            *time.Duration `yaml:"poll_interval"`

	// Screen size in pixels. Zero asks the engine.
	ScreenWidth  float64 `yaml:"screen_width"`
	ScreenHeight float64 `yaml:"screen_height"`

	CalibrationSettleDelay *time.Duration `yaml:"calibration_settle_delay"`
	CalibrationSamples     *int           `yaml:"calibration_samples"`
	CalibrationMinPoints   *int           `yaml:"calibration_min_points"`
}

// EngineConfig selects the inference engine.
type EngineConfig struct {
	// URL selects the transport:
	//   exec:///usr/local/bin/gaze-infer?arg=--model&arg=small
	//   ws://localhost:9000/gaze
	//   mqtt://localhost:1883/eyes/raw
	//   mock://
	URL      string `yaml:"url"`
	CameraID int    `yaml:"camera_id"`
}

// ServerConfig configures the HTTP and websocket server.
type ServerConfig struct {
	// Addr is the listen address. Empty disables the server.
	Addr string `yaml:"addr"`
}

// MQTTConfig configures the MQTT bridge.
type MQTTConfig struct {
	// Broker is e.g. tcp://localhost:1883. Empty disables the bridge.
	Broker string `yaml:"broker"`
	Prefix string `yaml:"prefix"`
	Format string `yaml:"format"` // json or cbor
	QoS    byte   `yaml:"qos"`
}

// ProfileConfig configures calibration persistence.
type ProfileConfig struct {
	// Path is the SQLite database. Empty disables persistence.
	Path string `yaml:"path"`

	// Restore loads the latest profile at startup.
	Restore bool `yaml:"restore"`
}

// Default returns the configuration used when no file is given.
func Default() *File {
	return &File{
		LogLevel: "info",
		Pipeline: PipelineConfig{Preset: "default"},
		Engine:   EngineConfig{URL: "mock://"},
		Server:   ServerConfig{Addr: ":" + DefaultPort},
		MQTT: MQTTConfig{
			Prefix: "gaze",
			Format: string(protocol.FormatJSON),
		},
		Profile: ProfileConfig{Restore: true},
	}
}

// Load reads path, or GAZE_CONFIG when path is empty, then applies
// environment overrides and validates the result.
func Load(path string) (*File, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges a YAML file into the current config.
func (c *File) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate checks that the file describes a usable daemon.
func (c *File) Validate() error {
	if c.Engine.URL == "" {
		return fmt.Errorf("config: engine.url is required")
	}
	if _, err := protocol.ParseFormat(c.MQTT.Format); err != nil {
		return fmt.Errorf("config: mqtt.format: %w", err)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("config: mqtt.qos must be 0, 1 or 2")
	}
	if _, err := c.GazeConfig(); err != nil {
		return err
	}
	return nil
}

// GazeConfig builds the pipeline configuration from the preset and overrides.
func (c *File) GazeConfig() (gaze.Config, error) {
	p := c.Pipeline

	var cfg gaze.Config
	switch p.Preset {
	case "", "default":
		cfg = gaze.DefaultConfig()
	case "responsive":
		cfg = gaze.ResponsiveConfig()
	case "steady":
		cfg = gaze.SteadyConfig()
	default:
		return gaze.Config{}, fmt.Errorf("config: unknown pipeline preset %q", p.Preset)
	}

	if p.ConfidenceThreshold != nil {
		cfg.ConfidenceThreshold = *p.ConfidenceThreshold
	}
	if p.Smoothing != "" {
		cfg.Smoothing = gaze.SmoothingMode(p.Smoothing)
	}
	if p.SmoothingWindow != nil {
		cfg.SmoothingWindow = *p.SmoothingWindow
	}
	if p.ProcessNoise != nil {
		cfg.ProcessNoise = *p.ProcessNoise
	}
	if p.MeasurementNoise != nil {
		cfg.MeasurementNoise = *p.MeasurementNoise
	}
	if p.OutlierDistanceFraction != nil {
		cfg.OutlierDistanceFraction = *p.OutlierDistanceFraction
	}
	if p.StabilityThreshold != nil {
		cfg.StabilityVarianceThreshold = *p.StabilityThreshold
	}
	if p.PollInterval != nil {
		cfg.PollInterval = *p.PollInterval
	}
	if p.CalibrationSettleDelay != nil {
		cfg.CalibrationSettleDelay = *p.CalibrationSettleDelay
	}
	if p.CalibrationSamples != nil {
		cfg.CalibrationSamples = *p.CalibrationSamples
	}
	if p.CalibrationMinPoints != nil {
		cfg.CalibrationMinPoints = *p.CalibrationMinPoints
	}
	cfg.ScreenWidth = p.ScreenWidth
	cfg.ScreenHeight = p.ScreenHeight

	if err := cfg.Validate(); err != nil {
		return gaze.Config{}, fmt.Errorf("config: pipeline: %w", err)
	}
	return cfg, nil
}
