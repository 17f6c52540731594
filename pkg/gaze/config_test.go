package gaze

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigPresets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"default", DefaultConfig()},
		{"responsive", ResponsiveConfig()},
		{"steady", SteadyConfig()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, tt.cfg.Validate())
		})
	}

	def := DefaultConfig()
	assert.Equal(t, 0.5, def.ConfidenceThreshold)
	assert.Equal(t, 5, def.SmoothingWindow)
	assert.Equal(t, 0.3, def.OutlierDistanceFraction)
	assert.Equal(t, 50*time.Millisecond, def.PollInterval)
	assert.Less(t, ResponsiveConfig().SmoothingWindow, def.SmoothingWindow)
	assert.Equal(t, SmoothingKalman, SteadyConfig().Smoothing)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"threshold above one", func(c *Config) { c.ConfidenceThreshold = 1.2 }},
		{"negative threshold", func(c *Config) { c.ConfidenceThreshold = -0.1 }},
		{"zero window", func(c *Config) { c.SmoothingWindow = 0 }},
		{"unknown smoothing", func(c *Config) { c.Smoothing = "median" }},
		{"negative screen", func(c *Config) { c.ScreenWidth = -1 }},
		{"zero fallback", func(c *Config) { c.FallbackScreenHeight = 0 }},
		{"outlier fraction", func(c *Config) { c.OutlierDistanceFraction = 2 }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"too few fit points", func(c *Config) { c.CalibrationMinPoints = 1 }},
		{"fit points below five", func(c *Config) { c.CalibrationMinPoints = 4 }},
		{"kalman without noise", func(c *Config) {
			c.Smoothing = SmoothingKalman
			c.MeasurementNoise = 0
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestConfigScreenSize(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	w, h := cfg.ScreenSize()
	assert.Equal(t, 1920.0, w)
	assert.Equal(t, 1080.0, h)

	cfg.ScreenWidth, cfg.ScreenHeight = 3840, 1080
	w, h = cfg.ScreenSize()
	assert.Equal(t, 3840.0, w)
	assert.Equal(t, 1080.0, h)
}

func TestEngineErrorMatchesBoth(t *testing.T) {
	t.Parallel()

	cause := errors.New("camera busy")
	err := WrapEngineError("start", cause)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "start")
	assert.Same(t, err, WrapEngineError("poll", err), "already wrapped errors pass through")
	assert.NoError(t, WrapEngineError("stop", nil))
}
