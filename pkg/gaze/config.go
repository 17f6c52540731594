package gaze

import (
	"fmt"
	"time"
)

// SmoothingMode selects the Smoother strategy.
type SmoothingMode string

const (
	// SmoothingAverage is the moving-average window (default).
	SmoothingAverage SmoothingMode = "average"
	// SmoothingKalman is a per-axis random-walk Kalman filter.
	SmoothingKalman SmoothingMode = "kalman"
)

// Config holds all tunable parameters for the gaze pipeline
type Config struct {
	// Gating
	ConfidenceThreshold float64 // Reject samples with confidence below this (0-1)

	// Smoothing
	Smoothing        SmoothingMode
	SmoothingWindow  int     // Moving-average capacity
	ProcessNoise     float64 // Kalman process noise (only with SmoothingKalman)
	MeasurementNoise float64 // Kalman measurement noise (only with SmoothingKalman)

	// Screen (pixels). Zero means "ask the engine at StartTracking".
	ScreenWidth          float64
	ScreenHeight         float64
	FallbackScreenWidth  float64 // Used when the engine cannot report bounds
	FallbackScreenHeight float64

	// Outliers
	OutlierDistanceFraction float64 // Fraction of min(width, height)
	OutlierHistory          int     // Recent accepted samples averaged for the check
	OutlierMinHistory       int     // No check below this many

	// Stability diagnostics
	StabilityWindow            int     // Raw samples kept for variance
	StabilityVarianceThreshold float64 // Squared pixels
	MovementThreshold          float64 // Pixels between the two latest raw samples

	// Timing
	PollInterval time.Duration // How often to poll the engine
	FPSInterval  time.Duration // How often to update the FPS counter

	// Calibration
	CalibrationSettleDelay    time.Duration // Wait after presenting a target
	CalibrationSamples        int           // Polls per target
	CalibrationSampleInterval time.Duration // Delay between polls
	CalibrationMinConfidence  float64       // Keep samples strictly above this
	CalibrationLowSamples     int           // Warn when a target has fewer qualifying samples
	CalibrationMinPoints      int           // Minimum points for a fit
}

// DefaultConfig returns the recommended configuration
func DefaultConfig() Config {
	return Config{
		// Gating
		ConfidenceThreshold: 0.5,

		// Smoothing - 5-sample moving average
		Smoothing:        SmoothingAverage,
		SmoothingWindow:  5,
		ProcessNoise:     1.0,
		MeasurementNoise: 25.0,

		// Screen
		FallbackScreenWidth:  1920,
		FallbackScreenHeight: 1080,

		// Outliers - 30% of the short screen side
		OutlierDistanceFraction: 0.3,
		OutlierHistory:          3,
		OutlierMinHistory:       2,

		// Stability
		StabilityWindow:            10,
		StabilityVarianceThreshold: 1000,
		MovementThreshold:          50,

		// Timing - 20 polls per second
		PollInterval: 50 * time.Millisecond,
		FPSInterval:  time.Second,

		// Calibration - ~1s of sampling per target
		CalibrationSettleDelay:    500 * time.Millisecond,
		CalibrationSamples:        30,
		CalibrationSampleInterval: 33 * time.Millisecond,
		CalibrationMinConfidence:  0.5,
		CalibrationLowSamples:     10,
		CalibrationMinPoints:      5,
	}
}

// ResponsiveConfig returns a configuration with a shorter smoothing window
func ResponsiveConfig() Config {
	cfg := DefaultConfig()
	cfg.SmoothingWindow = 3
	cfg.PollInterval = 33 * time.Millisecond
	cfg.OutlierDistanceFraction = 0.4 // Allow faster saccades
	return cfg
}

// SteadyConfig returns a configuration for slower, steadier output
func SteadyConfig() Config {
	cfg := DefaultConfig()
	cfg.Smoothing = SmoothingKalman
	cfg.SmoothingWindow = 8
	cfg.ConfidenceThreshold = 0.6
	cfg.OutlierDistanceFraction = 0.25
	return cfg
}

// ScreenSize returns the configured screen size, or the fallback when unset.
func (c Config) ScreenSize() (float64, float64) {
	if c.ScreenWidth > 0 && c.ScreenHeight > 0 {
		return c.ScreenWidth, c.ScreenHeight
	}
	return c.FallbackScreenWidth, c.FallbackScreenHeight
}

// Validate checks the config invariants. Screen dimensions may be zero
// (resolved at StartTracking) but never negative.
func (c Config) Validate() error {
	switch {
	case c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1:
		return fmt.Errorf("%w: confidence threshold %v not in [0,1]", ErrInvalidConfig, c.ConfidenceThreshold)
	case c.CalibrationMinConfidence < 0 || c.CalibrationMinConfidence > 1:
		return fmt.Errorf("%w: calibration confidence %v not in [0,1]", ErrInvalidConfig, c.CalibrationMinConfidence)
	case c.OutlierDistanceFraction < 0 || c.OutlierDistanceFraction > 1:
		return fmt.Errorf("%w: outlier fraction %v not in [0,1]", ErrInvalidConfig, c.OutlierDistanceFraction)
	case c.SmoothingWindow < 1:
		return fmt.Errorf("%w: smoothing window %d < 1", ErrInvalidConfig, c.SmoothingWindow)
	case c.Smoothing != SmoothingAverage && c.Smoothing != SmoothingKalman:
		return fmt.Errorf("%w: unknown smoothing %q", ErrInvalidConfig, c.Smoothing)
	case c.ScreenWidth < 0 || c.ScreenHeight < 0:
		return fmt.Errorf("%w: negative screen size %vx%v", ErrInvalidConfig, c.ScreenWidth, c.ScreenHeight)
	case c.FallbackScreenWidth <= 0 || c.FallbackScreenHeight <= 0:
		return fmt.Errorf("%w: fallback screen size must be > 0", ErrInvalidConfig)
	case c.OutlierHistory < 1 || c.OutlierMinHistory < 1:
		return fmt.Errorf("%w: outlier history must be >= 1", ErrInvalidConfig)
	case c.StabilityWindow < 2:
		return fmt.Errorf("%w: stability window %d < 2", ErrInvalidConfig, c.StabilityWindow)
	case c.PollInterval <= 0 || c.FPSInterval <= 0:
		return fmt.Errorf("%w: poll and FPS intervals must be > 0", ErrInvalidConfig)
	case c.CalibrationSamples < 1:
		return fmt.Errorf("%w: calibration samples %d < 1", ErrInvalidConfig, c.CalibrationSamples)
	case c.CalibrationSettleDelay < 0 || c.CalibrationSampleInterval < 0:
		return fmt.Errorf("%w: negative calibration delay", ErrInvalidConfig)
	case c.CalibrationMinPoints < MinCalibrationPoints:
		return fmt.Errorf("%w: calibration needs at least %d points", ErrInvalidConfig, MinCalibrationPoints)
	case c.Smoothing == SmoothingKalman && (c.ProcessNoise <= 0 || c.MeasurementNoise <= 0):
		return fmt.Errorf("%w: kalman noise must be > 0", ErrInvalidConfig)
	}
	return nil
}
