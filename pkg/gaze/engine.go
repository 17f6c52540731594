package gaze

import "context"

// EngineConfig is passed to the inference engine when tracking starts.
type EngineConfig struct {
	CameraID     int
	ScreenWidth  float64
	ScreenHeight float64
}

// Engine is the upstream inference engine that produces raw gaze samples.
// Implementations live in pkg/engine.
type Engine interface {
	// Start begins producing samples.
	Start(ctx context.Context, cfg EngineConfig) error

	// Poll returns the newest sample since the previous poll, or nil when
	// there is none. It must not block waiting for a sample and must be
	// safe to call from the calibration goroutine.
	Poll(ctx context.Context) (*RawSample, error)

	// Stop stops producing samples. Calling it twice is not an error.
	Stop() error

	// ScreenBounds reports the display size in pixels, if known.
	ScreenBounds(ctx context.Context) (width, height float64, err error)
}
