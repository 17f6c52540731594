package gaze

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNotTracking is returned when calibration is requested while tracking is inactive.
	ErrNotTracking = errors.New("gaze: tracking not active")

	// ErrAlreadyTracking is returned by StartTracking when tracking is running.
	ErrAlreadyTracking = errors.New("gaze: tracking already active")

	// ErrSessionAlreadyActive is returned when a calibration session is running.
	ErrSessionAlreadyActive = errors.New("gaze: calibration session already active")

	// ErrSessionAborted is returned when a calibration session is cancelled.
	ErrSessionAborted = errors.New("gaze: calibration session aborted")

	// ErrInsufficientData is returned when a fit has too few calibration points.
	ErrInsufficientData = errors.New("gaze: insufficient calibration data")

	// ErrDegenerateFit is returned when the regression is singular on an axis.
	ErrDegenerateFit = errors.New("gaze: degenerate calibration fit")

	// ErrEngineUnavailable is returned when the inference engine fails.
	ErrEngineUnavailable = errors.New("gaze: inference engine unavailable")

	// ErrInvalidConfig is returned when a Config violates its invariants.
	ErrInvalidConfig = errors.New("gaze: invalid config")

	// ErrTrackerClosed is returned when the tracker loop is not running.
	ErrTrackerClosed = errors.New("gaze: tracker closed")
)

// FitError describes a failed calibration fit.
type FitError struct {
	Axis   string // "x", "y" or "" when not axis specific
	Points int
	Err    error
}

// Error implements the error interface.
func (e *FitError) Error() string {
	if e.Axis != "" {
		return fmt.Sprintf("%v (axis %s, %d points)", e.Err, e.Axis, e.Points)
	}
	return fmt.Sprintf("%v (%d points)", e.Err, e.Points)
}

// Unwrap returns the underlying sentinel.
func (e *FitError) Unwrap() error {
	return e.Err
}

// EngineError wraps an upstream engine failure with the failing operation.
// It matches both ErrEngineUnavailable and the cause with errors.Is.
type EngineError struct {
	Op  string // start, poll, stop, bounds
	Err error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrEngineUnavailable, e.Op, e.Err)
}

// Unwrap returns the sentinel and the cause.
func (e *EngineError) Unwrap() []error {
	return []error{ErrEngineUnavailable, e.Err}
}

// WrapEngineError wraps err with engine operation context.
// Errors that already match ErrEngineUnavailable are returned unchanged.
func WrapEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEngineUnavailable) {
		return err
	}
	return &EngineError{Op: op, Err: err}
}
