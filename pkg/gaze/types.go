// Package gaze turns noisy per-frame gaze estimates from an external
// eye-tracking engine into stable, calibrated screen coordinates.
//
// A Tracker drives the per-tick pipeline:
//
//	engine → ConfidenceGate → OutlierDetector → Model.Apply → Smoother → subscribers
//
// and runs the 9-point calibration protocol (Session) as a separate,
// mutually exclusive mode. All pipeline state is owned by the goroutine
// running Tracker.Run; other goroutines talk to it through commands and
// read an immutable Snapshot.
package gaze

import "math"

// Point is a position in screen pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between two points.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// HeadPose is optional head orientation reported by some engines, in degrees.
type HeadPose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// RawSample is one unprocessed gaze estimate from the inference engine.
// Samples are values; pipeline stages return modified copies.
type RawSample struct {
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Confidence  float64   `json:"confidence"` // 0-1
	TimestampMs int64     `json:"timestamp_ms"`
	Calibrated  bool      `json:"calibrated"`
	HeadPose    *HeadPose `json:"head_pose,omitempty"`
}

// Point returns the sample position.
func (s RawSample) Point() Point {
	return Point{X: s.X, Y: s.Y}
}

// Finite reports whether position and confidence are real numbers.
func (s RawSample) Finite() bool {
	return isFinite(s.X) && isFinite(s.Y) && isFinite(s.Confidence)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CalibrationPoint pairs an intended on-screen target with the gaze
// observed while the user looked at it.
type CalibrationPoint struct {
	TargetX     float64 `json:"target_x"`
	TargetY     float64 `json:"target_y"`
	ObservedX   float64 `json:"observed_x"`
	ObservedY   float64 `json:"observed_y"`
	Confidence  float64 `json:"confidence"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// Estimate is the stabilized gaze position consumers should use.
type Estimate struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
	Calibrated bool    `json:"calibrated"`
}

// Point returns the estimate position.
func (e Estimate) Point() Point {
	return Point{X: e.X, Y: e.Y}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
