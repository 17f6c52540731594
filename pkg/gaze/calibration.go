package gaze

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MinCalibrationPoints is the fewest points a fit will accept.
const MinCalibrationPoints = 5

// degenerateULP scales machine epsilon for the regression denominator check.
const degenerateULP = 64

// Model is a per-axis affine correction from raw gaze space to screen space.
// The zero value is not usable; start from IdentityModel.
type Model struct {
	Scale  Point `json:"scale"`
	Offset Point `json:"offset"`
	Valid  bool  `json:"valid"`
}

// IdentityModel returns the uncalibrated default (scale 1, offset 0, invalid).
func IdentityModel() Model {
	return Model{Scale: Point{X: 1, Y: 1}}
}

// Apply corrects a sample. An invalid model returns the sample unchanged.
func (m Model) Apply(s RawSample) RawSample {
	if !m.Valid {
		return s
	}
	s.X = (s.X + m.Offset.X) * m.Scale.X
	s.Y = (s.Y + m.Offset.Y) * m.Scale.Y
	s.Calibrated = true
	return s
}

// Fit regresses observed gaze against target screen positions independently
// per axis (ordinary least squares) and returns the inverse mapping:
// scale = 1/slope, offset = -intercept. minPoints below MinCalibrationPoints
// is raised to it.
func Fit(points []CalibrationPoint, minPoints int) (Model, error) {
	minPoints = max(minPoints, MinCalibrationPoints)
	if len(points) < minPoints {
		return Model{}, &FitError{Points: len(points), Err: ErrInsufficientData}
	}

	n := len(points)
	tx := make([]float64, n)
	ty := make([]float64, n)
	ox := make([]float64, n)
	oy := make([]float64, n)
	for i, p := range points {
		tx[i], ty[i] = p.TargetX, p.TargetY
		ox[i], oy[i] = p.ObservedX, p.ObservedY
	}

	slopeX, interceptX, err := fitAxis(tx, ox)
	if err != nil {
		return Model{}, &FitError{Axis: "x", Points: n, Err: err}
	}
	slopeY, interceptY, err := fitAxis(ty, oy)
	if err != nil {
		return Model{}, &FitError{Axis: "y", Points: n, Err: err}
	}

	return Model{
		Scale:  Point{X: 1 / slopeX, Y: 1 / slopeY},
		Offset: Point{X: -interceptX, Y: -interceptY},
		Valid:  true,
	}, nil
}

// fitAxis returns slope and intercept of gaze = intercept + slope*screen.
func fitAxis(screen, gaze []float64) (slope, intercept float64, err error) {
	n := float64(len(screen))
	sum := floats.Sum(screen)
	sumSq := floats.Dot(screen, screen)

	den := n*sumSq - sum*sum
	if math.Abs(den) <= degenerateULP*epsilon*n*sumSq {
		return 0, 0, ErrDegenerateFit
	}

	intercept, slope = stat.LinearRegression(screen, gaze, nil, false)
	if slope == 0 || math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0, 0, ErrDegenerateFit
	}
	return slope, intercept, nil
}

var epsilon = math.Nextafter(1, 2) - 1
