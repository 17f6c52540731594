package gaze

import "gonum.org/v1/gonum/stat"

// Stability holds derived diagnostics over recent raw samples.
type Stability struct {
	Variance               float64 `json:"variance"` // Squared pixels, x and y summed
	IsStable               bool    `json:"is_stable"`
	Movement               float64 `json:"movement"` // Pixels between the two latest raw samples
	HasSignificantMovement bool    `json:"has_significant_movement"`
	Samples                int     `json:"samples"`
}

// StabilityAnalyzer keeps its own short raw history, larger than the
// smoothing window, and judges fixation stability from it.
type StabilityAnalyzer struct {
	window            int
	varianceThreshold float64
	movementThreshold float64

	xs, ys []float64
}

// NewStabilityAnalyzer creates an analyzer from cfg.
func NewStabilityAnalyzer(cfg Config) *StabilityAnalyzer {
	return &StabilityAnalyzer{
		window:            cfg.StabilityWindow,
		varianceThreshold: cfg.StabilityVarianceThreshold,
		movementThreshold: cfg.MovementThreshold,
		xs:                make([]float64, 0, cfg.StabilityWindow),
		ys:                make([]float64, 0, cfg.StabilityWindow),
	}
}

// Push records a raw sample position.
func (a *StabilityAnalyzer) Push(p Point) {
	if len(a.xs) == a.window {
		a.xs = append(a.xs[:0], a.xs[1:]...)
		a.ys = append(a.ys[:0], a.ys[1:]...)
	}
	a.xs = append(a.xs, p.X)
	a.ys = append(a.ys, p.Y)
}

// Analyze computes the diagnostics. Fewer than two samples are never stable.
func (a *StabilityAnalyzer) Analyze() Stability {
	n := len(a.xs)
	st := Stability{Samples: n}
	if n < 2 {
		return st
	}

	st.Variance = stat.PopVariance(a.xs, nil) + stat.PopVariance(a.ys, nil)
	st.IsStable = st.Variance < a.varianceThreshold

	last := Point{X: a.xs[n-1], Y: a.ys[n-1]}
	prev := Point{X: a.xs[n-2], Y: a.ys[n-2]}
	st.Movement = last.Distance(prev)
	st.HasSignificantMovement = st.Movement > a.movementThreshold
	return st
}

// Len returns the number of samples in the history.
func (a *StabilityAnalyzer) Len() int {
	return len(a.xs)
}

// Reset clears the history.
func (a *StabilityAnalyzer) Reset() {
	a.xs = a.xs[:0]
	a.ys = a.ys[:0]
}
