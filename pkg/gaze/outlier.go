package gaze

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// OutlierDetector flags samples that are spatially inconsistent with very
// recent accepted history. It holds no state of its own: callers pass an
// immutable snapshot of the history on every query.
type OutlierDetector struct {
	DistanceFraction float64 // Fraction of min(ScreenWidth, ScreenHeight)
	ScreenWidth      float64
	ScreenHeight     float64
	MinHistory       int // Fewer entries than this always pass
}

// NewOutlierDetector builds a detector for the given config and screen size.
func NewOutlierDetector(cfg Config, width, height float64) OutlierDetector {
	return OutlierDetector{
		DistanceFraction: cfg.OutlierDistanceFraction,
		ScreenWidth:      width,
		ScreenHeight:     height,
		MinHistory:       cfg.OutlierMinHistory,
	}
}

// Limit returns the rejection distance in pixels.
func (d OutlierDetector) Limit() float64 {
	return d.DistanceFraction * math.Min(d.ScreenWidth, d.ScreenHeight)
}

// IsOutlier reports whether p lies further than Limit from the mean of history.
func (d OutlierDetector) IsOutlier(p Point, history []Point) bool {
	if len(history) == 0 || len(history) < d.MinHistory {
		return false
	}
	xs := make([]float64, len(history))
	ys := make([]float64, len(history))
	for i, h := range history {
		xs[i], ys[i] = h.X, h.Y
	}
	mean := Point{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil)}
	return p.Distance(mean) > d.Limit()
}
