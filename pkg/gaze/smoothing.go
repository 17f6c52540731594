package gaze

// Smoother stabilizes accepted, calibrated samples.
type Smoother interface {
	// Push adds a sample and returns the new estimate.
	Push(s RawSample) Estimate

	// Estimate returns the current estimate; false until a sample was pushed.
	Estimate() (Estimate, bool)

	// Len returns how many samples currently influence the estimate.
	Len() int

	// Reset drops all history.
	Reset()
}

// NewSmoother returns the strategy selected by cfg.Smoothing.
func NewSmoother(cfg Config) Smoother {
	if cfg.Smoothing == SmoothingKalman {
		return NewKalman(cfg.ProcessNoise, cfg.MeasurementNoise)
	}
	return NewMovingAverage(cfg.SmoothingWindow)
}

// MovingAverage is a fixed-capacity FIFO whose estimate is the per-axis
// arithmetic mean of the buffered samples. Confidence is not averaged: the
// estimate carries the most recent sample's confidence.
type MovingAverage struct {
	capacity int
	samples  []RawSample
}

// NewMovingAverage creates a window holding at most capacity samples.
func NewMovingAverage(capacity int) *MovingAverage {
	if capacity < 1 {
		capacity = 1
	}
	return &MovingAverage{
		capacity: capacity,
		samples:  make([]RawSample, 0, capacity),
	}
}

// Push appends s, evicting the oldest sample when over capacity.
func (m *MovingAverage) Push(s RawSample) Estimate {
	if len(m.samples) == m.capacity {
		copy(m.samples, m.samples[1:])
		m.samples = m.samples[:len(m.samples)-1]
	}
	m.samples = append(m.samples, s)
	est, _ := m.Estimate()
	return est
}

// Estimate returns the windowed mean. With a single buffered sample it is
// returned unchanged.
func (m *MovingAverage) Estimate() (Estimate, bool) {
	if len(m.samples) == 0 {
		return Estimate{}, false
	}
	latest := m.samples[len(m.samples)-1]
	est := Estimate{
		X:          latest.X,
		Y:          latest.Y,
		Confidence: latest.Confidence,
		Calibrated: latest.Calibrated,
	}
	if len(m.samples) < 2 {
		return est, true
	}

	// Mean of deviations from the latest sample keeps equal inputs exact.
	var dx, dy float64
	for _, s := range m.samples {
		dx += s.X - latest.X
		dy += s.Y - latest.Y
	}
	n := float64(len(m.samples))
	est.X = latest.X + dx/n
	est.Y = latest.Y + dy/n
	return est, true
}

// Len returns the number of buffered samples.
func (m *MovingAverage) Len() int {
	return len(m.samples)
}

// Capacity returns the window size.
func (m *MovingAverage) Capacity() int {
	return m.capacity
}

// Reset clears the window.
func (m *MovingAverage) Reset() {
	m.samples = m.samples[:0]
}
