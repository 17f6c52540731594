package gaze

// Kalman smooths each axis with an independent random-walk Kalman filter.
// It is an alternative to MovingAverage; the outlier history is kept by the
// Pipeline, so both strategies see identical gating.
type Kalman struct {
	q, r float64 // Process and measurement noise
	x, y axisFilter
	last RawSample
	n    int
}

type axisFilter struct {
	x float64 // Current estimate
	p float64 // Estimation error covariance
}

// NewKalman creates a filter with process noise q and measurement noise r.
func NewKalman(q, r float64) *Kalman {
	return &Kalman{q: q, r: r}
}

// Push runs one predict/correct step per axis.
func (k *Kalman) Push(s RawSample) Estimate {
	if k.n == 0 {
		// First measurement seeds the state
		k.x = axisFilter{x: s.X, p: k.r}
		k.y = axisFilter{x: s.Y, p: k.r}
	} else {
		k.x.update(s.X, k.q, k.r)
		k.y.update(s.Y, k.q, k.r)
	}
	k.last = s
	k.n++
	est, _ := k.Estimate()
	return est
}

func (a *axisFilter) update(z, q, r float64) {
	// Prediction step
	a.p += q

	// Correction step
	gain := a.p / (a.p + r)
	a.x += gain * (z - a.x)
	a.p = (1 - gain) * a.p
}

// Estimate returns the filtered position with the latest confidence.
func (k *Kalman) Estimate() (Estimate, bool) {
	if k.n == 0 {
		return Estimate{}, false
	}
	return Estimate{
		X:          k.x.x,
		Y:          k.y.x,
		Confidence: k.last.Confidence,
		Calibrated: k.last.Calibrated,
	}, true
}

// Len returns the number of measurements since the last reset.
func (k *Kalman) Len() int {
	return k.n
}

// Reset forgets all state.
func (k *Kalman) Reset() {
	k.x, k.y = axisFilter{}, axisFilter{}
	k.last = RawSample{}
	k.n = 0
}
