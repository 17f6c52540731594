package gaze

// ConfidenceGate rejects samples below a confidence threshold before they
// reach any stateful stage.
type ConfidenceGate struct {
	Threshold float64
}

// Accept reports whether the sample passes the gate. Samples with a
// non-finite coordinate never pass.
func (g ConfidenceGate) Accept(s RawSample) bool {
	return s.Finite() && s.Confidence >= g.Threshold
}
