package gaze

// Update is the outcome of pushing one raw sample through the pipeline.
type Update struct {
	Raw         RawSample `json:"raw"`
	Stabilized  Estimate  `json:"stabilized"`
	HasEstimate bool      `json:"has_estimate"`
	Accepted    bool      `json:"accepted"` // Passed the confidence gate
	Outlier     bool      `json:"outlier"`
	Stability   Stability `json:"stability"`
}

// Pipeline chains gate → outlier → calibration → smoothing for one tick.
// It is not safe for concurrent use; the Tracker loop owns it.
type Pipeline struct {
	cfg       Config
	width     float64
	height    float64
	gate      ConfidenceGate
	outliers  OutlierDetector
	model     Model
	smoother  Smoother
	stability *StabilityAnalyzer

	recent  []Point // Accepted post-calibration positions for the outlier check
	lastRaw *RawSample
}

// NewPipeline creates a pipeline for cfg. The screen size comes from the
// config, or its fallback when unset.
func NewPipeline(cfg Config) *Pipeline {
	w, h := cfg.ScreenSize()
	return &Pipeline{
		cfg:       cfg,
		width:     w,
		height:    h,
		gate:      ConfidenceGate{Threshold: cfg.ConfidenceThreshold},
		outliers:  NewOutlierDetector(cfg, w, h),
		model:     IdentityModel(),
		smoother:  NewSmoother(cfg),
		stability: NewStabilityAnalyzer(cfg),
		recent:    make([]Point, 0, cfg.OutlierHistory),
	}
}

// Process pushes one raw sample through the stages.
func (p *Pipeline) Process(raw RawSample) Update {
	rawCopy := raw
	p.lastRaw = &rawCopy
	if raw.Finite() {
		p.stability.Push(raw.Point())
	}

	u := Update{Raw: raw}
	if p.gate.Accept(raw) {
		u.Accepted = true
		calibrated := p.model.Apply(raw)

		// One query against one snapshot serves both gating and diagnostics.
		u.Outlier = p.outliers.IsOutlier(calibrated.Point(), p.recent)
		if !u.Outlier {
			p.smoother.Push(calibrated)
			p.remember(calibrated.Point())
		}
	}

	u.Stabilized, u.HasEstimate = p.Estimate()
	u.Stability = p.stability.Analyze()
	return u
}

func (p *Pipeline) remember(pt Point) {
	if len(p.recent) == p.cfg.OutlierHistory {
		p.recent = append(p.recent[:0], p.recent[1:]...)
	}
	p.recent = append(p.recent, pt)
}

// Estimate returns the stabilized estimate clamped to the screen.
func (p *Pipeline) Estimate() (Estimate, bool) {
	est, ok := p.smoother.Estimate()
	if !ok {
		return Estimate{}, false
	}
	est.X = clamp(est.X, 0, p.width)
	est.Y = clamp(est.Y, 0, p.height)
	return est, true
}

// Stability returns the current diagnostics.
func (p *Pipeline) Stability() Stability {
	return p.stability.Analyze()
}

// LastRaw returns the most recent raw sample, accepted or not.
func (p *Pipeline) LastRaw() (RawSample, bool) {
	if p.lastRaw == nil {
		return RawSample{}, false
	}
	return *p.lastRaw, true
}

// Model returns the active calibration model.
func (p *Pipeline) Model() Model {
	return p.model
}

// SetModel swaps the calibration model and clears smoothing and outlier
// history so pre- and post-calibration scales never mix.
func (p *Pipeline) SetModel(m Model) {
	p.model = m
	p.smoother.Reset()
	p.recent = p.recent[:0]
}

// ScreenSize returns the bounds used for clamping and outlier limits.
func (p *Pipeline) ScreenSize() (float64, float64) {
	return p.width, p.height
}

// SmoothingLen returns the number of samples held by the smoother.
func (p *Pipeline) SmoothingLen() int {
	return p.smoother.Len()
}

// Reset clears every history: smoothing, outliers, stability and last raw.
// The calibration model is kept.
func (p *Pipeline) Reset() {
	p.smoother.Reset()
	p.recent = p.recent[:0]
	p.stability.Reset()
	p.lastRaw = nil
}
