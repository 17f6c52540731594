package gaze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// Stats are running counters for the current tracking run.
type Stats struct {
	TotalFrames       uint64        `json:"total_frames"`
	AcceptedFrames    uint64        `json:"accepted_frames"`
	LowConfidence     uint64        `json:"low_confidence"`
	Outliers          uint64        `json:"outliers"`
	EngineErrors      uint64        `json:"engine_errors"`
	SkippedTicks      uint64        `json:"skipped_ticks"`
	AverageConfidence float64       `json:"average_confidence"`
	FPS               float64       `json:"fps"`
	TrackingSince     time.Time     `json:"tracking_since"`
	TrackingDuration  time.Duration `json:"tracking_duration"`
	LastUpdate        time.Time     `json:"last_update"`
}

// Snapshot is an immutable view of the tracker, safe to read from any goroutine.
type Snapshot struct {
	Tracking     bool       `json:"tracking"`
	Paused       bool       `json:"paused"`
	Calibrating  bool       `json:"calibrating"`
	SessionID    string     `json:"session_id,omitempty"`
	SessionState string     `json:"session_state"`
	Calibrated   bool       `json:"calibrated"`
	Model        Model      `json:"model"`
	Stable       bool       `json:"stable"`
	Stability    Stability  `json:"stability"`
	Estimate     *Estimate  `json:"estimate,omitempty"`
	LastRaw      *RawSample `json:"last_raw,omitempty"`
	ScreenWidth  float64    `json:"screen_width"`
	ScreenHeight float64    `json:"screen_height"`
	Stats        Stats      `json:"stats"`
	Config       Config     `json:"-"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithCameraID sets the camera passed to the engine on start.
func WithCameraID(id int) Option {
	return func(t *Tracker) { t.cameraID = id }
}

// WithBroker sets the event broker, e.g. to share one between components.
func WithBroker(b *Broker) Option {
	return func(t *Tracker) { t.broker = b }
}

type command struct {
	fn   func() error
	done chan error
}

type pollResult struct {
	sample *RawSample
	err    error
	gen    uint64
}

type sessionResult struct {
	session *Session
	result  SessionResult
	err     error
}

// Tracker drives the gaze pipeline on a fixed cadence and runs calibration
// sessions. Everything except the snapshot and broker is owned by the
// goroutine in Run; public methods are executed there as commands.
type Tracker struct {
	engine   Engine
	broker   *Broker
	logger   *slog.Logger
	cameraID int

	cmds     chan command
	polls    chan pollResult
	sessions chan sessionResult
	started  atomic.Bool
	closed   chan struct{}
	snap     atomic.Pointer[Snapshot]

	// Owned by the Run goroutine
	cfg            Config
	runCtx         context.Context
	pipeline       *Pipeline
	pollTicker     *time.Ticker
	fpsTicker      *time.Ticker
	tracking       bool
	paused         bool
	inflight       bool
	generation     uint64
	session        *Session
	sessionCancel  context.CancelFunc
	abortRequested bool
	stats          Stats
	confSum        float64
	fpsFrames      int
	lastFPS        time.Time
	pollFailures   int
}

// New creates a tracker. Call Run to start its loop.
func New(cfg Config, engine Engine, opts ...Option) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: nil engine", ErrEngineUnavailable)
	}
	t := &Tracker{
		cfg:      cfg,
		engine:   engine,
		cmds:     make(chan command),
		polls:    make(chan pollResult, 1),
		sessions: make(chan sessionResult, 1),
		closed:   make(chan struct{}),
		pipeline: NewPipeline(cfg),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.broker == nil {
		t.broker = NewBroker(t.logger)
	}
	t.publishSnapshot()
	return t, nil
}

// Run executes the tracker loop until ctx is cancelled. On exit tracking
// is stopped and any calibration session is aborted.
func (t *Tracker) Run(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return errors.New("gaze: tracker already running")
	}
	defer close(t.closed)

	t.runCtx = ctx
	t.pollTicker = time.NewTicker(t.cfg.PollInterval)
	t.fpsTicker = time.NewTicker(t.cfg.FPSInterval)
	defer t.pollTicker.Stop()
	defer t.fpsTicker.Stop()

	t.logger.Info("gaze tracker started",
		"poll", t.cfg.PollInterval,
		"smoothing", t.cfg.Smoothing,
		"window", t.cfg.SmoothingWindow,
		"threshold", t.cfg.ConfidenceThreshold)

	for {
		select {
		case <-ctx.Done():
			if err := t.stopTracking(); err != nil {
				t.logger.Warn("engine stop failed during shutdown", "error", err)
			}
			t.logger.Info("gaze tracker stopped")
			return nil

		case cmd := <-t.cmds:
			cmd.done <- cmd.fn()

		case <-t.pollTicker.C:
			t.tick(ctx)

		case res := <-t.polls:
			t.handlePoll(res)

		case res := <-t.sessions:
			t.finishSession(res)

		case now := <-t.fpsTicker.C:
			t.updateFPS(now)
		}
	}
}

// do runs fn on the loop goroutine and returns its error.
func (t *Tracker) do(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case t.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closed:
		return ErrTrackerClosed
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closed:
		return ErrTrackerClosed
	}
}

// tick starts one engine poll unless one is already in flight.
func (t *Tracker) tick(ctx context.Context) {
	if !t.tracking || t.paused || t.session != nil {
		return
	}
	if t.inflight {
		t.stats.SkippedTicks++
		return
	}
	t.inflight = true
	gen := t.generation
	go func() {
		sample, err := t.engine.Poll(ctx)
		select {
		case t.polls <- pollResult{sample: sample, err: err, gen: gen}:
		case <-ctx.Done():
		}
	}()
}

func (t *Tracker) handlePoll(res pollResult) {
	t.inflight = false
	if res.gen != t.generation || !t.tracking {
		return
	}
	if res.err != nil {
		t.stats.EngineErrors++
		t.pollFailures++
		if t.pollFailures == 1 || t.pollFailures%100 == 0 {
			t.logger.Warn("engine poll failed", "consecutive", t.pollFailures,
				"error", WrapEngineError("poll", res.err))
		}
		return
	}
	t.pollFailures = 0
	if res.sample == nil {
		return
	}

	u := t.pipeline.Process(*res.sample)
	t.recordFrame(u)
	t.publishSnapshot()
	if u.HasEstimate {
		t.broker.Publish(Event{Type: EventGaze, Gaze: &u})
	}
}

func (t *Tracker) recordFrame(u Update) {
	t.stats.TotalFrames++
	t.confSum += u.Raw.Confidence
	t.stats.AverageConfidence = t.confSum / float64(t.stats.TotalFrames)
	switch {
	case !u.Accepted:
		t.stats.LowConfidence++
	case u.Outlier:
		t.stats.Outliers++
	default:
		t.stats.AcceptedFrames++
	}
	t.stats.LastUpdate = time.Now()
	t.fpsFrames++
}

func (t *Tracker) updateFPS(now time.Time) {
	if !t.tracking {
		t.stats.FPS = 0
		t.fpsFrames = 0
		t.lastFPS = now
		return
	}
	if elapsed := now.Sub(t.lastFPS).Seconds(); elapsed > 0 {
		t.stats.FPS = float64(t.fpsFrames) / elapsed
	}
	t.fpsFrames = 0
	t.lastFPS = now
	t.publishSnapshot()
}

// StartTracking resolves the screen size (once), starts the engine and
// begins polling.
func (t *Tracker) StartTracking(ctx context.Context) error {
	return t.do(ctx, func() error {
		if t.tracking {
			return ErrAlreadyTracking
		}
		if t.cfg.ScreenWidth == 0 || t.cfg.ScreenHeight == 0 {
			cfg := t.cfg
			cfg.ScreenWidth, cfg.ScreenHeight = t.resolveScreen(ctx)
			t.rebuild(cfg)
		}

		err := t.engine.Start(ctx, EngineConfig{
			CameraID:     t.cameraID,
			ScreenWidth:  t.cfg.ScreenWidth,
			ScreenHeight: t.cfg.ScreenHeight,
		})
		if err != nil {
			t.logger.Error("engine start failed", "error", err)
			return WrapEngineError("start", err)
		}

		now := time.Now()
		t.tracking = true
		t.paused = false
		t.generation++
		t.pipeline.Reset()
		t.stats = Stats{TrackingSince: now}
		t.confSum = 0
		t.fpsFrames = 0
		t.lastFPS = now
		t.pollFailures = 0

		t.logger.Info("tracking started", "screen_width", t.cfg.ScreenWidth,
			"screen_height", t.cfg.ScreenHeight, "calibrated", t.pipeline.Model().Valid)
		t.broker.Publish(Event{Type: EventTrackingStarted})
		t.publishSnapshot()
		return nil
	})
}

func (t *Tracker) resolveScreen(ctx context.Context) (float64, float64) {
	w, h, err := t.engine.ScreenBounds(ctx)
	if err == nil && w > 0 && h > 0 {
		return w, h
	}
	t.logger.Warn("screen bounds unavailable, using fallback",
		"width", t.cfg.FallbackScreenWidth, "height", t.cfg.FallbackScreenHeight, "error", err)
	return t.cfg.FallbackScreenWidth, t.cfg.FallbackScreenHeight
}

// StopTracking stops the engine and clears all histories. Calling it when
// tracking is already stopped is a no-op.
func (t *Tracker) StopTracking(ctx context.Context) error {
	return t.do(ctx, t.stopTracking)
}

func (t *Tracker) stopTracking() error {
	t.cancelSession()

	var err error
	wasTracking := t.tracking
	if wasTracking {
		if stopErr := t.engine.Stop(); stopErr != nil {
			err = WrapEngineError("stop", stopErr)
			t.logger.Warn("engine stop failed", "error", stopErr)
		}
	}

	t.tracking = false
	t.paused = false
	t.generation++
	t.pipeline.Reset()
	t.stats.FPS = 0
	t.fpsFrames = 0

	if wasTracking {
		t.logger.Info("tracking stopped", "frames", t.stats.TotalFrames)
		t.broker.Publish(Event{Type: EventTrackingStopped})
	}
	t.publishSnapshot()
	return err
}

// Pause suspends polling without stopping the engine.
func (t *Tracker) Pause(ctx context.Context) error {
	return t.do(ctx, func() error {
		if !t.tracking {
			return ErrNotTracking
		}
		t.paused = true
		t.generation++
		t.logger.Info("tracking paused")
		t.publishSnapshot()
		return nil
	})
}

// Resume restarts polling after Pause. Histories are cleared so samples
// from before the pause never mix with new ones.
func (t *Tracker) Resume(ctx context.Context) error {
	return t.do(ctx, func() error {
		if !t.tracking {
			return ErrNotTracking
		}
		if t.paused {
			t.paused = false
			t.pipeline.Reset()
			t.logger.Info("tracking resumed")
		}
		t.publishSnapshot()
		return nil
	})
}

// StartCalibration begins a calibration session and returns its ID.
// Progress is reported through events.
func (t *Tracker) StartCalibration(ctx context.Context) (string, error) {
	var id string
	err := t.do(ctx, func() error {
		if !t.tracking {
			return ErrNotTracking
		}
		if t.session != nil {
			return ErrSessionAlreadyActive
		}

		w, h := t.pipeline.ScreenSize()
		sess := NewSession(t.cfg, w, h, t.engine, t.broker.Publish, t.logger)
		sctx, cancel := context.WithCancel(t.runCtx)
		t.session = sess
		t.sessionCancel = cancel
		t.abortRequested = false
		t.generation++
		id = sess.ID

		t.broker.Publish(Event{Type: EventCalibrationStarted, SessionID: id})
		go func() {
			res, err := sess.Run(sctx)
			select {
			case t.sessions <- sessionResult{session: sess, result: res, err: err}:
			case <-t.runCtx.Done():
			}
		}()
		t.publishSnapshot()
		return nil
	})
	return id, err
}

// AbortCalibration cancels the active session, if any. The prior model is kept.
func (t *Tracker) AbortCalibration(ctx context.Context) error {
	return t.do(ctx, func() error {
		t.cancelSession()
		return nil
	})
}

func (t *Tracker) cancelSession() {
	if t.session == nil {
		return
	}
	t.abortRequested = true
	t.sessionCancel()
}

func (t *Tracker) finishSession(res sessionResult) {
	if res.session != t.session {
		return
	}
	t.sessionCancel()
	t.session = nil
	t.sessionCancel = nil
	t.generation++

	err := res.err
	if err == nil && t.abortRequested {
		err = ErrSessionAborted
	}
	if err != nil {
		t.logger.Warn("calibration aborted", "session", res.session.ID, "error", err)
		t.broker.Publish(Event{
			Type:      EventCalibrationAborted,
			SessionID: res.session.ID,
			Aborted:   &CalibrationAborted{SessionID: res.session.ID, Reason: err.Error()},
		})
		t.publishSnapshot()
		return
	}

	t.pipeline.SetModel(res.result.Model)
	t.broker.Publish(Event{
		Type:      EventCalibrationComplete,
		SessionID: res.session.ID,
		Complete: &CalibrationComplete{
			SessionID:  res.session.ID,
			PointsUsed: len(res.result.Points),
			Model:      res.result.Model,
		},
	})
	t.publishSnapshot()
}

// LoadCalibration installs a previously fitted model, e.g. from a stored
// profile. It fails while a session is running.
func (t *Tracker) LoadCalibration(ctx context.Context, m Model) error {
	if !m.Valid || !finiteNonZero(m.Scale.X) || !finiteNonZero(m.Scale.Y) ||
		math.IsNaN(m.Offset.X) || math.IsNaN(m.Offset.Y) {
		return fmt.Errorf("%w: model is not a valid calibration", ErrInvalidConfig)
	}
	return t.do(ctx, func() error {
		if t.session != nil {
			return ErrSessionAlreadyActive
		}
		t.pipeline.SetModel(m)
		t.logger.Info("calibration loaded", "scale_x", m.Scale.X, "scale_y", m.Scale.Y)
		t.publishSnapshot()
		return nil
	})
}

// ResetCalibration reverts to the identity model.
func (t *Tracker) ResetCalibration(ctx context.Context) error {
	return t.do(ctx, func() error {
		if t.session != nil {
			return ErrSessionAlreadyActive
		}
		t.pipeline.SetModel(IdentityModel())
		t.publishSnapshot()
		return nil
	})
}

func finiteNonZero(v float64) bool {
	return v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// UpdateConfig applies fn to a copy of the config, validates it and swaps
// it in. Not allowed while a calibration session is active. Smoothing and
// outlier history restart; the calibration model is kept.
func (t *Tracker) UpdateConfig(ctx context.Context, fn func(*Config)) error {
	return t.do(ctx, func() error {
		if t.session != nil {
			return ErrSessionAlreadyActive
		}
		cfg := t.cfg
		fn(&cfg)
		if t.tracking && (cfg.ScreenWidth == 0 || cfg.ScreenHeight == 0) {
			cfg.ScreenWidth, cfg.ScreenHeight = t.cfg.ScreenWidth, t.cfg.ScreenHeight
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.PollInterval != t.cfg.PollInterval {
			t.pollTicker.Reset(cfg.PollInterval)
		}
		if cfg.FPSInterval != t.cfg.FPSInterval {
			t.fpsTicker.Reset(cfg.FPSInterval)
		}
		t.rebuild(cfg)
		t.logger.Info("config updated", "threshold", cfg.ConfidenceThreshold,
			"smoothing", cfg.Smoothing, "window", cfg.SmoothingWindow)
		t.publishSnapshot()
		return nil
	})
}

// rebuild replaces the config and pipeline, keeping the calibration model.
func (t *Tracker) rebuild(cfg Config) {
	model := t.pipeline.Model()
	t.cfg = cfg
	t.pipeline = NewPipeline(cfg)
	t.pipeline.SetModel(model)
}

func (t *Tracker) publishSnapshot() {
	w, h := t.pipeline.ScreenSize()
	stability := t.pipeline.Stability()
	model := t.pipeline.Model()
	s := &Snapshot{
		Tracking:     t.tracking,
		Paused:       t.paused,
		Calibrating:  t.session != nil,
		SessionState: SessionIdle.String(),
		Calibrated:   model.Valid,
		Model:        model,
		Stable:       stability.IsStable,
		Stability:    stability,
		ScreenWidth:  w,
		ScreenHeight: h,
		Stats:        t.stats,
		Config:       t.cfg,
	}
	if t.session != nil {
		s.SessionID = t.session.ID
		s.SessionState = t.session.State().String()
	}
	if est, ok := t.pipeline.Estimate(); ok {
		s.Estimate = &est
	}
	if raw, ok := t.pipeline.LastRaw(); ok {
		s.LastRaw = &raw
	}
	if t.tracking && !t.stats.TrackingSince.IsZero() {
		s.Stats.TrackingDuration = time.Since(t.stats.TrackingSince)
	}
	t.snap.Store(s)
}

// Snapshot returns the latest published state.
func (t *Tracker) Snapshot() Snapshot {
	return *t.snap.Load()
}

// FPS returns the samples processed per second over the last interval.
func (t *Tracker) FPS() float64 {
	return t.snap.Load().Stats.FPS
}

// IsStable reports the current fixation stability flag.
func (t *Tracker) IsStable() bool {
	return t.snap.Load().Stable
}

// IsCalibrated reports whether a valid calibration model is active.
func (t *Tracker) IsCalibrated() bool {
	return t.snap.Load().Calibrated
}

// Subscribe returns a subscription to the tracker's events.
func (t *Tracker) Subscribe(buffer int) *Subscription {
	return t.broker.Subscribe(buffer)
}
