package gaze

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SessionState is a calibration session's position in its state machine.
type SessionState int32

const (
	SessionIdle       SessionState = iota // Created, not yet started
	SessionPresenting                     // Target shown, waiting out the settle delay
	SessionSampling                       // Collecting samples for the current target
	SessionFitting                        // All targets done, regressing the model
	SessionComplete                       // Model fitted and handed to the tracker
	SessionAborted                        // Cancelled or failed; no model produced
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionPresenting:
		return "presenting"
	case SessionSampling:
		return "sampling"
	case SessionFitting:
		return "fitting"
	case SessionComplete:
		return "complete"
	case SessionAborted:
		return "aborted"
	}
	return fmt.Sprintf("SessionState(%d)", int32(s))
}

// gridSteps are the normalized target coordinates of the 3x3 grid.
var gridSteps = [3]float64{0.1, 0.5, 0.9}

// Target is one calibration target.
type Target struct {
	Index int
	NormX float64 // 0-1
	NormY float64
	X     float64 // Screen pixels
	Y     float64
}

// CalibrationTargets returns the 9 targets in row-major order.
func CalibrationTargets(width, height float64) []Target {
	targets := make([]Target, 0, len(gridSteps)*len(gridSteps))
	for _, ny := range gridSteps {
		for _, nx := range gridSteps {
			targets = append(targets, Target{
				Index: len(targets),
				NormX: nx,
				NormY: ny,
				X:     nx * width,
				Y:     ny * height,
			})
		}
	}
	return targets
}

// Sampler is the part of Engine a session needs.
type Sampler interface {
	Poll(ctx context.Context) (*RawSample, error)
}

// SessionResult summarizes a finished session.
type SessionResult struct {
	ID        string
	Points    []CalibrationPoint
	Model     Model
	Skipped   []int // Targets with no qualifying sample
	LowSample []int // Targets fitted from fewer than CalibrationLowSamples samples
}

// Session runs the fixed 9-point calibration protocol. It only reads from
// the sampler and returns a candidate model; installing the model is the
// caller's job.
type Session struct {
	ID string

	cfg     Config
	width   float64
	height  float64
	sampler Sampler
	publish func(Event)
	logger  *slog.Logger
	state   atomic.Int32
}

// NewSession creates an idle session. publish may be nil.
func NewSession(cfg Config, width, height float64, sampler Sampler, publish func(Event), logger *slog.Logger) *Session {
	if publish == nil {
		publish = func(Event) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		ID:      id,
		cfg:     cfg,
		width:   width,
		height:  height,
		sampler: sampler,
		publish: publish,
		logger:  logger.With("session", id),
	}
}

// State returns the current state. Safe to call from any goroutine.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
}

// Run presents every target, samples it, and fits the model. Cancelling
// ctx stops any pending wait immediately and returns ErrSessionAborted.
func (s *Session) Run(ctx context.Context) (SessionResult, error) {
	res := SessionResult{ID: s.ID}
	targets := CalibrationTargets(s.width, s.height)
	s.logger.Info("calibration started", "targets", len(targets))

	for _, target := range targets {
		s.setState(SessionPresenting)
		s.publish(Event{
			Type:      EventTargetPresented,
			SessionID: s.ID,
			Target: &TargetPresented{
				SessionID: s.ID,
				Index:     target.Index,
				X:         target.X,
				Y:         target.Y,
			},
		})
		if err := sleepCtx(ctx, s.cfg.CalibrationSettleDelay); err != nil {
			return res, s.abort(err)
		}

		s.setState(SessionSampling)
		point, count, err := s.sampleTarget(ctx, target)
		if err != nil {
			return res, s.abort(err)
		}
		if count == 0 {
			s.logger.Warn("calibration target skipped, no qualifying samples", "target", target.Index)
			res.Skipped = append(res.Skipped, target.Index)
			continue
		}
		if count < s.cfg.CalibrationLowSamples {
			s.logger.Warn("calibration target has few samples", "target", target.Index, "samples", count)
			res.LowSample = append(res.LowSample, target.Index)
		}
		res.Points = append(res.Points, point)
	}

	s.setState(SessionFitting)
	model, err := Fit(res.Points, s.cfg.CalibrationMinPoints)
	if err != nil {
		s.setState(SessionAborted)
		s.logger.Warn("calibration fit failed", "points", len(res.Points), "error", err)
		return res, err
	}
	res.Model = model
	s.setState(SessionComplete)
	s.logger.Info("calibration complete", "points", len(res.Points),
		"scale_x", model.Scale.X, "scale_y", model.Scale.Y,
		"offset_x", model.Offset.X, "offset_y", model.Offset.Y)
	return res, nil
}

func (s *Session) abort(cause error) error {
	s.setState(SessionAborted)
	return fmt.Errorf("%w: %w", ErrSessionAborted, cause)
}

// sampleTarget polls the engine CalibrationSamples times and averages the
// samples whose confidence exceeds CalibrationMinConfidence.
func (s *Session) sampleTarget(ctx context.Context, target Target) (CalibrationPoint, int, error) {
	var (
		sumX, sumY, sumConf float64
		count               int
		lastTs              int64
	)
	for i := 0; i < s.cfg.CalibrationSamples; i++ {
		if i > 0 {
			if err := sleepCtx(ctx, s.cfg.CalibrationSampleInterval); err != nil {
				return CalibrationPoint{}, 0, err
			}
		} else if err := ctx.Err(); err != nil {
			return CalibrationPoint{}, 0, err
		}

		sample, err := s.sampler.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return CalibrationPoint{}, 0, ctx.Err()
			}
			s.logger.Debug("calibration poll failed", "target", target.Index, "error", err)
			continue
		}
		if sample == nil || sample.Confidence <= s.cfg.CalibrationMinConfidence {
			continue
		}
		sumX += sample.X
		sumY += sample.Y
		sumConf += sample.Confidence
		lastTs = sample.TimestampMs
		count++
	}

	if count == 0 {
		return CalibrationPoint{}, 0, nil
	}
	n := float64(count)
	return CalibrationPoint{
		TargetX:     target.X,
		TargetY:     target.Y,
		ObservedX:   sumX / n,
		ObservedY:   sumY / n,
		Confidence:  sumConf / n,
		TimestampMs: lastTs,
	}, count, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
