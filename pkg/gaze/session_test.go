package gaze

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// targetSampler answers polls for whichever target was presented last,
// reporting observed = target/2 - 10.
type targetSampler struct {
	mu         sync.Mutex
	target     *TargetPresented
	confidence func(index, poll int) float64
	polls      map[int]int
	events     []Event
}

func newTargetSampler(confidence func(index, poll int) float64) *targetSampler {
	return &targetSampler{confidence: confidence, polls: make(map[int]int)}
}

func (s *targetSampler) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	if ev.Target != nil {
		s.target = ev.Target
	}
}

func (s *targetSampler) Poll(ctx context.Context) (*RawSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == nil {
		return nil, nil
	}
	idx := s.target.Index
	n := s.polls[idx]
	s.polls[idx]++
	return &RawSample{
		X:          s.target.X/2 - 10,
		Y:          s.target.Y/2 - 10,
		Confidence: s.confidence(idx, n),
	}, nil
}

func fastSessionConfig() Config {
	cfg := DefaultConfig()
	cfg.CalibrationSettleDelay = 0
	cfg.CalibrationSampleInterval = 0
	cfg.CalibrationSamples = 4
	cfg.CalibrationLowSamples = 3
	return cfg
}

func TestCalibrationTargets(t *testing.T) {
	t.Parallel()

	targets := CalibrationTargets(1000, 500)
	require.Len(t, targets, 9)
	assert.Equal(t, Target{Index: 0, NormX: 0.1, NormY: 0.1, X: 100, Y: 50}, targets[0])
	assert.Equal(t, Target{Index: 1, NormX: 0.5, NormY: 0.1, X: 500, Y: 50}, targets[1], "row-major order")
	assert.Equal(t, Target{Index: 4, NormX: 0.5, NormY: 0.5, X: 500, Y: 250}, targets[4])
	assert.Equal(t, Target{Index: 8, NormX: 0.9, NormY: 0.9, X: 900, Y: 450}, targets[8])
}

func TestSessionFitsModel(t *testing.T) {
	t.Parallel()

	sampler := newTargetSampler(func(int, int) float64 { return 0.9 })
	s := NewSession(fastSessionConfig(), 1920, 1080, sampler, sampler.publish, nil)
	assert.Equal(t, SessionIdle, s.State())

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SessionComplete, s.State())
	assert.Equal(t, s.ID, res.ID)
	assert.Len(t, res.Points, 9)
	assert.Empty(t, res.Skipped)
	assert.Empty(t, res.LowSample)

	assert.InDelta(t, 2.0, res.Model.Scale.X, 1e-9)
	assert.InDelta(t, 2.0, res.Model.Scale.Y, 1e-9)
	assert.InDelta(t, 10.0, res.Model.Offset.X, 1e-9)
	assert.InDelta(t, 10.0, res.Model.Offset.Y, 1e-9)

	require.Len(t, sampler.events, 9)
	for i, ev := range sampler.events {
		assert.Equal(t, EventTargetPresented, ev.Type)
		assert.Equal(t, i, ev.Target.Index)
		assert.Equal(t, s.ID, ev.SessionID)
	}
	for idx := 0; idx < 9; idx++ {
		assert.Equal(t, 4, sampler.polls[idx], "target %d polled CalibrationSamples times", idx)
	}
}

func TestSessionSkipsTargetsWithoutQualifyingSamples(t *testing.T) {
	t.Parallel()

	// Confidence must be strictly above CalibrationMinConfidence.
	sampler := newTargetSampler(func(idx, _ int) float64 {
		if idx < 4 {
			return 0.5
		}
		return 0.9
	})
	s := NewSession(fastSessionConfig(), 1920, 1080, sampler, sampler.publish, nil)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, res.Skipped)
	assert.Len(t, res.Points, 5)
	assert.InDelta(t, 2.0, res.Model.Scale.X, 1e-9)
}

func TestSessionFailsWithTooFewTargets(t *testing.T) {
	t.Parallel()

	sampler := newTargetSampler(func(idx, _ int) float64 {
		if idx < 5 {
			return 0.1
		}
		return 0.9
	})
	s := NewSession(fastSessionConfig(), 1920, 1080, sampler, sampler.publish, nil)

	res, err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrInsufficientData)
	assert.Equal(t, SessionAborted, s.State())
	assert.Len(t, res.Points, 4)
	assert.False(t, res.Model.Valid)
}

// A target with a single qualifying sample is accepted. This is a known
// accuracy risk: one noisy frame becomes a full regression point. It is
// only reported through LowSample.
func TestSessionAcceptsSingleSampleTarget(t *testing.T) {
	t.Parallel()

	sampler := newTargetSampler(func(_ int, poll int) float64 {
		if poll == 0 {
			return 0.9
		}
		return 0.2
	})
	s := NewSession(fastSessionConfig(), 1920, 1080, sampler, sampler.publish, nil)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Points, 9)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, res.LowSample)
	assert.True(t, res.Model.Valid)
}

func TestSessionAbortDuringSettle(t *testing.T) {
	t.Parallel()

	cfg := fastSessionConfig()
	cfg.CalibrationSettleDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	presented := make(chan struct{}, 9)
	sampler := newTargetSampler(func(int, int) float64 { return 0.9 })
	publish := func(ev Event) {
		sampler.publish(ev)
		presented <- struct{}{}
	}
	s := NewSession(cfg, 1920, 1080, sampler, publish, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(ctx)
		done <- err
	}()

	<-presented
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrSessionAborted))
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop promptly on cancel")
	}
	assert.Equal(t, SessionAborted, s.State())
}

func TestSessionStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "presenting", SessionPresenting.String())
	assert.Equal(t, "complete", SessionComplete.String())
	assert.Equal(t, "SessionState(42)", SessionState(42).String())
}
