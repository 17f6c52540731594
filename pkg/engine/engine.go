// Package engine provides gaze.Engine implementations for external
// eye-tracking inference programs.
//
// All transports deliver the same JSON sample format and keep only the
// newest sample that has not been polled yet, so a slow poller never sees
// a backlog of stale gaze positions.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Sentinel errors for common conditions.
var (
	// ErrNotStarted is returned when polling an engine that is not running.
	ErrNotStarted = errors.New("engine: not started")

	// ErrAlreadyStarted is returned by Start on a running engine.
	ErrAlreadyStarted = errors.New("engine: already started")

	// ErrMalformedSample is returned when a wire sample cannot be decoded.
	ErrMalformedSample = errors.New("engine: malformed sample")

	// ErrNoBounds is returned when the engine cannot report screen bounds.
	ErrNoBounds = errors.New("engine: screen bounds unknown")
)

// Option configures an engine.
type Option func(*options)

type options struct {
	logger *slog.Logger
	width  float64
	height float64
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithScreenBounds makes ScreenBounds report a fixed size instead of
// ErrNoBounds.
func WithScreenBounds(width, height float64) Option {
	return func(o *options) {
		o.width = width
		o.height = height
	}
}

func (o options) bounds() (float64, float64, error) {
	if o.width > 0 && o.height > 0 {
		return o.width, o.height, nil
	}
	return 0, 0, ErrNoBounds
}

// Sample is the wire format emitted by inference programs.
type Sample struct {
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Confidence float64        `json:"confidence"`
	Timestamp  int64          `json:"timestamp"` // Unix milliseconds
	HeadPose   *gaze.HeadPose `json:"head_pose,omitempty"`
}

// DecodeSample parses one JSON sample. Samples without a timestamp are
// stamped with the current time.
func DecodeSample(data []byte) (gaze.RawSample, error) {
	var s Sample
	if err := json.Unmarshal(data, &s); err != nil {
		return gaze.RawSample{}, fmt.Errorf("%w: %v", ErrMalformedSample, err)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return gaze.RawSample{}, fmt.Errorf("%w: confidence %v not in [0,1]", ErrMalformedSample, s.Confidence)
	}
	if s.Timestamp == 0 {
		s.Timestamp = time.Now().UnixMilli()
	}
	return gaze.RawSample{
		X:           s.X,
		Y:           s.Y,
		Confidence:  s.Confidence,
		TimestampMs: s.Timestamp,
		HeadPose:    s.HeadPose,
	}, nil
}

// EncodeSample renders a sample in the wire format.
func EncodeSample(s gaze.RawSample) ([]byte, error) {
	return json.Marshal(Sample{
		X:          s.X,
		Y:          s.Y,
		Confidence: s.Confidence,
		Timestamp:  s.TimestampMs,
		HeadPose:   s.HeadPose,
	})
}

// Mailbox holds the newest unpolled sample. Put overwrites, Take empties.
type Mailbox struct {
	mu       sync.Mutex
	sample   *gaze.RawSample
	received uint64
	replaced uint64
}

// Put stores s, replacing any sample that was never taken.
func (m *Mailbox) Put(s gaze.RawSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sample != nil {
		m.replaced++
	}
	m.sample = &s
	m.received++
}

// Take returns the pending sample, or nil if there is none.
func (m *Mailbox) Take() *gaze.RawSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sample
	m.sample = nil
	return s
}

// Clear drops any pending sample.
func (m *Mailbox) Clear() {
	m.mu.Lock()
	m.sample = nil
	m.mu.Unlock()
}

// Counts returns how many samples were received and how many were
// overwritten before being polled.
func (m *Mailbox) Counts() (received, replaced uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received, m.replaced
}
