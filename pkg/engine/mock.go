package engine

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Mock implements gaze.Engine for testing.
//
// By default Poll pops queued samples in order; once the queue is empty it
// returns the Hold sample if set, or nil.
type Mock struct {
	// StartFunc is called when Start is invoked.
	StartFunc func(ctx context.Context, cfg gaze.EngineConfig) error

	// PollFunc replaces the queue when set.
	PollFunc func(ctx context.Context) (*gaze.RawSample, error)

	// StopFunc is called when Stop is invoked.
	StopFunc func() error

	// BoundsFunc is called when ScreenBounds is invoked.
	BoundsFunc func(ctx context.Context) (float64, float64, error)

	mu     sync.Mutex
	queue  []gaze.RawSample
	hold   *gaze.RawSample
	calls  []MockCall
	starts []gaze.EngineConfig
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock creates a mock engine that reports a 1920x1080 screen.
func NewMock() *Mock {
	return &Mock{
		BoundsFunc: func(ctx context.Context) (float64, float64, error) {
			return 1920, 1080, nil
		},
	}
}

// Push queues samples for Poll.
func (m *Mock) Push(samples ...gaze.RawSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, samples...)
}

// Hold makes Poll return s whenever the queue is empty. Pass nil to clear.
func (m *Mock) Hold(s *gaze.RawSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hold = s
}

// Pending returns the number of queued samples.
func (m *Mock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Start calls StartFunc and records the call.
func (m *Mock) Start(ctx context.Context, cfg gaze.EngineConfig) error {
	m.record("Start")
	m.mu.Lock()
	m.starts = append(m.starts, cfg)
	m.mu.Unlock()
	if m.StartFunc != nil {
		return m.StartFunc(ctx, cfg)
	}
	return nil
}

// Poll calls PollFunc, or pops the queue.
func (m *Mock) Poll(ctx context.Context) (*gaze.RawSample, error) {
	m.record("Poll")
	if m.PollFunc != nil {
		return m.PollFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) > 0 {
		s := m.queue[0]
		m.queue = m.queue[1:]
		return &s, nil
	}
	if m.hold != nil {
		s := *m.hold
		return &s, nil
	}
	return nil, nil
}

// Stop calls StopFunc and records the call.
func (m *Mock) Stop() error {
	m.record("Stop")
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

// ScreenBounds calls BoundsFunc and records the call.
func (m *Mock) ScreenBounds(ctx context.Context) (float64, float64, error) {
	m.record("ScreenBounds")
	if m.BoundsFunc != nil {
		return m.BoundsFunc(ctx)
	}
	return 0, 0, ErrNoBounds
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Time:   time.Now(),
	})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of calls to a method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Starts returns the configs passed to Start.
func (m *Mock) Starts() []gaze.EngineConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]gaze.EngineConfig(nil), m.starts...)
}

// Reset clears recorded calls and queued samples.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.starts = nil
	m.queue = nil
	m.hold = nil
}

var _ gaze.Engine = (*Mock)(nil)
