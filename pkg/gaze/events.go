package gaze

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a published event.
type EventType string

const (
	EventGaze                EventType = "gaze"
	EventTrackingStarted     EventType = "tracking-started"
	EventTrackingStopped     EventType = "tracking-stopped"
	EventCalibrationStarted  EventType = "calibration-started"
	EventTargetPresented     EventType = "target-presented"
	EventCalibrationComplete EventType = "calibration-complete"
	EventCalibrationAborted  EventType = "calibration-aborted"
)

// TargetPresented asks the host UI to show calibration target Index.
type TargetPresented struct {
	SessionID string  `json:"session_id"`
	Index     int     `json:"index"`
	X         float64 `json:"x"` // Screen pixels
	Y         float64 `json:"y"`
}

// CalibrationComplete reports a successful fit.
type CalibrationComplete struct {
	SessionID  string `json:"session_id"`
	PointsUsed int    `json:"points_used"`
	Model      Model  `json:"model"`
}

// CalibrationAborted reports a failed or cancelled session.
type CalibrationAborted struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// Event is one message on the tracker's stream. Exactly one payload field
// is set, matching Type; lifecycle events carry none except SessionID.
type Event struct {
	Type      EventType            `json:"type"`
	Time      time.Time            `json:"time"`
	SessionID string               `json:"session_id,omitempty"`
	Gaze      *Update              `json:"gaze,omitempty"`
	Target    *TargetPresented     `json:"target,omitempty"`
	Complete  *CalibrationComplete `json:"complete,omitempty"`
	Aborted   *CalibrationAborted  `json:"aborted,omitempty"`
}

// Subscription receives events from a Broker until cancelled.
type Subscription struct {
	ID string
	C  <-chan Event

	ch     chan Event
	broker *Broker
	once   sync.Once
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.broker.unsubscribe(s)
}

// Broker fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	dropped atomic.Uint64
	logger  *slog.Logger
}

// NewBroker creates an empty broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:   make(map[string]*Subscription),
		logger: logger,
	}
}

// Subscribe registers a subscriber with the given channel buffer.
func (b *Broker) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{
		ID:     uuid.NewString(),
		C:      ch,
		ch:     ch,
		broker: b,
	}
	b.mu.Lock()
	b.subs[sub.ID] = sub
	count := len(b.subs)
	b.mu.Unlock()
	b.logger.Debug("subscriber added", "id", sub.ID, "total", count)
	return sub
}

func (b *Broker) unsubscribe(s *Subscription) {
	s.once.Do(func() {
		b.mu.Lock()
		delete(b.subs, s.ID)
		close(s.ch)
		b.mu.Unlock()
	})
}

// Publish delivers ev to every subscriber that has room.
func (b *Broker) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// Subscriber is too slow
			b.dropped.Add(1)
		}
	}
}

// Len returns the number of subscribers.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

// Close unsubscribes everyone.
func (b *Broker) Close() {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()
	for _, s := range subs {
		s.Close()
	}
}
