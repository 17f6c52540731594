package protocol

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// Payload maps a tracker event to its message type and typed data.
func Payload(ev gaze.Event) (MessageType, any, error) {
	switch ev.Type {
	case gaze.EventGaze:
		if ev.Gaze == nil {
			return "", nil, fmt.Errorf("protocol: gaze event without update")
		}
		return TypeGaze, NewGazeData(*ev.Gaze), nil

	case gaze.EventTrackingStarted:
		return TypeTracking, TrackingData{Tracking: true}, nil

	case gaze.EventTrackingStopped:
		return TypeTracking, TrackingData{Tracking: false}, nil

	case gaze.EventCalibrationStarted:
		return TypeCalibrationStarted, CalibrationData{SessionID: ev.SessionID}, nil

	case gaze.EventTargetPresented:
		if ev.Target == nil {
			return "", nil, fmt.Errorf("protocol: target event without target")
		}
		return TypeCalibrationTarget, TargetData{
			SessionID: ev.Target.SessionID,
			Index:     ev.Target.Index,
			X:         ev.Target.X,
			Y:         ev.Target.Y,
		}, nil

	case gaze.EventCalibrationComplete:
		if ev.Complete == nil {
			return "", nil, fmt.Errorf("protocol: complete event without result")
		}
		m := ev.Complete.Model
		return TypeCalibrationComplete, CalibrationData{
			SessionID:  ev.Complete.SessionID,
			PointsUsed: ev.Complete.PointsUsed,
			ScaleX:     m.Scale.X,
			ScaleY:     m.Scale.Y,
			OffsetX:    m.Offset.X,
			OffsetY:    m.Offset.Y,
		}, nil

	case gaze.EventCalibrationAborted:
		data := AbortData{SessionID: ev.SessionID}
		if ev.Aborted != nil {
			data.Reason = ev.Aborted.Reason
		}
		return TypeCalibrationAborted, data, nil
	}
	return "", nil, fmt.Errorf("protocol: unknown event type %q", ev.Type)
}

// FromEvent creates a JSON message from a tracker event, stamped with the
// event time.
func FromEvent(ev gaze.Event) (*Message, error) {
	msgType, data, err := Payload(ev)
	if err != nil {
		return nil, err
	}
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return newMessageAt(msgType, ts, data)
}

// NewGazeData flattens a pipeline update.
func NewGazeData(u gaze.Update) GazeData {
	return GazeData{
		X:             u.Stabilized.X,
		Y:             u.Stabilized.Y,
		Confidence:    u.Stabilized.Confidence,
		Calibrated:    u.Stabilized.Calibrated,
		RawX:          u.Raw.X,
		RawY:          u.Raw.Y,
		RawConfidence: u.Raw.Confidence,
		RawTimestamp:  u.Raw.TimestampMs,
		Accepted:      u.Accepted,
		Outlier:       u.Outlier,
		Stable:        u.Stability.IsStable,
		Variance:      u.Stability.Variance,
		Movement:      u.Stability.Movement,
	}
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response to a ping
func NewPongMessage(ping PingData) (*Message, error) {
	now := time.Now().UnixMilli()
	return NewMessage(TypePong, PongData{
		ID:        ping.ID,
		PingTS:    ping.Timestamp,
		PongTS:    now,
		LatencyMs: now - ping.Timestamp,
	})
}
