// Package protocol defines the wire messages for gaze streaming.
// The same payloads are used by the WebSocket hubs and the MQTT bridge.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of message
type MessageType string

const (
	// Tracker → clients
	TypeGaze                MessageType = "gaze"                 // Stabilized estimate
	TypeTracking            MessageType = "tracking"             // Tracking started or stopped
	TypeCalibrationStarted  MessageType = "calibration.started"  // Session began
	TypeCalibrationTarget   MessageType = "calibration.target"   // Show a target
	TypeCalibrationComplete MessageType = "calibration.complete" // New model installed
	TypeCalibrationAborted  MessageType = "calibration.aborted"  // Session failed or cancelled
	TypeStatus              MessageType = "status"               // Tracker snapshot

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all JSON messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	return newMessageAt(msgType, time.Now(), data)
}

func newMessageAt(msgType MessageType, ts time.Time, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: ts.UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Tracker → Client Message Types
// =============================================================================

// GazeData is one stabilized gaze estimate with the raw sample behind it
type GazeData struct {
	X          float64 `json:"x"`          // Screen pixels
	Y          float64 `json:"y"`          // Screen pixels
	Confidence float64 `json:"confidence"` // 0.0 to 1.0, latest accepted sample
	Calibrated bool    `json:"calibrated"`

	RawX          float64 `json:"raw_x"`
	RawY          float64 `json:"raw_y"`
	RawConfidence float64 `json:"raw_confidence"`
	RawTimestamp  int64   `json:"raw_ts,omitempty"` // Engine clock, Unix milliseconds
	Accepted      bool    `json:"accepted"`         // Raw sample passed the confidence gate
	Outlier       bool    `json:"outlier"`

	Stable   bool    `json:"stable"`
	Variance float64 `json:"variance"` // Squared pixels
	Movement float64 `json:"movement"` // Pixels
}

// TrackingData reports a tracking state change
type TrackingData struct {
	Tracking bool `json:"tracking"`
}

// TargetData asks the UI to show a calibration target
type TargetData struct {
	SessionID string  `json:"session_id"`
	Index     int     `json:"index"` // 0-8, row-major
	X         float64 `json:"x"`     // Screen pixels
	Y         float64 `json:"y"`
}

// CalibrationData reports a session start or a fitted model
type CalibrationData struct {
	SessionID  string  `json:"session_id"`
	PointsUsed int     `json:"points_used,omitempty"`
	ScaleX     float64 `json:"scale_x,omitempty"`
	ScaleY     float64 `json:"scale_y,omitempty"`
	OffsetX    float64 `json:"offset_x,omitempty"`
	OffsetY    float64 `json:"offset_y,omitempty"`
}

// AbortData reports why a session ended without a model
type AbortData struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
