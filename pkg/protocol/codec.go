package protocol

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Format selects the wire encoding used by Encoder.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCBOR:
		return FormatCBOR, nil
	}
	return "", fmt.Errorf("protocol: unknown format %q", s)
}

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so identical
// messages produce identical bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// cborMessage mirrors Message with the payload kept as a CBOR value.
// Payload structs reuse their json tags as CBOR map keys.
type cborMessage struct {
	Type      MessageType     `cbor:"type"`
	Timestamp int64           `cbor:"ts,omitempty"`
	Data      cbor.RawMessage `cbor:"data,omitempty"`
}

// Encoder renders typed payloads in one wire format.
type Encoder struct {
	format Format
}

// NewEncoder creates an encoder for format.
func NewEncoder(format Format) (*Encoder, error) {
	if format != FormatJSON && format != FormatCBOR {
		return nil, fmt.Errorf("protocol: unknown format %q", format)
	}
	return &Encoder{format: format}, nil
}

// Format returns the encoder's wire format.
func (e *Encoder) Format() Format {
	return e.format
}

// ContentType returns the MIME type of encoded messages.
func (e *Encoder) ContentType() string {
	if e.format == FormatCBOR {
		return "application/cbor"
	}
	return "application/json"
}

// Encode wraps data in the message envelope.
func (e *Encoder) Encode(msgType MessageType, timestampMs int64, data any) ([]byte, error) {
	if e.format == FormatJSON {
		msg := &Message{Type: msgType, Timestamp: timestampMs}
		if data != nil {
			tmp, err := NewMessage(msgType, data)
			if err != nil {
				return nil, err
			}
			msg.Data = tmp.Data
		}
		return msg.Bytes()
	}

	msg := cborMessage{Type: msgType, Timestamp: timestampMs}
	if data != nil {
		raw, err := encMode.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
		msg.Data = raw
	}
	return encMode.Marshal(msg)
}

// DecodeCBOR parses a CBOR envelope and decodes its payload into v.
// v may be nil to read only the envelope.
func DecodeCBOR(b []byte, v any) (MessageType, int64, error) {
	var msg cborMessage
	if err := decMode.Unmarshal(b, &msg); err != nil {
		return "", 0, fmt.Errorf("failed to parse message: %w", err)
	}
	if v != nil && len(msg.Data) > 0 {
		if err := decMode.Unmarshal(msg.Data, v); err != nil {
			return "", 0, fmt.Errorf("failed to parse message data: %w", err)
		}
	}
	return msg.Type, msg.Timestamp, nil
}
