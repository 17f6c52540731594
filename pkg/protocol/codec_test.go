package protocol

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{" CBOR ", FormatCBOR, false},
		{"msgpack", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestEncoderJSON(t *testing.T) {
	enc, err := NewEncoder(FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "application/json", enc.ContentType())

	b, err := enc.Encode(TypeCalibrationTarget, 42, TargetData{SessionID: "s", Index: 1, X: 960, Y: 108})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"calibration.target","ts":42,"data":{"session_id":"s","index":1,"x":960,"y":108}}`, string(b))

	msg, err := ParseMessage(b)
	require.NoError(t, err)
	assert.Equal(t, int64(42), msg.Timestamp)
}

func TestEncoderCBOR(t *testing.T) {
	enc, err := NewEncoder(FormatCBOR)
	require.NoError(t, err)
	assert.Equal(t, "application/cbor", enc.ContentType())

	in := GazeData{X: 640.5, Y: 360, Confidence: 0.9, Calibrated: true, Stable: true, Variance: 4.5}
	b, err := enc.Encode(TypeGaze, 1700000000000, in)
	require.NoError(t, err)
	assert.False(t, json.Valid(b), "CBOR output is binary")

	var out GazeData
	msgType, ts, err := DecodeCBOR(b, &out)
	require.NoError(t, err)
	assert.Equal(t, TypeGaze, msgType)
	assert.Equal(t, int64(1700000000000), ts)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("CBOR payload mismatch (-want +got):\n%s", diff)
	}

	again, err := enc.Encode(TypeGaze, 1700000000000, in)
	require.NoError(t, err)
	assert.Equal(t, b, again, "encoding is deterministic")
}

func TestEncoderCBORWithoutData(t *testing.T) {
	enc, err := NewEncoder(FormatCBOR)
	require.NoError(t, err)
	b, err := enc.Encode(TypePing, 1, nil)
	require.NoError(t, err)

	msgType, _, err := DecodeCBOR(b, nil)
	require.NoError(t, err)
	assert.Equal(t, TypePing, msgType)
}

func TestNewEncoderUnknownFormat(t *testing.T) {
	_, err := NewEncoder("xml")
	assert.Error(t, err)
}
