package engine

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

func TestDecodeSample(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    gaze.RawSample
		wantErr bool
	}{
		{
			name:  "full sample",
			input: `{"x":512.5,"y":300,"confidence":0.87,"timestamp":1700000000123,"head_pose":{"yaw":3.5,"pitch":-2,"roll":0}}`,
			want: gaze.RawSample{
				X: 512.5, Y: 300, Confidence: 0.87, TimestampMs: 1700000000123,
				HeadPose: &gaze.HeadPose{Yaw: 3.5, Pitch: -2},
			},
		},
		{
			name:  "extra fields ignored",
			input: `{"x":1,"y":2,"confidence":0.5,"timestamp":9,"left_eye_landmarks":[[0.1,0.2]]}`,
			want:  gaze.RawSample{X: 1, Y: 2, Confidence: 0.5, TimestampMs: 9},
		},
		{name: "not json", input: `x=1`, wantErr: true},
		{name: "confidence above one", input: `{"x":1,"y":2,"confidence":1.5,"timestamp":1}`, wantErr: true},
		{name: "negative confidence", input: `{"x":1,"y":2,"confidence":-0.1,"timestamp":1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeSample([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedSample))
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeSample mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeSampleStampsMissingTimestamp(t *testing.T) {
	s, err := DecodeSample([]byte(`{"x":1,"y":2,"confidence":0.9}`))
	require.NoError(t, err)
	assert.Positive(t, s.TimestampMs)
}

func TestEncodeSampleIsDecodable(t *testing.T) {
	in := gaze.RawSample{X: 10, Y: 20, Confidence: 0.75, TimestampMs: 42}
	data, err := EncodeSample(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":10,"y":20,"confidence":0.75,"timestamp":42}`, string(data))

	out, err := DecodeSample(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestMailboxKeepsNewest(t *testing.T) {
	var box Mailbox
	assert.Nil(t, box.Take(), "empty mailbox")

	box.Put(gaze.RawSample{X: 1})
	box.Put(gaze.RawSample{X: 2})
	box.Put(gaze.RawSample{X: 3})

	got := box.Take()
	require.NotNil(t, got)
	assert.Equal(t, 3.0, got.X)
	assert.Nil(t, box.Take(), "sample is only delivered once")

	received, replaced := box.Counts()
	assert.Equal(t, uint64(3), received)
	assert.Equal(t, uint64(2), replaced)
}

func TestMailboxClear(t *testing.T) {
	var box Mailbox
	box.Put(gaze.RawSample{X: 1})
	box.Clear()
	assert.Nil(t, box.Take())
}

func TestScreenBoundsOption(t *testing.T) {
	w, h, err := NewProcess("true", nil).ScreenBounds(t.Context())
	assert.ErrorIs(t, err, ErrNoBounds)
	assert.Zero(t, w)
	assert.Zero(t, h)

	w, h, err = NewProcess("true", nil, WithScreenBounds(2560, 1440)).ScreenBounds(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2560.0, w)
	assert.Equal(t, 1440.0, h)
}
