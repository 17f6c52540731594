package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

func TestMockQueueAndHold(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	m.Push(gaze.RawSample{X: 1}, gaze.RawSample{X: 2})
	assert.Equal(t, 2, m.Pending())

	s, err := m.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.X)
	s, _ = m.Poll(ctx)
	assert.Equal(t, 2.0, s.X)

	s, err = m.Poll(ctx)
	require.NoError(t, err)
	assert.Nil(t, s, "empty queue without hold yields no sample")

	m.Hold(&gaze.RawSample{X: 9})
	for i := 0; i < 3; i++ {
		s, _ = m.Poll(ctx)
		require.NotNil(t, s)
		assert.Equal(t, 9.0, s.X)
	}
	assert.Equal(t, 6, m.CallCount("Poll"))
}

func TestMockRecordsStart(t *testing.T) {
	m := NewMock()
	cfg := gaze.EngineConfig{CameraID: 2, ScreenWidth: 800, ScreenHeight: 600}
	require.NoError(t, m.Start(context.Background(), cfg))
	require.NoError(t, m.Stop())

	assert.Equal(t, []gaze.EngineConfig{cfg}, m.Starts())
	assert.Equal(t, 1, m.CallCount("Start"))
	assert.Equal(t, 1, m.CallCount("Stop"))
	assert.Len(t, m.Calls(), 2)

	m.Reset()
	assert.Empty(t, m.Calls())
}

func TestMockFuncOverrides(t *testing.T) {
	boom := errors.New("camera unplugged")
	m := NewMock()
	m.PollFunc = func(ctx context.Context) (*gaze.RawSample, error) {
		return nil, boom
	}
	_, err := m.Poll(context.Background())
	assert.ErrorIs(t, err, boom)

	w, h, err := m.ScreenBounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1920.0, w)
	assert.Equal(t, 1080.0, h)
}
