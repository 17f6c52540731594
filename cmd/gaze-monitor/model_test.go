package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

type fakeAPI struct {
	snap    gaze.Snapshot
	actions []string
	err     error
}

func (f *fakeAPI) Status(ctx context.Context) (gaze.Snapshot, error) {
	return f.snap, f.err
}

func (f *fakeAPI) Tracking(ctx context.Context, action string) (gaze.Snapshot, error) {
	f.actions = append(f.actions, action)
	return f.snap, f.err
}

func (f *fakeAPI) StartCalibration(ctx context.Context) (string, error) {
	f.actions = append(f.actions, "calibrate")
	return "session", f.err
}

func (f *fakeAPI) AbortCalibration(ctx context.Context) error {
	f.actions = append(f.actions, "abort")
	return f.err
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func mustMessage(t *testing.T, typ protocol.MessageType, data any) streamMsg {
	t.Helper()
	msg, err := protocol.NewMessage(typ, data)
	require.NoError(t, err)
	return streamMsg{msg: msg}
}

func TestKeysRunActions(t *testing.T) {
	tests := []struct {
		key    string
		paused bool
		want   string
	}{
		{"s", false, "start"},
		{"x", false, "stop"},
		{"p", false, "pause"},
		{"p", true, "resume"},
		{"c", false, "calibrate"},
		{"a", false, "abort"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			api := &fakeAPI{}
			m := newModel(api)
			m.status.Paused = tt.paused

			m, cmd := update(t, m, keyMsg(tt.key))
			require.NotNil(t, cmd)
			res := cmd()
			assert.Equal(t, []string{tt.want}, api.actions)

			act, ok := res.(actionMsg)
			require.True(t, ok)
			assert.NoError(t, act.err)

			_, cmd = update(t, m, act)
			assert.NotNil(t, cmd, "successful action refreshes status")
		})
	}
}

func TestActionErrorShown(t *testing.T) {
	m := newModel(&fakeAPI{})
	m, _ = update(t, m, actionMsg{action: "start", err: errors.New("gazed: 409 already tracking")})
	assert.Contains(t, m.View(), "start: gazed: 409 already tracking")
}

func TestQuit(t *testing.T) {
	m := newModel(&fakeAPI{})
	_, cmd := update(t, m, keyMsg("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestStatusRefresh(t *testing.T) {
	api := &fakeAPI{snap: gaze.Snapshot{Tracking: true, Calibrated: true, ScreenWidth: 1920, ScreenHeight: 1080}}
	m := newModel(api)

	msg := m.fetchStatus()()
	m, _ = update(t, m, msg)
	assert.True(t, m.status.Tracking)
	view := m.View()
	assert.Contains(t, view, "tracking")
	assert.Contains(t, view, "calibrated")
}

func TestGazeStream(t *testing.T) {
	m := newModel(&fakeAPI{})
	m.status.ScreenWidth, m.status.ScreenHeight = 1920, 1080

	m, _ = update(t, m, mustMessage(t, protocol.TypeGaze, protocol.GazeData{
		X: 960, Y: 540, Confidence: 0.9,
		RawX: 1500, RawY: 900, RawConfidence: 0.95,
		Accepted: true, Outlier: true, Stable: true,
	}))
	require.NotNil(t, m.gaze)
	assert.Equal(t, 1, m.frames)
	assert.Empty(t, m.events, "gaze samples are not logged as events")

	view := m.View()
	assert.Contains(t, view, "(960, 540)")
	assert.Contains(t, view, "outlier")
	assert.Contains(t, view, "●")
}

func TestCalibrationEvents(t *testing.T) {
	m := newModel(&fakeAPI{})

	m, _ = update(t, m, mustMessage(t, protocol.TypeTracking, protocol.TrackingData{Tracking: true}))
	m, _ = update(t, m, mustMessage(t, protocol.TypeCalibrationStarted, protocol.CalibrationData{SessionID: "0123456789"}))
	assert.True(t, m.status.Calibrating)

	m, _ = update(t, m, mustMessage(t, protocol.TypeCalibrationTarget, protocol.TargetData{Index: 4, X: 960, Y: 540}))
	require.NotNil(t, m.target)
	assert.Contains(t, m.View(), "◎")

	m, _ = update(t, m, mustMessage(t, protocol.TypeCalibrationComplete, protocol.CalibrationData{
		SessionID: "0123456789", PointsUsed: 9, ScaleX: 1.02, ScaleY: 0.98, OffsetX: -3, OffsetY: 4,
	}))
	assert.False(t, m.status.Calibrating)
	assert.Nil(t, m.target)

	require.Len(t, m.events, 4)
	assert.True(t, strings.HasSuffix(m.events[0], "tracking started"))
	assert.True(t, strings.HasSuffix(m.events[1], "calibration started 01234567"))
	assert.True(t, strings.HasSuffix(m.events[2], "target 5 at (960, 540)"))
	assert.Contains(t, m.events[3], "calibrated with 9 points")
}

func TestEventLogIsBounded(t *testing.T) {
	m := newModel(&fakeAPI{})
	for i := 0; i < maxEvents+5; i++ {
		m, _ = update(t, m, mustMessage(t, protocol.TypeCalibrationAborted, protocol.AbortData{Reason: "cancelled"}))
	}
	assert.Len(t, m.events, maxEvents)
}

func TestCell(t *testing.T) {
	r, c := cell(0, 0, 1920, 1080)
	assert.Equal(t, 0, r)
	assert.Equal(t, 0, c)

	r, c = cell(1920, 1080, 1920, 1080)
	assert.Equal(t, mapHeight-1, r)
	assert.Equal(t, mapWidth-1, c)

	r, c = cell(-50, 5000, 1920, 1080)
	assert.Equal(t, mapHeight-1, r)
	assert.Equal(t, 0, c)
}

func TestWebsocketBase(t *testing.T) {
	got, err := websocketBase("http://localhost:8080/")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080", got)

	got, err = websocketBase("https://gaze.local")
	require.NoError(t, err)
	assert.Equal(t, "wss://gaze.local", got)

	_, err = websocketBase("ftp://x")
	assert.Error(t, err)
}
