package engine

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestProcessHandleLine(t *testing.T) {
	p := NewProcess("unused", nil)

	p.handleLine([]byte(`GAZE:{"x":100,"y":200,"confidence":0.9,"timestamp":1}`))
	p.handleLine([]byte(`CALIBRATION:{"screen_x":1,"screen_y":2}`))
	p.handleLine([]byte(`Starting gaze tracking loop`))
	p.handleLine([]byte(`GAZE:{broken`))
	p.handleLine([]byte(`   `))

	got := p.box.Take()
	require.NotNil(t, got)
	assert.Equal(t, 100.0, got.X)
	assert.Equal(t, 200.0, got.Y)

	received, _ := p.Received()
	assert.Equal(t, uint64(1), received, "only the valid gaze line is a sample")
}

func TestProcessPollBeforeStart(t *testing.T) {
	p := NewProcess("unused", nil)
	_, err := p.Poll(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.NoError(t, p.Stop(), "stop before start is a no-op")
}

func TestProcessStreamsSamples(t *testing.T) {
	requireShell(t)

	script := `echo 'debug output'; ` +
		`echo 'GAZE:{"x":640,"y":360,"confidence":0.92,"timestamp":7}'; ` +
		`echo "args:$*" >&2; exec sleep 30`
	p := NewProcess("sh", []string{"-c", script, "gaze-engine"})
	ctx := context.Background()

	require.NoError(t, p.Start(ctx, gaze.EngineConfig{CameraID: 1, ScreenWidth: 1280, ScreenHeight: 720}))
	assert.ErrorIs(t, p.Start(ctx, gaze.EngineConfig{}), ErrAlreadyStarted)

	var got *gaze.RawSample
	require.Eventually(t, func() bool {
		s, err := p.Poll(ctx)
		if err != nil || s == nil {
			return false
		}
		got = s
		return true
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 640.0, got.X)
	assert.Equal(t, 0.92, got.Confidence)

	s, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Nil(t, s, "no new sample since the last poll")

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop(), "second stop is a no-op")
	_, err = p.Poll(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestProcessExitIsReported(t *testing.T) {
	requireShell(t)

	p := NewProcess("sh", []string{"-c", "exit 3"})
	ctx := context.Background()
	require.NoError(t, p.Start(ctx, gaze.EngineConfig{ScreenWidth: 1920, ScreenHeight: 1080}))

	require.Eventually(t, func() bool {
		_, err := p.Poll(ctx)
		return err != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.NoError(t, p.Stop())
}

func TestProcessStartFailure(t *testing.T) {
	p := NewProcess("/nonexistent/gaze-engine", nil)
	err := p.Start(context.Background(), gaze.EngineConfig{})
	require.Error(t, err)

	_, err = p.Poll(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}
