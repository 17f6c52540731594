package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

func TestWebSocketEngine(t *testing.T) {
	query := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query <- r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"x":10,"y":10,"confidence":0.9,"timestamp":1}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`GAZE:{"x":20,"y":30,"confidence":0.8,"timestamp":2}`))
		// Hold the connection until the client closes it
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	e := NewWebSocket(url)
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, gaze.EngineConfig{CameraID: 3, ScreenWidth: 1920, ScreenHeight: 1080}))
	assert.Contains(t, <-query, "camera_id=3")

	var got *gaze.RawSample
	require.Eventually(t, func() bool {
		s, err := e.Poll(ctx)
		if err != nil || s == nil {
			return false
		}
		got = s
		return got.TimestampMs == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 20.0, got.X)
	assert.Equal(t, 30.0, got.Y)

	require.NoError(t, e.Stop())
	require.NoError(t, e.Stop())
	_, err := e.Poll(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestWebSocketDialFailure(t *testing.T) {
	e := NewWebSocket("ws://127.0.0.1:1/gaze")
	err := e.Start(context.Background(), gaze.EngineConfig{})
	require.Error(t, err)
	_, err = e.Poll(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}
