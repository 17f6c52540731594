package hub

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveHub mounts h on /ws of a fiber app listening on a random port.
func serveHub(t *testing.T, h *Hub) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		if client := NewClient(h, c); client != nil {
			client.Run()
		}
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String() + "/ws"
}

func runHub(t *testing.T, h *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
}

func dial(t *testing.T, url string) *gorilla.Conn {
	t.Helper()
	ws, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestNew(t *testing.T) {
	h := New("gaze")
	assert.Equal(t, "gaze", h.Name())
	assert.Equal(t, 0, h.ClientCount())
	assert.False(t, h.IsRunning())
}

func TestHubBroadcast(t *testing.T) {
	h := New("gaze")
	runHub(t, h)
	url := serveHub(t, h)

	a := dial(t, url)
	b := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, 2*time.Second, time.Millisecond)

	require.NoError(t, h.BroadcastJSON(map[string]float64{"x": 1}))
	h.BroadcastBinary([]byte{0xa1, 0x01, 0x02})

	for _, ws := range []*gorilla.Conn{a, b} {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		typ, data, err := ws.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, gorilla.TextMessage, typ)
		assert.JSONEq(t, `{"x":1}`, string(data))

		typ, data, err = ws.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, gorilla.BinaryMessage, typ)
		assert.Equal(t, []byte{0xa1, 0x01, 0x02}, data)
	}
}

func TestHubHandlerAndDirectSend(t *testing.T) {
	h := New("events", WithHandler(func(c *Client, data []byte) {
		c.Send(NewJSONMessage(append([]byte(`{"echo":`), append(data, '}')...)))
	}))
	runHub(t, h)
	url := serveHub(t, h)

	ws := dial(t, url)
	other := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, 2*time.Second, time.Millisecond)

	require.NoError(t, ws.WriteMessage(gorilla.TextMessage, []byte(`"hi"`)))
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"echo":"hi"}`, string(data))

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err, "direct messages reach only the sender")
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	h := New("gaze")
	runHub(t, h)
	url := serveHub(t, h)

	ws, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, time.Millisecond)

	ws.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, time.Millisecond)
}

func TestHubStopClosesClients(t *testing.T) {
	h := New("gaze")
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
	url := serveHub(t, h)

	ws := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, time.Millisecond)

	cancel()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err, "connection is closed when the hub stops")
	require.Eventually(t, func() bool { return !h.IsRunning() }, time.Second, time.Millisecond)
}

// serveHubReporting is serveHub, but reports whether the client's write
// pump had stopped by the time its handler returned.
func serveHubReporting(t *testing.T, h *Hub, stopped chan<- bool) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		client := NewClient(h, c)
		if client == nil {
			return
		}
		client.Run()
		select {
		case <-client.done:
			stopped <- true
		default:
			stopped <- false
		}
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String() + "/ws"
}

func TestClientRunWaitsForWritePump(t *testing.T) {
	tests := []struct {
		name string
		end  func(cancel context.CancelFunc, ws *gorilla.Conn)
	}{
		{"peer disconnects", func(_ context.CancelFunc, ws *gorilla.Conn) { ws.Close() }},
		{"hub stops", func(cancel context.CancelFunc, _ *gorilla.Conn) { cancel() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New("gaze")
			ctx, cancel := context.WithCancel(context.Background())
			t.Cleanup(cancel)
			go h.Run(ctx)
			require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)

			stopped := make(chan bool, 1)
			url := serveHubReporting(t, h, stopped)
			ws := dial(t, url)
			require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, time.Millisecond)
			h.BroadcastBinary([]byte{0x01})

			tt.end(cancel, ws)
			select {
			case ok := <-stopped:
				assert.True(t, ok, "handler returned while the write pump still held the conn")
			case <-time.After(3 * time.Second):
				t.Fatal("handler did not return")
			}
		})
	}
}
