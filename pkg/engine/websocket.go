package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// WebSocket reads samples from an inference server that streams them as
// websocket text messages. Messages may carry the GAZE: prefix.
type WebSocket struct {
	url  string
	opts options
	box  Mailbox

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	readErr error
}

// NewWebSocket creates an engine for the given ws:// or wss:// URL.
func NewWebSocket(rawURL string, opts ...Option) *WebSocket {
	return &WebSocket{url: rawURL, opts: newOptions(opts)}
}

// Start dials the server. The camera and screen are passed as query
// parameters.
func (w *WebSocket) Start(ctx context.Context, cfg gaze.EngineConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		return ErrAlreadyStarted
	}

	u, err := url.Parse(w.url)
	if err != nil {
		return fmt.Errorf("engine: parse url: %w", err)
	}
	q := u.Query()
	q.Set("camera_id", strconv.Itoa(cfg.CameraID))
	q.Set("screen_width", strconv.FormatFloat(cfg.ScreenWidth, 'f', -1, 64))
	q.Set("screen_height", strconv.FormatFloat(cfg.ScreenHeight, 'f', -1, 64))
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("engine: dial %s: %w", w.url, err)
	}

	w.box.Clear()
	w.conn = conn
	w.done = make(chan struct{})
	w.readErr = nil
	go w.readPump(conn, w.done)

	w.opts.logger.Info("inference websocket connected", "url", w.url)
	return nil
}

func (w *WebSocket) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.readErr = err
			w.mu.Unlock()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.opts.logger.Warn("inference websocket closed", "error", err)
			}
			return
		}
		if len(msg) > len(gazePrefix) && string(msg[:len(gazePrefix)]) == gazePrefix {
			msg = msg[len(gazePrefix):]
		}
		s, err := DecodeSample(msg)
		if err != nil {
			w.opts.logger.Debug("dropping websocket sample", "error", err)
			continue
		}
		w.box.Put(s)
	}
}

// Poll returns the newest unpolled sample, or nil.
func (w *WebSocket) Poll(ctx context.Context) (*gaze.RawSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	conn, done := w.conn, w.done
	w.mu.Unlock()
	if conn == nil {
		return nil, ErrNotStarted
	}
	select {
	case <-done:
		w.mu.Lock()
		err := w.readErr
		w.mu.Unlock()
		return nil, fmt.Errorf("engine: websocket closed: %w", err)
	default:
	}
	return w.box.Take(), nil
}

// Stop closes the connection. Stopping a stopped engine is a no-op.
func (w *WebSocket) Stop() error {
	w.mu.Lock()
	conn, done := w.conn, w.done
	w.conn = nil
	w.mu.Unlock()
	if conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		w.opts.logger.Debug("websocket close frame not sent", "error", err)
	}
	err := conn.Close()
	<-done
	w.box.Clear()
	w.opts.logger.Info("inference websocket disconnected", "url", w.url)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("engine: close websocket: %w", err)
	}
	return nil
}

// ScreenBounds reports the size given with WithScreenBounds.
func (w *WebSocket) ScreenBounds(ctx context.Context) (float64, float64, error) {
	return w.opts.bounds()
}

var _ gaze.Engine = (*WebSocket)(nil)
