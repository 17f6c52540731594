package engine

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Open creates an engine from a URL:
//
//	exec:///path/to/program?arg=--model&arg=small   subprocess (Process)
//	ws://host:port/path, wss://...                  websocket stream (WebSocket)
//	mqtt://host:port/topic/name                     MQTT topic (MQTT)
//	mock://?x=960&y=540&confidence=0.9              fixed sample (Mock)
func Open(rawURL string, opts ...Option) (gaze.Engine, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("engine: parse %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "exec":
		command := u.Path
		if u.Host != "" {
			// exec://program resolves through PATH
			command = u.Host + u.Path
		}
		if command == "" {
			return nil, fmt.Errorf("engine: %q names no program", rawURL)
		}
		return NewProcess(command, u.Query()["arg"], opts...), nil

	case "ws", "wss":
		return NewWebSocket(rawURL, opts...), nil

	case "mqtt", "tcp":
		topic := strings.TrimPrefix(u.Path, "/")
		if topic == "" {
			return nil, fmt.Errorf("engine: %q names no topic", rawURL)
		}
		broker := "tcp://" + u.Host
		return NewMQTT(broker, topic, opts...), nil

	case "mock":
		m := NewMock()
		q := u.Query()
		if q.Has("x") || q.Has("y") {
			s := gaze.RawSample{Confidence: 1}
			if s.X, err = parseFloat(q, "x"); err != nil {
				return nil, err
			}
			if s.Y, err = parseFloat(q, "y"); err != nil {
				return nil, err
			}
			if q.Has("confidence") {
				if s.Confidence, err = parseFloat(q, "confidence"); err != nil {
					return nil, err
				}
			}
			m.Hold(&s)
		}
		return m, nil
	}
	return nil, fmt.Errorf("engine: unsupported scheme %q", u.Scheme)
}

func parseFloat(q url.Values, key string) (float64, error) {
	v, err := strconv.ParseFloat(q.Get(key), 64)
	if err != nil {
		return 0, fmt.Errorf("engine: mock %s: %w", key, err)
	}
	return v, nil
}
