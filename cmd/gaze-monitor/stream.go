package main

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// streamMsg carries one message from a gazed websocket.
type streamMsg struct {
	msg *protocol.Message
}

// connMsg reports a websocket connecting or dropping.
type connMsg struct {
	url       string
	connected bool
	err       error
}

const reconnectDelay = 2 * time.Second

// stream reads url until ctx is cancelled, reconnecting after failures.
func stream(ctx context.Context, url string, send func(tea.Msg)) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	for {
		conn, _, err := dialer.DialContext(ctx, url, nil)
		if err == nil {
			send(connMsg{url: url, connected: true})
			err = readAll(ctx, conn, send)
		}
		if ctx.Err() != nil {
			return
		}
		send(connMsg{url: url, err: err})

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func readAll(ctx context.Context, conn *websocket.Conn, send func(tea.Msg)) error {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			continue
		}
		send(streamMsg{msg: msg})
	}
}
