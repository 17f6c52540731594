package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handler is called with every text message a client sends.
type Handler func(c *Client, data []byte)

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithHandler sets the handler for client messages.
func WithHandler(fn Handler) Option {
	return func(h *Hub) { h.handler = fn }
}

type unicast struct {
	client *Client
	msg    Message
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Name for logging
	name   string
	logger *slog.Logger

	// Registered clients, owned by Run
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Messages for a single client
	direct chan unicast

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Called for client text messages
	handler Handler

	// Client count for read-only access from outside
	mu    sync.RWMutex
	count int

	running atomic.Bool
	done    chan struct{}
	dropped atomic.Uint64
}

// New creates a new Hub
func New(name string, opts ...Option) *Hub {
	h := &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		direct:     make(chan unicast, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("hub", name)
	return h
}

// Run starts the hub's main loop until ctx is cancelled.
// This should be called in a goroutine
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		for client := range h.clients {
			h.remove(client)
		}
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount()
			h.logger.Info("client connected", "total", len(h.clients))

		case client := <-h.unregister:
			if h.clients[client] {
				h.remove(client)
				h.logger.Info("client disconnected", "remaining", len(h.clients))
			}

		case u := <-h.direct:
			if h.clients[u.client] {
				h.deliver(u.client, u.msg)
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				h.deliver(client, message)
			}
		}
	}
}

// deliver queues msg for client, dropping the client if it is too slow.
func (h *Hub) deliver(client *Client, msg Message) {
	select {
	case client.send <- msg:
	default:
		// Client's buffer is full - close and remove them
		h.remove(client)
		h.dropped.Add(1)
		h.logger.Warn("dropped slow client")
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		// Broadcast channel full - drop message
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastBinary broadcasts binary data (e.g., CBOR frames)
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// Send queues a message for one client.
func (h *Hub) Send(c *Client, msg Message) {
	select {
	case h.direct <- unicast{client: c, msg: msg}:
	default:
		h.logger.Warn("direct channel full, dropping message")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// DroppedClients returns how many clients were removed for being too slow.
func (h *Hub) DroppedClients() uint64 {
	return h.dropped.Load()
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Name returns the hub name.
func (h *Hub) Name() string {
	return h.name
}
