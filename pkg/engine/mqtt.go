package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// MQTT subscribes to a topic on which an inference program publishes
// JSON samples.
type MQTT struct {
	broker   string
	topic    string
	clientID string
	timeout  time.Duration
	opts     options
	box      Mailbox

	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu     sync.Mutex
	client mqtt.Client
}

// NewMQTT creates an engine reading topic from broker (e.g. tcp://localhost:1883).
func NewMQTT(broker, topic string, opts ...Option) *MQTT {
	return &MQTT{
		broker:   broker,
		topic:    topic,
		clientID: "gaze-engine-" + uuid.NewString()[:8],
		timeout:  5 * time.Second,
		opts:     newOptions(opts),

		newClient: mqtt.NewClient,
	}
}

// Start connects and subscribes. The engine config is not forwarded; the
// publisher is configured on its own side.
func (m *MQTT) Start(ctx context.Context, cfg gaze.EngineConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return ErrAlreadyStarted
	}

	opts := mqtt.NewClientOptions().
		AddBroker(m.broker).
		SetClientID(m.clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(m.timeout)
	client := m.newClient(opts)

	if err := waitToken(ctx, client.Connect(), m.timeout); err != nil {
		// Stops a connect still in flight, and its auto-reconnect.
		client.Disconnect(250)
		return fmt.Errorf("engine: mqtt connect %s: %w", m.broker, err)
	}

	m.box.Clear()
	if err := waitToken(ctx, client.Subscribe(m.topic, 0, m.onMessage), m.timeout); err != nil {
		client.Disconnect(250)
		return fmt.Errorf("engine: mqtt subscribe %s: %w", m.topic, err)
	}

	m.client = client
	m.opts.logger.Info("inference mqtt subscribed", "broker", m.broker, "topic", m.topic)
	return nil
}

func (m *MQTT) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s, err := DecodeSample(msg.Payload())
	if err != nil {
		m.opts.logger.Debug("dropping mqtt sample", "topic", msg.Topic(), "error", err)
		return
	}
	m.box.Put(s)
}

// Poll returns the newest unpolled sample, or nil.
func (m *MQTT) Poll(ctx context.Context) (*gaze.RawSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return nil, ErrNotStarted
	}
	if !client.IsConnectionOpen() {
		return nil, fmt.Errorf("engine: mqtt connection to %s lost", m.broker)
	}
	return m.box.Take(), nil
}

// Stop unsubscribes and disconnects. Stopping a stopped engine is a no-op.
func (m *MQTT) Stop() error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()
	if client == nil {
		return nil
	}

	token := client.Unsubscribe(m.topic)
	token.WaitTimeout(m.timeout)
	client.Disconnect(250)
	m.box.Clear()
	m.opts.logger.Info("inference mqtt disconnected", "broker", m.broker)
	return token.Error()
}

// ScreenBounds reports the size given with WithScreenBounds.
func (m *MQTT) ScreenBounds(ctx context.Context) (float64, float64, error) {
	return m.opts.bounds()
}

// waitToken waits for an MQTT token, bounded by ctx and timeout.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	}
}

var _ gaze.Engine = (*MQTT)(nil)
