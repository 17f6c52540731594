// Package bridge republishes tracker events on an MQTT broker.
//
// Topics, under a configurable prefix:
//
//	<prefix>/stabilized   gaze estimates (QoS 0, not retained)
//	<prefix>/calibration  session progress and results (retained)
//	<prefix>/status       tracking started/stopped (retained)
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "gaze"

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("bridge: publish timed out")

// Options configures a Bridge.
type Options struct {
	Prefix  string          // Topic prefix, default "gaze"
	Format  protocol.Format // json (default) or cbor
	QoS     byte            // For calibration and status topics
	Timeout time.Duration   // Per-publish acknowledgement timeout
	Logger  *slog.Logger
}

func (o *Options) defaults() {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	o.Prefix = strings.TrimSuffix(o.Prefix, "/")
	if o.Format == "" {
		o.Format = protocol.FormatJSON
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stats are publish counters.
type Stats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Skipped   uint64 `json:"skipped"`
}

// Bridge publishes gaze events to MQTT.
type Bridge struct {
	client mqtt.Client
	opts   Options
	enc    *protocol.Encoder

	published atomic.Uint64
	failed    atomic.Uint64
	skipped   atomic.Uint64
}

// New creates a bridge over a connected client.
func New(client mqtt.Client, opts Options) (*Bridge, error) {
	opts.defaults()
	enc, err := protocol.NewEncoder(opts.Format)
	if err != nil {
		return nil, err
	}
	return &Bridge{client: client, opts: opts, enc: enc}, nil
}

var newClient = mqtt.NewClient

// Connect dials broker (e.g. tcp://localhost:1883) and returns a bridge
// over the new client.
func Connect(ctx context.Context, broker string, opts Options) (*Bridge, error) {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("gaze-bridge-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	client := newClient(clientOpts)

	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			client.Disconnect(250)
			return nil, fmt.Errorf("bridge: connect %s: %w", broker, err)
		}
	case <-ctx.Done():
		// Stops the pending connect and its auto-reconnect.
		client.Disconnect(250)
		return nil, ctx.Err()
	}

	b, err := New(client, opts)
	if err != nil {
		client.Disconnect(250)
		return nil, err
	}
	b.opts.Logger.Info("mqtt bridge connected", "broker", broker, "prefix", b.opts.Prefix, "format", b.opts.Format)
	return b, nil
}

// Topic returns the topic an event type is published on, or "" if the
// event is not bridged.
func (b *Bridge) Topic(t gaze.EventType) string {
	switch t {
	case gaze.EventGaze:
		return b.opts.Prefix + "/stabilized"
	case gaze.EventCalibrationStarted, gaze.EventTargetPresented,
		gaze.EventCalibrationComplete, gaze.EventCalibrationAborted:
		return b.opts.Prefix + "/calibration"
	case gaze.EventTrackingStarted, gaze.EventTrackingStopped:
		return b.opts.Prefix + "/status"
	}
	return ""
}

// Run publishes events from sub until ctx is cancelled or sub closes.
func (b *Bridge) Run(ctx context.Context, sub *gaze.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := b.Publish(ev); err != nil {
				b.opts.Logger.Warn("mqtt publish failed", "type", ev.Type, "error", err)
			}
		}
	}
}

// Publish encodes and sends one event.
func (b *Bridge) Publish(ev gaze.Event) error {
	topic := b.Topic(ev.Type)
	if topic == "" {
		b.skipped.Add(1)
		return nil
	}
	msgType, data, err := protocol.Payload(ev)
	if err != nil {
		b.failed.Add(1)
		return err
	}
	payload, err := b.enc.Encode(msgType, ev.Time.UnixMilli(), data)
	if err != nil {
		b.failed.Add(1)
		return err
	}

	qos, retained := b.opts.QoS, true
	if ev.Type == gaze.EventGaze {
		qos, retained = 0, false
	}
	token := b.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(b.opts.Timeout) {
		b.failed.Add(1)
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	if err := token.Error(); err != nil {
		b.failed.Add(1)
		return fmt.Errorf("bridge: publish %s: %w", topic, err)
	}
	b.published.Add(1)
	return nil
}

// Stats returns publish counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Failed:    b.failed.Load(),
		Skipped:   b.skipped.Load(),
	}
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	b.client.Disconnect(250)
	b.opts.Logger.Info("mqtt bridge disconnected")
}
