package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/stall-sensor/internal/logic"
)

// DefaultBufferSize is the number of messages held while the broker is unreachable.
const DefaultBufferSize = 100

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// client is the subset of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are kept in a ring buffer and replayed on reconnect.
type RealPublisher struct {
	client client
	topic  string
	runID  string

	mu  sync.Mutex
	buf *outbox
}

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	RunID      string
	BufferSize int
}

// NewRealPublisher creates a publisher connected to the given broker.
// If the broker is not reachable within the connect timeout the publisher
// is still returned; paho keeps retrying and messages are buffered.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = "stall-sensor"
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}

	p := &RealPublisher{
		topic: Topic,
		runID: o.RunID,
		buf:   newOutbox(o.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			slog.Warn("mqtt: connection lost", "err", err)
		})

	c := paho.NewClient(opts)
	p.client = c

	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		slog.Warn("mqtt: broker not reachable yet, buffering", "broker", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// PublishDecision sends a stall decision to the MQTT broker.
func (p *RealPublisher) PublishDecision(d logic.Decision) error {
	payload, err := FormatPayload(d, p.runID)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.publish(outboxMsg{topic: p.topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(outboxMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Dropped returns how many messages were evicted from a full outbox.
func (p *RealPublisher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.dropped
}

// Close disconnects from the broker. Buffered messages are discarded.
func (p *RealPublisher) Close() error {
	if n := p.Buffered(); n > 0 {
		slog.Warn("mqtt: discarding buffered messages", "count", n, "dropped_earlier", p.Dropped())
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) publish(msg outboxMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(msg)
		p.mu.Unlock()
		return nil
	}
	return p.send(msg)
}

func (p *RealPublisher) send(msg outboxMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// onConnect replays buffered messages in order.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	pending := p.buf.drain()
	p.mu.Unlock()

	if len(pending) > 0 {
		slog.Info("mqtt: replaying buffered messages", "count", len(pending))
	}
	for i, msg := range pending {
		if err := p.send(msg); err != nil {
			slog.Warn("mqtt: replay failed, re-buffering remainder", "err", err)
			p.mu.Lock()
			p.buf.requeue(pending[i:])
			p.mu.Unlock()
			return
		}
	}
}
