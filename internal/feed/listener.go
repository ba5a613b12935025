package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/stall-sensor/internal/logic"
)

const (
	// DefaultURL is FlightGear's property listener endpoint.
	DefaultURL = "ws://localhost:5500/PropertyListener"

	// DefaultReconnect is the pause between connection attempts.
	DefaultReconnect = 5 * time.Second

	// idleTimeout is how long a connection may go without any frame.
	idleTimeout = 60 * time.Second

	// pingPeriod must be less than idleTimeout.
	pingPeriod = (idleTimeout * 9) / 10

	writeTimeout = 10 * time.Second
)

// command is a property listener request.
type command struct {
	Command string `json:"command"`
	Node    string `json:"node"`
}

// propertyMessage is a property change notification.
type propertyMessage struct {
	Path  string          `json:"path"`
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
	TS    float64         `json:"ts"`
}

// PropertyListener subscribes to simulator properties over a websocket and
// reconnects until its context is cancelled.
type PropertyListener struct {
	url       string
	nodes     []Node
	byName    map[string]logic.FieldID
	reconnect time.Duration
	dialer    *websocket.Dialer
	connected atomic.Bool
}

// NewPropertyListener creates a listener for nodes, which must all map to schema fields.
func NewPropertyListener(url string, schema *logic.Schema, nodes []Node, reconnect time.Duration) (*PropertyListener, error) {
	if url == "" {
		return nil, errors.New("feed: empty url")
	}
	byName := make(map[string]logic.FieldID, len(nodes))
	for _, n := range nodes {
		id, ok := schema.Lookup(n.Field)
		if !ok {
			return nil, fmt.Errorf("feed: node %s maps to unknown field %q", n.Path, n.Field)
		}
		byName[n.Name()] = id
	}
	if reconnect <= 0 {
		reconnect = DefaultReconnect
	}
	return &PropertyListener{
		url:       url,
		nodes:     nodes,
		byName:    byName,
		reconnect: reconnect,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// IsConnected reports whether a websocket session is currently open.
func (p *PropertyListener) IsConnected() bool {
	return p.connected.Load()
}

// Run connects, subscribes and forwards updates, reconnecting after failures.
func (p *PropertyListener) Run(ctx context.Context, out chan<- logic.FieldUpdate) error {
	for {
		err := p.session(ctx, out)
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("feed: connection lost, retrying", "url", p.url, "err", err, "in", p.reconnect)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.reconnect):
		}
	}
}

func (p *PropertyListener) session(ctx context.Context, out chan<- logic.FieldUpdate) error {
	conn, _, err := p.dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	for _, n := range p.nodes {
		for _, cmd := range []string{"addListener", "get"} {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(command{Command: cmd, Node: n.Path}); err != nil {
				return fmt.Errorf("subscribe %s: %w", n.Path, err)
			}
		}
	}

	p.connected.Store(true)
	defer p.connected.Store(false)
	slog.Info("feed: subscribed", "url", p.url, "nodes", len(p.nodes))

	// Unblock ReadMessage on shutdown and keep the connection alive.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-stop:
				return
			case <-ticker.C:
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)) //nolint:errcheck
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(idleTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(idleTimeout))

		u, ok, err := p.decode(data)
		if err != nil {
			slog.Debug("feed: skipping message", "err", err)
			continue
		}
		if !ok {
			continue
		}
		if !send(ctx, out, u) {
			return ctx.Err()
		}
	}
}

// decode converts a property notification into an update. ok is false for
// properties that are not tracked.
func (p *PropertyListener) decode(data []byte) (logic.FieldUpdate, bool, error) {
	var msg propertyMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return logic.FieldUpdate{}, false, fmt.Errorf("decode: %w", err)
	}
	id, ok := p.byName[msg.Name]
	if !ok {
		return logic.FieldUpdate{}, false, nil
	}
	v, err := parseValue(msg.Value)
	if err != nil {
		return logic.FieldUpdate{}, false, fmt.Errorf("%s: %w", msg.Name, err)
	}
	return logic.FieldUpdate{Field: id, Value: v, Timestamp: msg.TS}, true, nil
}

// parseValue accepts a JSON number or a numeric string.
func parseValue(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, errors.New("missing value")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("value %s is not numeric", raw)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("value %q is not numeric", s)
	}
	return f, nil
}
