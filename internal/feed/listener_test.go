package feed

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

	"github.com/sweeney/stall-sensor/internal/logic"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// fakeSimulator accepts one connection, records the subscription commands and
// then writes the scripted frames.
func fakeSimulator(t *testing.T, frames []string) (url string, commands <-chan command) {
	t.Helper()
	cmds := make(chan command, 32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 2*len(DefaultNodes); i++ {
			var c command
			if err := conn.ReadJSON(&c); err != nil {
				return
			}
			cmds <- c
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), cmds
}

func TestPropertyListenerSubscribesAndDecodes(t *testing.T) {
	frames := []string{
		`{"path":"/orientation/pitch-deg","name":"pitch-deg","value":4.5,"ts":101.25}`,
		`{"path":"/position/altitude-ft","name":"altitude-ft","value":"5123.5","ts":101.26}`,
		`{"path":"/orientation/heading-deg","name":"heading-deg","value":90,"ts":101.27}`,
		`not json`,
		`{"name":"roll-deg","value":"level","ts":101.28}`,
		`{"name":"airspeed-kt","value":88.2,"ts":101.3}`,
	}
	url, cmds := fakeSimulator(t, frames)
	schema := logic.MustSchema(logic.DefaultFields...)

	l, err := NewPropertyListener(url, schema, DefaultNodes, 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan logic.FieldUpdate, 8)
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx, out) }()

	var got []logic.FieldUpdate
	for len(got) < 3 {
		select {
		case u := <-out:
			got = append(got, u)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out, got %d updates", len(got))
		}
	}
	assert.True(t, l.IsConnected())

	want := []logic.FieldUpdate{
		{Field: 0, Value: 4.5, Timestamp: 101.25},
		{Field: 2, Value: 5123.5, Timestamp: 101.26},
		{Field: 3, Value: 88.2, Timestamp: 101.3},
	}
	assert.Equal(t, want, got)

	// addListener then get, for every node in order
	for _, n := range DefaultNodes {
		assert.Equal(t, command{Command: "addListener", Node: n.Path}, <-cmds)
		assert.Equal(t, command{Command: "get", Node: n.Path}, <-cmds)
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPropertyListenerRetriesUntilCancelled(t *testing.T) {
	schema := logic.MustSchema(logic.DefaultFields...)
	l, err := NewPropertyListener("ws://127.0.0.1:1/PropertyListener", schema, DefaultNodes, 5*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, l.Run(ctx, make(chan logic.FieldUpdate)))
	assert.False(t, l.IsConnected())
}

func TestNewPropertyListenerValidation(t *testing.T) {
	schema := logic.MustSchema(logic.DefaultFields...)
	_, err := NewPropertyListener("", schema, DefaultNodes, 0)
	assert.Error(t, err)

	_, err = NewPropertyListener(DefaultURL, schema, []Node{{Path: "/orientation/heading-deg", Field: "heading"}}, 0)
	assert.ErrorContains(t, err, "heading")
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{`12.5`, 12.5, false},
		{`-3`, -3, false},
		{`"7.25"`, 7.25, false},
		{`"abc"`, 0, true},
		{`true`, 0, true},
		{``, 0, true},
	}
	for _, tt := range tests {
		got, err := parseValue([]byte(tt.raw))
		if tt.wantErr {
			assert.Error(t, err, "raw %q", tt.raw)
			continue
		}
		assert.NoError(t, err, "raw %q", tt.raw)
		assert.Equal(t, tt.want, got, "raw %q", tt.raw)
	}
}
