// Package mqtt publishes stall decisions and lifecycle events to MQTT,
// with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/stall-sensor/internal/logic"
)

// Topic is the MQTT topic for stall decisions.
const Topic = "sim/stall-sensor/decisions"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "sim/stall-sensor/system"

// Publisher publishes decisions to MQTT.
type Publisher interface {
	// PublishDecision sends a decision to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishDecision(d logic.Decision) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "INFERENCE_ERROR" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Decision DecisionPayload `json:"decision"`
}

// DecisionPayload contains the decision details.
type DecisionPayload struct {
	Seq            uint64  `json:"seq"`
	Timestamp      float64 `json:"timestamp"`
	PredictedStall bool    `json:"predicted_stall"`
	Score          float64 `json:"score"`
	RunID          string  `json:"run_id,omitempty"`
}

// FormatPayload creates the JSON payload for a decision.
// The timestamp is the simulator timestamp of the observation, not wall clock.
func FormatPayload(d logic.Decision, runID string) ([]byte, error) {
	payload := Payload{
		Decision: DecisionPayload{
			Seq:            d.Seq,
			Timestamp:      d.Timestamp,
			PredictedStall: d.Positive,
			Score:          d.Score,
			RunID:          runID,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
