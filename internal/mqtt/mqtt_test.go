package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/stall-sensor/internal/logic"
)

func TestFormatPayload(t *testing.T) {
	d := logic.Decision{Seq: 40, Timestamp: 12.5, Positive: true, Score: 0.73}

	payload, err := FormatPayload(d, "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Decision.Seq != 40 {
		t.Errorf("unexpected seq: %d", parsed.Decision.Seq)
	}
	if parsed.Decision.Timestamp != 12.5 {
		t.Errorf("unexpected timestamp: %v", parsed.Decision.Timestamp)
	}
	if !parsed.Decision.PredictedStall {
		t.Error("expected predicted_stall true")
	}
	if parsed.Decision.Score != 0.73 {
		t.Errorf("unexpected score: %v", parsed.Decision.Score)
	}
	if parsed.Decision.RunID != "run-1" {
		t.Errorf("unexpected run id: %s", parsed.Decision.RunID)
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	d := logic.Decision{Seq: 10, Timestamp: 1.25, Positive: false, Score: 0.5}

	payload, err := FormatPayload(d, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"decision":{"seq":10,"timestamp":1.25,"predicted_stall":false,"score":0.5}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestTopic(t *testing.T) {
	if Topic != "sim/stall-sensor/decisions" {
		t.Errorf("unexpected topic: %s", Topic)
	}
}

func TestTopicSystem(t *testing.T) {
	if TopicSystem != "sim/stall-sensor/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "INFERENCE_TIMEOUT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"INFERENCE_TIMEOUT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadOmitsReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "OFFLINE",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"OFFLINE"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 10, 30, 0, 0, loc),
		Event:     "HEARTBEAT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Timestamp != "2026-02-10T08:30:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.System.Timestamp)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"system":{"event":"STARTUP","config":{}}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	pub := NewFakePublisher()
	pub.RunID = "abc"

	d := logic.Decision{Seq: 10, Timestamp: 3.0, Positive: true, Score: 0.9}
	if err := pub.PublishDecision(d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pub.DecisionCount() != 1 {
		t.Fatalf("expected 1 decision, got %d", pub.DecisionCount())
	}
	if pub.Decisions[0] != d {
		t.Errorf("decision mismatch: got %+v, want %+v", pub.Decisions[0], d)
	}

	var parsed Payload
	if err := json.Unmarshal(pub.Payloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Decision.RunID != "abc" {
		t.Errorf("expected run id abc, got %s", parsed.Decision.RunID)
	}
}

func TestFakePublisherError(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishError = errors.New("broker down")

	err := pub.PublishDecision(logic.Decision{Seq: 10})
	if err == nil {
		t.Fatal("expected error")
	}
	if pub.DecisionCount() != 0 {
		t.Errorf("expected no decisions recorded on error, got %d", pub.DecisionCount())
	}
}

func TestFakePublisherPublishSystem(t *testing.T) {
	pub := NewFakePublisher()

	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
		Retained:  true,
	}
	if err := pub.PublishSystem(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	if !pub.SystemEvents[0].Retained {
		t.Error("expected retained flag to be recorded")
	}
	if len(pub.SystemPayloads) != 1 {
		t.Fatalf("expected 1 system payload, got %d", len(pub.SystemPayloads))
	}
}

func TestFakePublisherPublishSystemError(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishSystemError = errors.New("broker down")

	if err := pub.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Fatal("expected error")
	}
	if len(pub.SystemEvents) != 0 {
		t.Errorf("expected no events recorded, got %d", len(pub.SystemEvents))
	}
}

func TestFakePublisherReset(t *testing.T) {
	pub := NewFakePublisher()
	pub.Connected = true
	_ = pub.PublishDecision(logic.Decision{Seq: 10})
	_ = pub.PublishSystem(SystemEvent{Event: "STARTUP"})
	_ = pub.Close()

	pub.Reset()

	if pub.DecisionCount() != 0 || len(pub.SystemEvents) != 0 {
		t.Error("expected recorded events cleared")
	}
	if pub.Closed {
		t.Error("expected Closed reset")
	}
	if pub.IsConnected() {
		t.Error("expected Connected reset")
	}

	// Reusable after reset
	if err := pub.PublishDecision(logic.Decision{Seq: 20}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.DecisionCount() != 1 {
		t.Errorf("expected 1 decision after reset, got %d", pub.DecisionCount())
	}
}

func TestFakePublisherPreservesOrder(t *testing.T) {
	pub := NewFakePublisher()
	for i := uint64(1); i <= 5; i++ {
		_ = pub.PublishDecision(logic.Decision{Seq: i * 10})
	}
	for i, d := range pub.Decisions {
		if want := uint64(i+1) * 10; d.Seq != want {
			t.Errorf("decision %d: got seq %d, want %d", i, d.Seq, want)
		}
	}
}
