package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/stall-sensor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	RunID         string        `json:"run_id"`
	State         string        `json:"state"`
	Ready         bool          `json:"ready"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Feed          FeedStatus    `json:"feed"`
	Pipeline      PipelineJSON  `json:"pipeline"`
	Inference     InferenceJSON `json:"inference"`
	Decisions     DecisionsJSON `json:"decisions"`
	Config        ConfigJSON    `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// FeedStatus reports simulator feed connection state.
type FeedStatus struct {
	Connected bool   `json:"connected"`
	URL       string `json:"url"`
}

// PipelineJSON is the JSON representation of pipeline counters.
type PipelineJSON struct {
	Updates       uint64   `json:"updates"`
	Completions   uint64   `json:"completions"`
	Requests      uint64   `json:"requests"`
	RowsPushed    uint64   `json:"rows_pushed"`
	WindowLen     int      `json:"window_len"`
	WindowCap     int      `json:"window_cap"`
	PendingFields int      `json:"pending_fields"`
	LastTimestamp *float64 `json:"last_timestamp,omitempty"`
}

// InferenceJSON is the JSON representation of the inference runner.
type InferenceJSON struct {
	Queued     int     `json:"queued"`
	InFlight   bool    `json:"in_flight"`
	Completed  uint64  `json:"completed"`
	LastTookMs float64 `json:"last_took_ms"`
}

// DecisionsJSON summarizes decisions made so far.
type DecisionsJSON struct {
	Positive uint64        `json:"positive"`
	Negative uint64        `json:"negative"`
	Last     *DecisionJSON `json:"last,omitempty"`
}

// DecisionJSON is the JSON representation of one decision.
type DecisionJSON struct {
	Seq            uint64  `json:"seq"`
	Timestamp      float64 `json:"timestamp"`
	PredictedStall bool    `json:"predicted_stall"`
	Score          float64 `json:"score"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	WindowSize         int     `json:"window_size"`
	Every              int     `json:"every"`
	TickSeconds        float64 `json:"tick_seconds"`
	Threshold          float64 `json:"threshold"`
	InferenceTimeoutMs int64   `json:"inference_timeout_ms"`
	HeartbeatMs        int64   `json:"heartbeat_ms"`
	FeedURL            string  `json:"feed_url"`
	Broker             string  `json:"broker"`
	HTTPPort           string  `json:"http_port"`
}

// State summarizes the snapshot in the words the console uses.
func State(snap Snapshot) string {
	switch {
	case snap.LastDecision != nil && snap.LastDecision.Positive:
		return "STALL_PREDICTED"
	case snap.LastDecision != nil:
		return "OK"
	case snap.Pipeline.Completions == 0:
		return string(logic.StatusIncomplete)
	default:
		return string(logic.StatusWarmingUp)
	}
}

func buildInner(snap Snapshot) StatusInner {
	p := snap.Pipeline
	inner := StatusInner{
		RunID:         snap.RunID,
		State:         State(snap),
		Ready:         snap.Ready(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Feed:          FeedStatus{Connected: snap.FeedConnected, URL: snap.Config.FeedURL},
		Pipeline: PipelineJSON{
			Updates:       p.Updates,
			Completions:   p.Completions,
			Requests:      p.Requests,
			RowsPushed:    p.RowsPushed,
			WindowLen:     p.WindowLen,
			WindowCap:     p.WindowCap,
			PendingFields: p.Pending,
		},
		Inference: InferenceJSON{
			Queued:     snap.Inference.Queued,
			InFlight:   snap.Inference.InFlight,
			Completed:  snap.Inference.Completed,
			LastTookMs: float64(snap.Inference.LastTook) / float64(time.Millisecond),
		},
		Decisions: DecisionsJSON{Positive: snap.Positives, Negative: snap.Negatives},
		Config: ConfigJSON{
			WindowSize:         snap.Config.WindowSize,
			Every:              snap.Config.Every,
			TickSeconds:        snap.Config.Tick,
			Threshold:          snap.Config.Threshold,
			InferenceTimeoutMs: snap.Config.InferenceTimeoutMs,
			HeartbeatMs:        snap.Config.HeartbeatMs,
			FeedURL:            snap.Config.FeedURL,
			Broker:             snap.Config.Broker,
			HTTPPort:           snap.Config.HTTPPort,
		},
	}
	if p.HasLastTS {
		ts := p.LastTS
		inner.Pipeline.LastTimestamp = &ts
	}
	if d := snap.LastDecision; d != nil {
		inner.Decisions.Last = &DecisionJSON{
			Seq:            d.Seq,
			Timestamp:      d.Timestamp,
			PredictedStall: d.Positive,
			Score:          d.Score,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
