// Package status provides a thread-safe status tracker for the stall-sensor daemon.
// It is read by HTTP handlers, the metrics endpoint and heartbeat events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/stall-sensor/internal/logic"
)

// InferenceInfo contains inference runner state. This is a local copy to
// avoid importing internal/inference from status.
type InferenceInfo struct {
	Queued    int
	InFlight  bool
	Completed uint64
	LastTook  time.Duration
}

// Config contains daemon configuration for display.
type Config struct {
	WindowSize         int
	Every              int
	Tick               float64
	Threshold          float64
	InferenceTimeoutMs int64
	HeartbeatMs        int64
	FeedURL            string
	Broker             string
	HTTPPort           string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	RunID         string
	Pipeline      logic.Stats
	Inference     InferenceInfo
	LastDecision  *logic.Decision
	Positives     uint64
	Negatives     uint64
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	FeedConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether the window has filled and inference can run.
func (s Snapshot) Ready() bool {
	return s.Pipeline.WindowCap > 0 && s.Pipeline.WindowLen == s.Pipeline.WindowCap
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, runID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			RunID:     runID,
			StartTime: startTime,
			Config:    cfg,
			Pipeline:  logic.Stats{LastStatus: logic.StatusIncomplete, WindowCap: cfg.WindowSize},
		},
	}
}

// UpdatePipeline sets the pipeline counters.
// Called from runLoop after every processed update.
func (t *Tracker) UpdatePipeline(stats logic.Stats) {
	t.mu.Lock()
	t.snap.Pipeline = stats
	t.mu.Unlock()
}

// UpdateInference sets the inference runner state.
func (t *Tracker) UpdateInference(info InferenceInfo) {
	t.mu.Lock()
	t.snap.Inference = info
	t.mu.Unlock()
}

// Report records a decision. Tracker satisfies report.Reporter.
func (t *Tracker) Report(d logic.Decision) error {
	t.mu.Lock()
	t.snap.LastDecision = &d
	if d.Positive {
		t.snap.Positives++
	} else {
		t.snap.Negatives++
	}
	t.mu.Unlock()
	return nil
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetFeedConnected sets the simulator feed connection status.
func (t *Tracker) SetFeedConnected(connected bool) {
	t.mu.Lock()
	t.snap.FeedConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.LastDecision != nil {
		d := *s.LastDecision
		s.LastDecision = &d
	}
	s.Now = time.Now()
	return s
}
