// Package logic contains the pure streaming core of the stall predictor:
// joining per-field updates into observations, gap filling, windowing and
// deciding when inference should run.
// This package has NO external dependencies (no network, MQTT, GPIO or clocks).
// Time is always the feed's source timestamp in seconds, passed in as float64.
package logic

import (
	"errors"
	"fmt"
)

// FieldID indexes a tracked signal within a Schema.
type FieldID int

// Schema is the fixed, ordered set of tracked fields. Row vectors use this order.
type Schema struct {
	names []string
	index map[string]FieldID
}

// Default field names, in row order.
const (
	FieldPitch    = "pitch"
	FieldRoll     = "roll"
	FieldAltitude = "altitude"
	FieldAirspeed = "airspeed"
)

// DefaultFields is the field set the stall model is trained on.
var DefaultFields = []string{FieldPitch, FieldRoll, FieldAltitude, FieldAirspeed}

// NewSchema creates a schema from a non-empty list of unique field names.
func NewSchema(names ...string) (*Schema, error) {
	if len(names) == 0 {
		return nil, errors.New("schema: no fields")
	}
	s := &Schema{
		names: make([]string, len(names)),
		index: make(map[string]FieldID, len(names)),
	}
	for i, n := range names {
		if n == "" {
			return nil, fmt.Errorf("schema: field %d has empty name", i)
		}
		if _, dup := s.index[n]; dup {
			return nil, fmt.Errorf("schema: duplicate field %q", n)
		}
		s.names[i] = n
		s.index[n] = FieldID(i)
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error. Intended for fixed field lists.
func MustSchema(names ...string) *Schema {
	s, err := NewSchema(names...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.names) }

// Names returns a copy of the field names in row order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Lookup returns the FieldID for name.
func (s *Schema) Lookup(name string) (FieldID, bool) {
	id, ok := s.index[name]
	return id, ok
}

// Name returns the field name for id, or "" if id is out of range.
func (s *Schema) Name(id FieldID) string {
	if !s.Valid(id) {
		return ""
	}
	return s.names[id]
}

// Valid reports whether id belongs to the schema.
func (s *Schema) Valid(id FieldID) bool {
	return id >= 0 && int(id) < len(s.names)
}

// FieldUpdate is a single-field value from the feed.
type FieldUpdate struct {
	Field     FieldID
	Value     float64
	Timestamp float64 // source timestamp, seconds
}

// Observation is a completed raw feature vector in schema order.
type Observation struct {
	Values    []float64
	Timestamp float64
}

// Row is one normalized feature vector. Rows are never mutated after creation.
type Row []float64

// Status describes what happened to a completed observation at the scheduler.
type Status string

const (
	// StatusIncomplete means the update did not complete an observation.
	StatusIncomplete Status = "INCOMPLETE"
	// StatusThrottled means the completion was not selected by the cadence gate.
	StatusThrottled Status = "THROTTLED"
	// StatusWarmingUp means the cadence gate passed but the window is not full.
	StatusWarmingUp Status = "WARMING_UP"
	// StatusReady means an inference request was produced.
	StatusReady Status = "READY"
)

// Request is an inference job: an immutable window snapshot plus the
// timestamp of the completion that triggered it.
type Request struct {
	Seq       uint64 // completion count at the time of the request
	Timestamp float64
	Window    [][]float64
}

// Decision is the outcome of one inference.
type Decision struct {
	Seq       uint64
	Timestamp float64 // last completed observation, not wall clock
	Positive  bool    // stalled descent predicted
	Score     float64
}

// Normalizer maps a raw feature vector to a normalized one.
type Normalizer interface {
	Normalize(raw []float64) ([]float64, error)
}

// NormalizerFunc adapts a function to Normalizer.
type NormalizerFunc func(raw []float64) ([]float64, error)

// Normalize calls f(raw).
func (f NormalizerFunc) Normalize(raw []float64) ([]float64, error) { return f(raw) }

// Classifier scores a full window (rows oldest first).
type Classifier interface {
	Classify(window [][]float64) (float64, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(window [][]float64) (float64, error)

// Classify calls f(window).
func (f ClassifierFunc) Classify(window [][]float64) (float64, error) { return f(window) }

// ErrInferenceTimeout is wrapped by InferenceError when the classifier call
// exceeded its deadline.
var ErrInferenceTimeout = errors.New("inference timeout")

// NormalizationError reports a failed normalization. It is fatal: the window
// must not be updated and the process should stop.
type NormalizationError struct {
	Timestamp float64
	Err       error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalization failed at ts=%g: %v", e.Timestamp, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// InferenceError reports a failed or timed out classifier call. It is fatal.
type InferenceError struct {
	Seq       uint64
	Timestamp float64
	Err       error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference %d failed at ts=%g: %v", e.Seq, e.Timestamp, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
