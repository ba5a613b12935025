package logic

import (
	"fmt"
	"math"
)

// Expander turns a completed observation into one or more identical
// normalized rows, one per elapsed tick since the previous completion
// (zero-order hold).
type Expander struct {
	tick     float64
	maxTicks int
	last     float64
	hasLast  bool
}

// NewExpander creates an expander with the given tick in seconds. maxTicks
// caps the replicas emitted for one observation; 0 means no cap.
func NewExpander(tick float64, maxTicks int) (*Expander, error) {
	if !(tick > 0) || math.IsInf(tick, 0) {
		return nil, fmt.Errorf("expander: tick must be positive, got %v", tick)
	}
	if maxTicks < 0 {
		return nil, fmt.Errorf("expander: max ticks must not be negative, got %d", maxTicks)
	}
	return &Expander{tick: tick, maxTicks: maxTicks}, nil
}

// Ticks returns how many rows an observation at ts would produce.
func (e *Expander) Ticks(ts float64) int {
	if !e.hasLast {
		return 1
	}
	n := math.Round((ts - e.last) / e.tick)
	if !(n >= 1) { // also catches NaN
		return 1
	}
	if e.maxTicks > 0 && n > float64(e.maxTicks) {
		return e.maxTicks
	}
	return int(n)
}

// Expand normalizes obs once and replicates the row Ticks(obs.Timestamp)
// times. On success the observation's timestamp becomes the baseline for
// the next gap. On failure it returns a *NormalizationError and leaves the
// baseline unchanged.
func (e *Expander) Expand(obs Observation, n Normalizer) ([]Row, error) {
	norm, err := n.Normalize(obs.Values)
	if err != nil {
		return nil, &NormalizationError{Timestamp: obs.Timestamp, Err: err}
	}
	if len(norm) != len(obs.Values) {
		return nil, &NormalizationError{
			Timestamp: obs.Timestamp,
			Err:       fmt.Errorf("normalizer returned %d values, want %d", len(norm), len(obs.Values)),
		}
	}
	for i, v := range norm {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &NormalizationError{
				Timestamp: obs.Timestamp,
				Err:       fmt.Errorf("value %d is not finite: %v", i, v),
			}
		}
	}

	ticks := e.Ticks(obs.Timestamp)
	row := make(Row, len(norm))
	copy(row, norm)

	rows := make([]Row, ticks)
	for i := range rows {
		rows[i] = row
	}

	e.last = obs.Timestamp
	e.hasLast = true
	return rows, nil
}

// LastTimestamp returns the timestamp of the previous successful expansion.
func (e *Expander) LastTimestamp() (float64, bool) {
	return e.last, e.hasLast
}
