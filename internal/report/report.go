// Package report delivers stall decisions to their consumers.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/sweeney/stall-sensor/internal/logic"
)

// Reporter consumes decisions in the order they were made.
type Reporter interface {
	Report(d logic.Decision) error
}

// Func adapts a function to Reporter.
type Func func(d logic.Decision) error

// Report calls f(d).
func (f Func) Report(d logic.Decision) error { return f(d) }

// Named pairs a Reporter with a name used in log lines.
type Named struct {
	Name string
	Reporter
}

// Multi fans a decision out to several reporters in order. A failing
// reporter is logged and does not stop the others.
type Multi struct {
	reporters []Named

	mu       sync.Mutex
	failures map[string]uint64
}

// NewMulti creates a fan-out over reporters.
func NewMulti(reporters ...Named) *Multi {
	return &Multi{reporters: reporters, failures: make(map[string]uint64)}
}

// Report delivers d to every reporter. It always returns nil.
func (m *Multi) Report(d logic.Decision) error {
	for _, r := range m.reporters {
		if err := r.Report(d); err != nil {
			slog.Warn("report: reporter failed", "reporter", r.Name, "seq", d.Seq, "err", err)
			m.mu.Lock()
			m.failures[r.Name]++
			m.mu.Unlock()
		}
	}
	return nil
}

// Failures returns the failure count per reporter name.
func (m *Multi) Failures() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.failures))
	for k, v := range m.failures {
		out[k] = v
	}
	return out
}

// Console prints one line per decision:
//
//	12.34: STALLED DESCENT PREDICTED!
//	12.34: OK
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole writes to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Report writes the decision line.
func (c *Console) Report(d logic.Decision) error {
	msg := "OK"
	if d.Positive {
		msg = "STALLED DESCENT PREDICTED!"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.w, "%.2f: %s\n", d.Timestamp, msg); err != nil {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}
