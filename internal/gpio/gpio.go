// Package gpio drives a GPIO output line with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"
	"sync"

	"github.com/sweeney/stall-sensor/internal/logic"
)

// Writer drives a single GPIO output line.
type Writer interface {
	// Set drives the line active (true) or inactive (false).
	Set(on bool) error

	// Close releases GPIO resources, leaving the line inactive.
	Close() error
}

// PinAlert is the default alert line (BCM numbering).
const PinAlert = 17

// AlertLine raises a warning lamp or buzzer while the latest decision is a
// predicted stall. The line is only written when its state changes.
type AlertLine struct {
	w Writer

	mu    sync.Mutex
	on    bool
	known bool
}

// NewAlertLine wraps w.
func NewAlertLine(w Writer) *AlertLine {
	return &AlertLine{w: w}
}

// Report sets the line for a positive decision and clears it otherwise.
func (a *AlertLine) Report(d logic.Decision) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.known && a.on == d.Positive {
		return nil
	}
	if err := a.w.Set(d.Positive); err != nil {
		return fmt.Errorf("gpio: set alert line: %w", err)
	}
	a.on = d.Positive
	a.known = true
	return nil
}

// Active reports whether the alert line is currently raised.
func (a *AlertLine) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.on
}
