package feed

import (
	"context"

	"github.com/sweeney/stall-sensor/internal/logic"
)

// FakeSource is a test double that delivers scripted updates.
type FakeSource struct {
	// Updates are sent in order.
	Updates []logic.FieldUpdate

	// Hold keeps Run blocked after the script until ctx is cancelled.
	Hold bool

	// Err, if set, is returned after the script has been sent.
	Err error

	// Sent counts delivered updates.
	Sent int
}

// NewFakeSource creates a FakeSource with the given updates.
func NewFakeSource(updates []logic.FieldUpdate) *FakeSource {
	return &FakeSource{Updates: updates}
}

// Run sends the scripted updates.
func (f *FakeSource) Run(ctx context.Context, out chan<- logic.FieldUpdate) error {
	for _, u := range f.Updates {
		if !send(ctx, out, u) {
			return nil
		}
		f.Sent++
	}
	if f.Err != nil {
		return f.Err
	}
	if f.Hold {
		<-ctx.Done()
	}
	return nil
}
