package gpio

import "sync"

// FakeWriter is a test double that records every value written.
type FakeWriter struct {
	mu sync.Mutex

	// Values contains every value passed to Set, in order.
	Values []bool

	// Closed tracks if Close was called
	Closed bool

	// SetError, if set, will be returned by Set()
	SetError error
}

// NewFakeWriter creates a FakeWriter.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{}
}

// Set records on.
func (f *FakeWriter) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Values = append(f.Values, on)
	return nil
}

// Close marks the writer as closed.
func (f *FakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Writes returns a copy of the recorded values.
func (f *FakeWriter) Writes() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.Values))
	copy(out, f.Values)
	return out
}
