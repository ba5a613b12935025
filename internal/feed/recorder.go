package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/sweeney/stall-sensor/internal/logic"
)

// Recorder wraps a source and appends every update it forwards to w as a
// JSONL Record, producing logs that Replay can read back.
type Recorder struct {
	src    Source
	schema *logic.Schema

	mu  sync.Mutex
	enc *json.Encoder
	err error
}

// NewRecorder records updates from src to w.
func NewRecorder(src Source, schema *logic.Schema, w io.Writer) *Recorder {
	return &Recorder{src: src, schema: schema, enc: json.NewEncoder(w)}
}

// Run forwards updates from the wrapped source to out, recording each one.
// A write failure stops recording but not forwarding; it is returned when
// the source finishes.
func (r *Recorder) Run(ctx context.Context, out chan<- logic.FieldUpdate) error {
	mid := make(chan logic.FieldUpdate)
	errCh := make(chan error, 1)
	go func() {
		defer close(mid)
		errCh <- r.src.Run(ctx, mid)
	}()

	for u := range mid {
		r.record(u)
		if !send(ctx, out, u) {
			// Drain so the wrapped source can observe cancellation and exit.
			for range mid {
			}
			break
		}
	}

	if err := <-errCh; err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) record(u logic.FieldUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	rec := Record{Field: r.schema.Name(u.Field), Value: u.Value, TS: u.Timestamp}
	if err := r.enc.Encode(rec); err != nil {
		r.err = fmt.Errorf("recorder: %w", err)
	}
}
