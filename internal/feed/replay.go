package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/sweeney/stall-sensor/internal/logic"
)

// Record is one line of a JSONL update log.
type Record struct {
	Field string  `json:"field"`
	Value float64 `json:"value"`
	TS    float64 `json:"ts"`
}

// maxLineSize bounds a single JSONL line.
const maxLineSize = 64 * 1024

// Replay reads a JSONL update log and delivers it in file order, as fast as
// the consumer accepts it. Records for unknown fields are skipped; a malformed
// line stops the replay with an error.
type Replay struct {
	r      io.Reader
	schema *logic.Schema
}

// NewReplay creates a replay source over r.
func NewReplay(r io.Reader, schema *logic.Schema) *Replay {
	return &Replay{r: r, schema: schema}
}

// Run sends every record in r to out.
func (rp *Replay) Run(ctx context.Context, out chan<- logic.FieldUpdate) error {
	sc := bufio.NewScanner(rp.r)
	sc.Buffer(make([]byte, 0, 4096), maxLineSize)

	line := 0
	skipped := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("replay: line %d: %w", line, err)
		}
		id, ok := rp.schema.Lookup(rec.Field)
		if !ok {
			skipped++
			continue
		}
		if !send(ctx, out, logic.FieldUpdate{Field: id, Value: rec.Value, Timestamp: rec.TS}) {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("replay: line %d: %w", line+1, err)
	}
	if skipped > 0 {
		slog.Warn("replay: skipped records for unknown fields", "count", skipped)
	}
	slog.Info("replay: finished", "lines", line)
	return nil
}
