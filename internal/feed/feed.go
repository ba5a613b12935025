// Package feed delivers field updates from the flight simulator into the pipeline.
// Sources run on their own goroutines; Serialize fans them into one channel
// so the pipeline sees a single ordered stream.
package feed

import (
	"context"
	"path"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/stall-sensor/internal/logic"
)

// Source produces field updates until ctx is cancelled or the source is exhausted.
type Source interface {
	// Run sends updates to out. It returns nil on cancellation or clean end of input.
	Run(ctx context.Context, out chan<- logic.FieldUpdate) error
}

// Node binds a simulator property path to a schema field.
type Node struct {
	Path  string
	Field string
}

// Name returns the property leaf name the simulator reports, e.g. "pitch-deg".
func (n Node) Name() string {
	return path.Base(n.Path)
}

// DefaultNodes are the FlightGear properties backing the default schema.
var DefaultNodes = []Node{
	{Path: "/orientation/pitch-deg", Field: logic.FieldPitch},
	{Path: "/position/altitude-ft", Field: logic.FieldAltitude},
	{Path: "/orientation/roll-deg", Field: logic.FieldRoll},
	{Path: "/velocities/airspeed-kt", Field: logic.FieldAirspeed},
}

// Serialize runs every source concurrently and funnels their updates into out,
// which is closed once all sources have returned. The first source error
// cancels the others and is returned.
func Serialize(ctx context.Context, out chan<- logic.FieldUpdate, sources ...Source) error {
	defer close(out)
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			return src.Run(ctx, out)
		})
	}
	return g.Wait()
}

// send delivers u unless ctx is done first.
func send(ctx context.Context, out chan<- logic.FieldUpdate, u logic.FieldUpdate) bool {
	select {
	case out <- u:
		return true
	case <-ctx.Done():
		return false
	}
}
