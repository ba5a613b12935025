// Package inference runs classifier calls off the update path.
//
// A Runner owns one worker goroutine fed by a FIFO queue, so at most one
// classifier call is in flight and decisions come out in submission order.
// A full queue makes Submit block; requests are never dropped or reordered.
package inference

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/stall-sensor/internal/logic"
)

// DefaultQueueSize is the number of pending requests buffered ahead of the worker.
const DefaultQueueSize = 64

// ErrStopped is returned by Submit once the runner has exited.
var ErrStopped = errors.New("inference: runner stopped")

// Evaluator turns a request into a decision. *logic.Scheduler implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, req logic.Request, c logic.Classifier) (logic.Decision, error)
}

// Options configures a Runner.
type Options struct {
	// Timeout bounds each classifier call. Zero disables the deadline.
	Timeout time.Duration
	// QueueSize is the request buffer depth. Zero uses DefaultQueueSize.
	QueueSize int
}

// Stats is a point-in-time view of runner counters.
type Stats struct {
	Queued    int
	InFlight  bool
	Completed uint64
	LastTook  time.Duration
}

// Runner evaluates inference requests on a single worker goroutine.
type Runner struct {
	eval       Evaluator
	classifier logic.Classifier
	timeout    time.Duration

	queue     chan logic.Request
	decisions chan logic.Decision
	done      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once

	inFlight  atomic.Bool
	completed atomic.Uint64
	lastTook  atomic.Int64
}

// New creates a Runner. Call Run to start the worker.
func New(eval Evaluator, c logic.Classifier, opts Options) *Runner {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Runner{
		eval:       eval,
		classifier: c,
		timeout:    opts.Timeout,
		queue:      make(chan logic.Request, size),
		decisions:  make(chan logic.Decision, size),
		done:       make(chan struct{}),
	}
}

// Submit enqueues req, blocking while the queue is full.
func (r *Runner) Submit(ctx context.Context, req logic.Request) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}
	select {
	case r.queue <- req:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tells the runner no more requests will follow. Run returns nil once
// everything already queued has been evaluated. Submit must not be called
// after Close.
func (r *Runner) Close() {
	r.closeOnce.Do(func() { close(r.queue) })
}

// Decisions returns the ordered decision stream. It is closed when Run returns.
func (r *Runner) Decisions() <-chan logic.Decision {
	return r.decisions
}

// Run processes requests until ctx is cancelled or an evaluation fails.
// The first failure is returned and stops the runner; queued requests are abandoned.
func (r *Runner) Run(ctx context.Context) error {
	defer func() {
		r.stopOnce.Do(func() { close(r.done) })
		close(r.decisions)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-r.queue:
			if !ok {
				return nil
			}
			d, err := r.evaluate(ctx, req)
			if err != nil {
				if ctx.Err() != nil && !errors.Is(err, logic.ErrInferenceTimeout) {
					return nil
				}
				slog.Error("inference: evaluation failed", "seq", req.Seq, "ts", req.Timestamp, "err", err)
				return err
			}
			select {
			case r.decisions <- d:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Stats returns the current counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Queued:    len(r.queue),
		InFlight:  r.inFlight.Load(),
		Completed: r.completed.Load(),
		LastTook:  time.Duration(r.lastTook.Load()),
	}
}

func (r *Runner) evaluate(ctx context.Context, req logic.Request) (logic.Decision, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.inFlight.Store(true)
	start := time.Now()
	d, err := r.eval.Evaluate(ctx, req, r.classifier)
	took := time.Since(start)
	r.inFlight.Store(false)

	r.lastTook.Store(int64(took))
	if err == nil {
		r.completed.Add(1)
		slog.Debug("inference: done", "seq", d.Seq, "score", d.Score, "took", took)
	}
	return d, err
}
