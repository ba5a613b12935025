package logic

import (
	"context"
	"errors"
	"fmt"
)

// DefaultThreshold is the score above which a stalled descent is predicted.
const DefaultThreshold = 0.5

// SchedulerState is the scheduler's lifetime counters.
type SchedulerState struct {
	Completed uint64
	Requested uint64
}

// Scheduler decides on every completed observation whether inference should
// run: every Kth completion, and only once the window is full.
type Scheduler struct {
	every     uint64
	threshold float64
	state     SchedulerState
}

// NewScheduler creates a scheduler that lets every Kth completion through.
func NewScheduler(every int, threshold float64) (*Scheduler, error) {
	if every < 1 {
		return nil, fmt.Errorf("scheduler: cadence must be at least 1, got %d", every)
	}
	return &Scheduler{every: uint64(every), threshold: threshold}, nil
}

// Gate counts the completion at ts and applies the cadence and fullness gates.
// On StatusReady the returned Request holds an immutable window snapshot.
func (s *Scheduler) Gate(w *Window, ts float64) (Request, Status) {
	s.state.Completed++
	if s.state.Completed%s.every != 0 {
		return Request{}, StatusThrottled
	}
	if !w.IsFull() {
		return Request{}, StatusWarmingUp
	}
	s.state.Requested++
	return Request{
		Seq:       s.state.Completed,
		Timestamp: ts,
		Window:    w.Snapshot(),
	}, StatusReady
}

// Evaluate runs the classifier on req. Classifier failures are returned as
// *InferenceError; a ctx deadline is reported as ErrInferenceTimeout.
func (s *Scheduler) Evaluate(ctx context.Context, req Request, c Classifier) (Decision, error) {
	score, err := classify(ctx, c, req.Window)
	if err != nil {
		return Decision{}, &InferenceError{Seq: req.Seq, Timestamp: req.Timestamp, Err: err}
	}
	return Decision{
		Seq:       req.Seq,
		Timestamp: req.Timestamp,
		Positive:  score > s.threshold,
		Score:     score,
	}, nil
}

// OnCompletedObservation is Gate followed by Evaluate on the calling goroutine.
// It returns a nil Decision when a gate held the observation back.
func (s *Scheduler) OnCompletedObservation(ctx context.Context, w *Window, ts float64, c Classifier) (*Decision, Status, error) {
	req, st := s.Gate(w, ts)
	if st != StatusReady {
		return nil, st, nil
	}
	d, err := s.Evaluate(ctx, req, c)
	if err != nil {
		return nil, st, err
	}
	return &d, st, nil
}

// State returns a copy of the scheduler counters.
func (s *Scheduler) State() SchedulerState {
	return s.state
}

// classify calls c and gives up once ctx is done. The classifier goroutine
// is left to finish on its own; its result is discarded.
func classify(ctx context.Context, c Classifier, window [][]float64) (float64, error) {
	if ctx.Done() == nil {
		return c.Classify(window)
	}

	type result struct {
		score float64
		err   error
	}
	done := make(chan result, 1)
	go func() {
		score, err := c.Classify(window)
		done <- result{score, err}
	}()

	select {
	case r := <-done:
		return r.score, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, ErrInferenceTimeout
		}
		return 0, ctx.Err()
	}
}
