package logic

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fullWindow(n int) *Window {
	w := NewWindow(n)
	for i := 0; i < n; i++ {
		w.Push(row(float64(i)))
	}
	return w
}

func TestNewSchedulerRejectsZeroCadence(t *testing.T) {
	if _, err := NewScheduler(0, DefaultThreshold); err == nil {
		t.Error("expected error for cadence 0")
	}
}

func TestSchedulerCadence(t *testing.T) {
	s, _ := NewScheduler(10, DefaultThreshold)
	w := fullWindow(3)

	for i := 1; i <= 35; i++ {
		_, st := s.Gate(w, float64(i))
		wantReady := i%10 == 0
		if (st == StatusReady) != wantReady {
			t.Errorf("completion %d: status %s, want ready=%v", i, st, wantReady)
		}
		if !wantReady && st != StatusThrottled {
			t.Errorf("completion %d: status %s, want THROTTLED", i, st)
		}
	}
	if got := s.State(); got.Completed != 35 || got.Requested != 3 {
		t.Errorf("state: got %+v, want Completed=35 Requested=3", got)
	}
}

func TestSchedulerWarmUpGate(t *testing.T) {
	s, _ := NewScheduler(1, DefaultThreshold)
	w := NewWindow(3)

	for i := 0; i < 2; i++ {
		w.Push(row(float64(i)))
		if _, st := s.Gate(w, float64(i)); st != StatusWarmingUp {
			t.Errorf("push %d: status %s, want WARMING_UP", i, st)
		}
	}
	w.Push(row(2))
	req, st := s.Gate(w, 2)
	if st != StatusReady {
		t.Fatalf("status: got %s, want READY", st)
	}
	if req.Seq != 3 {
		t.Errorf("Seq: got %d, want 3", req.Seq)
	}
	if len(req.Window) != 3 {
		t.Errorf("window rows: got %d, want 3", len(req.Window))
	}
}

func TestSchedulerRequestSnapshotIsImmutable(t *testing.T) {
	s, _ := NewScheduler(1, DefaultThreshold)
	w := fullWindow(2)
	req, _ := s.Gate(w, 1)
	w.Push(row(50), row(60))
	if req.Window[0][0] != 0 || req.Window[1][0] != 1 {
		t.Errorf("request window changed after push: %v", req.Window)
	}
}

func TestSchedulerEvaluateThreshold(t *testing.T) {
	tests := []struct {
		score float64
		want  bool
	}{
		{0.0, false},
		{0.5, false},
		{0.5000001, true},
		{0.97, true},
		{3.2, true},
		{-1, false},
	}
	s, _ := NewScheduler(1, DefaultThreshold)
	for _, tt := range tests {
		c := ClassifierFunc(func([][]float64) (float64, error) { return tt.score, nil })
		d, err := s.Evaluate(context.Background(), Request{Seq: 4, Timestamp: 12.5}, c)
		if err != nil {
			t.Fatalf("score %v: %v", tt.score, err)
		}
		if d.Positive != tt.want {
			t.Errorf("score %v: Positive=%v, want %v", tt.score, d.Positive, tt.want)
		}
		if d.Score != tt.score || d.Timestamp != 12.5 || d.Seq != 4 {
			t.Errorf("score %v: unexpected decision %+v", tt.score, d)
		}
	}
}

func TestSchedulerEvaluateClassifierError(t *testing.T) {
	s, _ := NewScheduler(1, DefaultThreshold)
	boom := errors.New("model crashed")
	c := ClassifierFunc(func([][]float64) (float64, error) { return 0, boom })

	_, err := s.Evaluate(context.Background(), Request{Seq: 10, Timestamp: 3}, c)
	var ierr *InferenceError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected *InferenceError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("expected wrapped classifier error")
	}
	if ierr.Seq != 10 || ierr.Timestamp != 3 {
		t.Errorf("error fields: got %+v", ierr)
	}
}

func TestSchedulerEvaluateTimeout(t *testing.T) {
	s, _ := NewScheduler(1, DefaultThreshold)
	release := make(chan struct{})
	defer close(release)
	c := ClassifierFunc(func([][]float64) (float64, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Evaluate(ctx, Request{Seq: 1}, c)
	if !errors.Is(err, ErrInferenceTimeout) {
		t.Fatalf("expected ErrInferenceTimeout, got %v", err)
	}
	var ierr *InferenceError
	if !errors.As(err, &ierr) {
		t.Error("timeout should be reported as *InferenceError")
	}
}

func TestOnCompletedObservation(t *testing.T) {
	s, _ := NewScheduler(2, DefaultThreshold)
	w := fullWindow(2)
	c := ClassifierFunc(func(win [][]float64) (float64, error) { return 0.8, nil })

	d, st, err := s.OnCompletedObservation(context.Background(), w, 1.0, c)
	if err != nil || d != nil || st != StatusThrottled {
		t.Fatalf("first completion: got (%v, %s, %v), want (nil, THROTTLED, nil)", d, st, err)
	}

	d, st, err = s.OnCompletedObservation(context.Background(), w, 2.0, c)
	if err != nil {
		t.Fatalf("second completion: %v", err)
	}
	if st != StatusReady || d == nil {
		t.Fatalf("second completion: got (%v, %s)", d, st)
	}
	if !d.Positive || d.Timestamp != 2.0 || d.Seq != 2 {
		t.Errorf("decision: got %+v", *d)
	}
}
