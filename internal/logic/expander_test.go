package logic

import (
	"errors"
	"math"
	"testing"
)

var identity = NormalizerFunc(func(raw []float64) ([]float64, error) {
	out := make([]float64, len(raw))
	copy(out, raw)
	return out, nil
})

func TestNewExpanderValidation(t *testing.T) {
	for _, tick := range []float64{0, -0.01, math.NaN(), math.Inf(1)} {
		if _, err := NewExpander(tick, 0); err == nil {
			t.Errorf("tick %v: expected error", tick)
		}
	}
	if _, err := NewExpander(0.01, -1); err == nil {
		t.Error("negative max ticks: expected error")
	}
}

func TestExpanderFirstCompletionIsOneRow(t *testing.T) {
	e, _ := NewExpander(0.01, 0)
	rows, err := e.Expand(Observation{Values: []float64{1, 2}, Timestamp: 500}, identity)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("rows: got %d, want 1", len(rows))
	}
	last, ok := e.LastTimestamp()
	if !ok || last != 500 {
		t.Errorf("LastTimestamp: got (%v, %v), want (500, true)", last, ok)
	}
}

func TestExpanderGapFillCount(t *testing.T) {
	tests := []struct {
		name    string
		tick    float64
		t0, t1  float64
		maxTick int
		want    int
	}{
		{"one tick", 0.01, 10.00, 10.01, 0, 1},
		{"same instant", 0.01, 10.00, 10.00, 0, 1},
		{"below half tick", 0.01, 10.000, 10.004, 0, 1},
		{"rounds up", 0.01, 10.000, 10.016, 0, 2},
		{"three ticks", 0.1, 0.1, 0.4, 0, 3},
		{"ten ticks", 0.01, 1.0, 1.1, 0, 10},
		{"clock went backwards", 0.01, 10.0, 9.0, 0, 1},
		{"capped", 0.01, 0, 100, 1000, 1000},
		{"under cap", 0.01, 0, 5, 1000, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewExpander(tt.tick, tt.maxTick)
			if err != nil {
				t.Fatalf("NewExpander: %v", err)
			}
			if _, err := e.Expand(Observation{Values: []float64{0}, Timestamp: tt.t0}, identity); err != nil {
				t.Fatalf("first Expand: %v", err)
			}
			rows, err := e.Expand(Observation{Values: []float64{7}, Timestamp: tt.t1}, identity)
			if err != nil {
				t.Fatalf("second Expand: %v", err)
			}
			if len(rows) != tt.want {
				t.Errorf("rows: got %d, want %d", len(rows), tt.want)
			}
			for i, r := range rows {
				if r[0] != 7 {
					t.Errorf("row %d: got %v, want 7", i, r[0])
				}
			}
		})
	}
}

func TestExpanderNormalizesOncePerObservation(t *testing.T) {
	calls := 0
	n := NormalizerFunc(func(raw []float64) ([]float64, error) {
		calls++
		return []float64{raw[0] * 2}, nil
	})
	e, _ := NewExpander(0.01, 0)
	e.Expand(Observation{Values: []float64{1}, Timestamp: 0}, n)
	rows, _ := e.Expand(Observation{Values: []float64{3}, Timestamp: 0.05}, n)

	if calls != 2 {
		t.Errorf("normalizer calls: got %d, want 2", calls)
	}
	if len(rows) != 5 {
		t.Fatalf("rows: got %d, want 5", len(rows))
	}
	for i, r := range rows {
		if r[0] != 6 {
			t.Errorf("row %d: got %v, want 6", i, r[0])
		}
	}
}

func TestExpanderNormalizationError(t *testing.T) {
	boom := errors.New("scaler exploded")
	tests := []struct {
		name string
		n    Normalizer
	}{
		{"normalizer error", NormalizerFunc(func([]float64) ([]float64, error) { return nil, boom })},
		{"wrong width", NormalizerFunc(func([]float64) ([]float64, error) { return []float64{1}, nil })},
		{"nan", NormalizerFunc(func([]float64) ([]float64, error) { return []float64{math.NaN(), 0}, nil })},
		{"inf", NormalizerFunc(func([]float64) ([]float64, error) { return []float64{0, math.Inf(-1)}, nil })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := NewExpander(0.01, 0)
			e.Expand(Observation{Values: []float64{0, 0}, Timestamp: 1}, identity)

			rows, err := e.Expand(Observation{Values: []float64{1, 2}, Timestamp: 2}, tt.n)
			if rows != nil {
				t.Errorf("expected no rows, got %d", len(rows))
			}
			var nerr *NormalizationError
			if !errors.As(err, &nerr) {
				t.Fatalf("expected *NormalizationError, got %v", err)
			}
			if nerr.Timestamp != 2 {
				t.Errorf("error timestamp: got %v, want 2", nerr.Timestamp)
			}
			// Baseline must not advance on failure
			if last, _ := e.LastTimestamp(); last != 1 {
				t.Errorf("LastTimestamp: got %v, want 1", last)
			}
		})
	}
}

func TestNormalizationErrorUnwrap(t *testing.T) {
	boom := errors.New("boom")
	err := error(&NormalizationError{Timestamp: 3, Err: boom})
	if !errors.Is(err, boom) {
		t.Error("expected errors.Is to find wrapped error")
	}
}
