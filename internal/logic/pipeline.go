package logic

import (
	"errors"
	"fmt"
)

// Config holds the pipeline constants.
type Config struct {
	WindowSize int     // rows fed to the classifier (N)
	Every      int     // run inference on every Kth completion
	Tick       float64 // nominal sampling period, seconds
	Threshold  float64 // score above which a decision is positive
}

// Result describes the effect of one update on the pipeline.
type Result struct {
	Completed bool
	Status    Status
	Rows      int      // rows pushed into the window
	Request   *Request // non-nil when Status is StatusReady
}

// Stats is a point-in-time view of pipeline counters.
type Stats struct {
	Updates     uint64
	Completions uint64
	Requests    uint64
	RowsPushed  uint64
	WindowLen   int
	WindowCap   int
	Pending     int
	FieldCount  int
	LastStatus  Status
	LastTS      float64
	HasLastTS   bool
}

// Pipeline runs accumulator, expander, window and scheduler in sequence.
// Not safe for concurrent use: updates must be fed from a single goroutine
// in arrival order.
type Pipeline struct {
	acc        *Accumulator
	exp        *Expander
	win        *Window
	sched      *Scheduler
	normalizer Normalizer

	updates    uint64
	rowsPushed uint64
	lastStatus Status
}

// NewPipeline wires the core components for the given schema and normalizer.
func NewPipeline(schema *Schema, cfg Config, n Normalizer) (*Pipeline, error) {
	if schema == nil {
		return nil, errors.New("pipeline: nil schema")
	}
	if n == nil {
		return nil, errors.New("pipeline: nil normalizer")
	}
	if cfg.WindowSize <= 0 {
		return nil, fmt.Errorf("pipeline: window size must be positive, got %d", cfg.WindowSize)
	}
	exp, err := NewExpander(cfg.Tick, cfg.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	sched, err := NewScheduler(cfg.Every, cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return &Pipeline{
		acc:        NewAccumulator(schema),
		exp:        exp,
		win:        NewWindow(cfg.WindowSize),
		sched:      sched,
		normalizer: n,
		lastStatus: StatusIncomplete,
	}, nil
}

// Process feeds one update through the pipeline. A non-nil error is a
// *NormalizationError; the window is left untouched and the caller should stop.
func (p *Pipeline) Process(u FieldUpdate) (Result, error) {
	p.updates++

	obs, ok := p.acc.Apply(u)
	if !ok {
		return Result{Status: StatusIncomplete}, nil
	}

	rows, err := p.exp.Expand(obs, p.normalizer)
	if err != nil {
		return Result{Completed: true}, err
	}
	p.win.Push(rows...)
	p.rowsPushed += uint64(len(rows))

	req, st := p.sched.Gate(p.win, obs.Timestamp)
	p.lastStatus = st
	res := Result{Completed: true, Status: st, Rows: len(rows)}
	if st == StatusReady {
		res.Request = &req
	}
	return res, nil
}

// Scheduler returns the pipeline's scheduler, used to evaluate requests.
func (p *Pipeline) Scheduler() *Scheduler { return p.sched }

// Window returns the pipeline's window. Callers must not push into it.
func (p *Pipeline) Window() *Window { return p.win }

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	st := p.sched.State()
	last, hasLast := p.exp.LastTimestamp()
	return Stats{
		Updates:     p.updates,
		Completions: st.Completed,
		Requests:    st.Requested,
		RowsPushed:  p.rowsPushed,
		WindowLen:   p.win.Len(),
		WindowCap:   p.win.Cap(),
		Pending:     p.acc.Pending(),
		FieldCount:  len(p.acc.present),
		LastStatus:  p.lastStatus,
		LastTS:      last,
		HasLastTS:   hasLast,
	}
}
