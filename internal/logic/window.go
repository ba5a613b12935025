package logic

// Window is a fixed-capacity FIFO of the most recent rows.
// Pushing into a full window overwrites the oldest row.
// Not safe for concurrent use; the caller must synchronize.
type Window struct {
	buf   []Row
	head  int // next write position
	count int
}

// NewWindow creates a window holding at most capacity rows. capacity must be positive.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		panic("logic: window capacity must be positive")
	}
	return &Window{buf: make([]Row, capacity)}
}

// Push appends rows in order, evicting from the head once capacity is reached.
// If more rows than capacity are pushed at once only the last capacity rows remain.
func (w *Window) Push(rows ...Row) {
	capacity := len(w.buf)
	if len(rows) > capacity {
		rows = rows[len(rows)-capacity:]
	}
	for _, r := range rows {
		w.buf[w.head] = r
		w.head = (w.head + 1) % capacity
		if w.count < capacity {
			w.count++
		}
	}
}

// Len returns the number of rows held.
func (w *Window) Len() int { return w.count }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// IsFull reports whether the window holds exactly Cap rows.
func (w *Window) IsFull() bool { return w.count == len(w.buf) }

// Snapshot returns a deep copy of the rows, oldest first.
func (w *Window) Snapshot() [][]float64 {
	out := make([][]float64, w.count)
	capacity := len(w.buf)
	// Oldest row is at (head - count) mod capacity
	start := (w.head - w.count + capacity) % capacity
	for i := 0; i < w.count; i++ {
		r := w.buf[(start+i)%capacity]
		out[i] = make([]float64, len(r))
		copy(out[i], r)
	}
	return out
}
