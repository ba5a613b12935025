package inference

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/stall-sensor/internal/logic"
)

func newScheduler(t *testing.T) *logic.Scheduler {
	t.Helper()
	s, err := logic.NewScheduler(1, logic.DefaultThreshold)
	require.NoError(t, err)
	return s
}

func start(t *testing.T, r *Runner) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, errCh
}

func TestRunnerPreservesOrderAndSerializesCalls(t *testing.T) {
	var active, maxActive atomic.Int32
	c := logic.ClassifierFunc(func(win [][]float64) (float64, error) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
		return win[0][0], nil
	})

	r := New(newScheduler(t), c, Options{QueueSize: 4})
	cancel, errCh := start(t, r)

	const n = 20
	go func() {
		for i := 1; i <= n; i++ {
			req := logic.Request{Seq: uint64(i), Timestamp: float64(i), Window: [][]float64{{float64(i%2) * 0.9}}}
			if err := r.Submit(context.Background(), req); err != nil {
				t.Errorf("Submit %d: %v", i, err)
				return
			}
		}
	}()

	for i := 1; i <= n; i++ {
		select {
		case d := <-r.Decisions():
			assert.Equal(t, uint64(i), d.Seq, "decision order")
			assert.Equal(t, i%2 == 1, d.Positive, "decision %d", i)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for decision %d", i)
		}
	}

	assert.Equal(t, int32(1), maxActive.Load(), "more than one classifier call in flight")
	assert.Equal(t, uint64(n), r.Stats().Completed)

	cancel()
	assert.NoError(t, <-errCh)
}

func TestRunnerStopsOnClassifierError(t *testing.T) {
	boom := errors.New("model crashed")
	c := logic.ClassifierFunc(func([][]float64) (float64, error) { return 0, boom })
	r := New(newScheduler(t), c, Options{})
	_, errCh := start(t, r)

	require.NoError(t, r.Submit(context.Background(), logic.Request{Seq: 10, Timestamp: 1}))

	err := <-errCh
	var ierr *logic.InferenceError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, uint64(10), ierr.Seq)
	assert.ErrorIs(t, err, boom)

	_, open := <-r.Decisions()
	assert.False(t, open, "decisions channel should be closed")
	assert.ErrorIs(t, r.Submit(context.Background(), logic.Request{}), ErrStopped)
}

func TestRunnerTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	c := logic.ClassifierFunc(func([][]float64) (float64, error) {
		<-release
		return 1, nil
	})
	r := New(newScheduler(t), c, Options{Timeout: 20 * time.Millisecond})
	_, errCh := start(t, r)

	require.NoError(t, r.Submit(context.Background(), logic.Request{Seq: 1}))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, logic.ErrInferenceTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not time out")
	}
}

func TestRunnerCancelIsClean(t *testing.T) {
	c := logic.ClassifierFunc(func([][]float64) (float64, error) { return 0.1, nil })
	r := New(newScheduler(t), c, Options{})
	cancel, errCh := start(t, r)

	cancel()
	assert.NoError(t, <-errCh)
}

func TestSubmitHonoursContextWhenQueueFull(t *testing.T) {
	c := logic.ClassifierFunc(func([][]float64) (float64, error) { return 0, nil })
	r := New(newScheduler(t), c, Options{QueueSize: 1})
	// Run not started: the first request fills the queue.
	require.NoError(t, r.Submit(context.Background(), logic.Request{Seq: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.Submit(ctx, logic.Request{Seq: 2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, r.Stats().Queued)
}

func TestRunnerCloseDrainsQueue(t *testing.T) {
	c := logic.ClassifierFunc(func(win [][]float64) (float64, error) { return win[0][0], nil })
	r := New(newScheduler(t), c, Options{QueueSize: 8})

	for i := 1; i <= 3; i++ {
		req := logic.Request{Seq: uint64(i), Window: [][]float64{{0.9}}}
		require.NoError(t, r.Submit(context.Background(), req))
	}
	r.Close()
	r.Close() // idempotent

	_, errCh := start(t, r)

	var seqs []uint64
	for d := range r.Decisions() {
		seqs = append(seqs, d.Seq)
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
	assert.NoError(t, <-errCh)
}
