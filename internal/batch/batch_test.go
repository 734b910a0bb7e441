package batch_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/me/staketax/internal/batch"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    batch.Options
		wantErr error
	}{
		{"negative batch size", batch.Options{BatchSize: -1}, batch.ErrBatchSize},
		{"negative cooldown", batch.Options{Cooldown: -time.Second}, batch.ErrCooldown},
		{"zero value", batch.Options{}, nil},
		{"defaults", batch.DefaultOptions(), nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := batch.New[int](tc.opts)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("New: got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestSubmitNilOperation(t *testing.T) {
	s := newTestScheduler(t, 1, 0, nil)
	defer s.Stop()

	if _, err := s.Submit(context.Background(), nil); !errors.Is(err, batch.ErrNilOperation) {
		t.Fatalf("expected ErrNilOperation, got %v", err)
	}
}

// TestBatchingScenario drives five queued operations through a scheduler
// with batch size 2 and a 100ms cooldown: they must execute in submission
// order as batches of 2, 2 and 1, each submitter receiving its own value,
// with a full cooldown between consecutive batches.
func TestBatchingScenario(t *testing.T) {
	t.Parallel()

	const cooldown = 100 * time.Millisecond
	metrics := &batch.AtomicMetrics{}
	s := newTestScheduler(t, 2, cooldown, metrics)
	defer s.Stop()

	release, blockerDone := blockDrain(t, s)

	rec := newRecorder()
	ops := make([]batch.Operation[int], 5)
	for i := range ops {
		ops[i] = rec.op(i)
	}
	results := submitInOrder(t, s, ops)
	release()

	for i, ch := range results {
		select {
		case res := <-ch:
			if res.err != nil {
				t.Fatalf("op %d: unexpected error %v", i, res.err)
			}
			if res.v != i {
				t.Fatalf("op %d: got result %d", i, res.v)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("op %d: no result", i)
		}
	}
	if err := <-blockerDone; err != nil {
		t.Fatalf("blocker: %v", err)
	}

	got := rec.executionOrder()
	for i, idx := range got {
		if idx != i {
			t.Fatalf("execution order %v, want 0..4", got)
		}
	}

	// Batch boundaries after [0 1] and [2 3] must be separated by at
	// least one full cooldown.
	if gap := rec.startOf(2).Sub(rec.startOf(1)); gap < cooldown {
		t.Fatalf("gap between first and second batch = %v, want >= %v", gap, cooldown)
	}
	if gap := rec.startOf(4).Sub(rec.startOf(3)); gap < cooldown {
		t.Fatalf("gap between second and third batch = %v, want >= %v", gap, cooldown)
	}

	// Blocker batch plus batches [0 1], [2 3], [4].
	if got := metrics.Batches(); got != 4 {
		t.Fatalf("batches = %d, want 4", got)
	}
	if got := metrics.Executed(); got != 6 {
		t.Fatalf("executed = %d, want 6", got)
	}
}

func TestCooldownBoundary(t *testing.T) {
	t.Parallel()

	const cooldown = 120 * time.Millisecond
	s := newTestScheduler(t, 1, cooldown, nil)
	defer s.Stop()

	release, blockerDone := blockDrain(t, s)

	rec := newRecorder()
	results := submitInOrder(t, s, []batch.Operation[int]{rec.op(0), rec.op(1), rec.op(2)})
	release()

	for i, ch := range results {
		select {
		case res := <-ch:
			if res.err != nil || res.v != i {
				t.Fatalf("op %d: got (%d, %v)", i, res.v, res.err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("op %d: no result", i)
		}
	}
	<-blockerDone

	for i := 1; i < 3; i++ {
		if gap := rec.startOf(i).Sub(rec.startOf(i - 1)); gap < cooldown {
			t.Fatalf("op %d started %v after op %d, want >= %v", i, gap, i-1, cooldown)
		}
	}
}

// TestFailureIsolation puts a failing and a succeeding operation into the
// same batch: the failure must reach only its own submitter.
func TestFailureIsolation(t *testing.T) {
	t.Parallel()

	metrics := &batch.AtomicMetrics{}
	s := newTestScheduler(t, 3, 0, metrics)
	defer s.Stop()

	release, blockerDone := blockDrain(t, s)

	boom := errors.New("boom")
	results := submitInOrder(t, s, []batch.Operation[int]{
		func(context.Context) (int, error) { return 0, boom },
		func(context.Context) (int, error) { return 42, nil },
	})
	release()

	if res := <-results[0]; !errors.Is(res.err, boom) {
		t.Fatalf("failing op: got %v, want %v", res.err, boom)
	}
	if res := <-results[1]; res.err != nil || res.v != 42 {
		t.Fatalf("succeeding op: got (%d, %v)", res.v, res.err)
	}
	<-blockerDone

	if got := metrics.Failed(); got != 1 {
		t.Fatalf("failed = %d, want 1", got)
	}
}

func TestOperationPanicIsContained(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, 2, 0, nil)
	defer s.Stop()

	release, blockerDone := blockDrain(t, s)

	results := submitInOrder(t, s, []batch.Operation[int]{
		func(context.Context) (int, error) { panic("kaboom") },
		func(context.Context) (int, error) { return 7, nil },
	})
	release()

	res := <-results[0]
	if res.err == nil || !strings.Contains(res.err.Error(), "operation panic") {
		t.Fatalf("panicking op: got %v", res.err)
	}
	if res := <-results[1]; res.err != nil || res.v != 7 {
		t.Fatalf("sibling op: got (%d, %v)", res.v, res.err)
	}
	<-blockerDone
}

// TestSingleDrainLoop floods the scheduler from many goroutines and checks
// that operations never overlap: batches run sequentially inside a single
// drain loop, so two operations executing at once would mean a second loop.
func TestSingleDrainLoop(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, 4, time.Millisecond, nil)
	defer s.Stop()

	var (
		active   atomic.Int32
		overlaps atomic.Int32
		wg       sync.WaitGroup
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Submit(context.Background(), func(context.Context) (int, error) {
				if active.Add(1) > 1 {
					overlaps.Add(1)
				}
				defer active.Add(-1)
				time.Sleep(100 * time.Microsecond)
				return 0, nil
			})
			if err != nil {
				t.Errorf("submit: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := overlaps.Load(); n != 0 {
		t.Fatalf("observed %d overlapping executions", n)
	}
}

// TestRestartAfterIdle checks the Idle -> Draining -> Idle cycle: once the
// queue empties and the loop exits, a later submission must start a fresh
// drain with the same guarantees.
func TestRestartAfterIdle(t *testing.T) {
	t.Parallel()

	metrics := &batch.AtomicMetrics{}
	s := newTestScheduler(t, 2, time.Millisecond, metrics)
	defer s.Stop()

	for round := 0; round < 3; round++ {
		v, err := s.Submit(context.Background(), func(context.Context) (int, error) {
			return round, nil
		})
		if err != nil || v != round {
			t.Fatalf("round %d: got (%d, %v)", round, v, err)
		}
		waitUntil(t, time.Second, func() bool { return s.QueueLength() == 0 })
	}

	if got := metrics.Batches(); got != 3 {
		t.Fatalf("batches = %d, want 3", got)
	}
}

// panicMetrics fails the drain loop's own bookkeeping on the nth executed
// request, simulating a mechanism failure that is not attributable to any
// single operation.
type panicMetrics struct {
	batch.AtomicMetrics
	fireAt int64
	calls  atomic.Int64
}

func (m *panicMetrics) IncExecuted() {
	if m.calls.Add(1) == m.fireAt {
		panic("bookkeeping failure")
	}
	m.AtomicMetrics.IncExecuted()
}

// TestDrainFailureContainment injects a failure into the loop's own
// bookkeeping mid-batch: the unresolved remainder of the in-flight batch
// must be resolved with that failure, requests still queued must survive,
// and the next submission must restart draining.
func TestDrainFailureContainment(t *testing.T) {
	t.Parallel()

	metrics := &panicMetrics{fireAt: 2} // call 1 is the blocker
	s := newTestScheduler(t, 3, 0, metrics)
	defer s.Stop()

	release, blockerDone := blockDrain(t, s)

	results := submitInOrder(t, s, []batch.Operation[int]{
		func(context.Context) (int, error) { return 0, nil },
		func(context.Context) (int, error) { return 1, nil },
		func(context.Context) (int, error) { return 2, nil },
		func(context.Context) (int, error) { return 3, nil },
		func(context.Context) (int, error) { return 4, nil },
	})
	release()
	if err := <-blockerDone; err != nil {
		t.Fatalf("blocker: %v", err)
	}

	// First batch after the blocker is [0 1 2]; the bookkeeping failure
	// fires while it is in flight, so all three resolve with it.
	for i := 0; i < 3; i++ {
		res := <-results[i]
		if res.err == nil || !strings.Contains(res.err.Error(), "drain loop failure") {
			t.Fatalf("op %d: got %v, want drain loop failure", i, res.err)
		}
	}

	// Requests 3 and 4 were still queued; they must not be resolved yet.
	if got := s.QueueLength(); got != 2 {
		t.Fatalf("queue length = %d, want 2", got)
	}

	// A fresh submission restarts draining and flushes the backlog.
	v, err := s.Submit(context.Background(), func(context.Context) (int, error) {
		return 5, nil
	})
	if err != nil || v != 5 {
		t.Fatalf("restart submit: got (%d, %v)", v, err)
	}
	for i := 3; i < 5; i++ {
		res := <-results[i]
		if res.err != nil || res.v != i {
			t.Fatalf("op %d after restart: got (%d, %v)", i, res.v, res.err)
		}
	}
}

func TestShutdownResolvesQueued(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, 1, time.Hour, nil)

	release, blockerDone := blockDrain(t, s)
	results := submitInOrder(t, s, []batch.Operation[int]{
		func(context.Context) (int, error) { return 0, nil },
		func(context.Context) (int, error) { return 1, nil },
	})

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownDone <- s.Shutdown(context.Background())
	}()
	// Give Shutdown a moment to mark the scheduler closed, then let the
	// in-flight blocker finish.
	time.Sleep(20 * time.Millisecond)
	release()

	if err := <-shutdownDone; err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := <-blockerDone; err != nil {
		t.Fatalf("blocker: %v", err)
	}
	for i, ch := range results {
		res := <-ch
		if !errors.Is(res.err, batch.ErrSchedulerClosed) {
			t.Fatalf("queued op %d: got %v, want ErrSchedulerClosed", i, res.err)
		}
	}

	if _, err := s.Submit(context.Background(), func(context.Context) (int, error) {
		return 0, nil
	}); !errors.Is(err, batch.ErrSchedulerClosed) {
		t.Fatalf("submit after shutdown: got %v", err)
	}
}

func TestShutdownTimeout(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, 1, 0, nil)

	release, blockerDone := blockDrain(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	release()
	<-blockerDone

	// Second shutdown should succeed once the blocker is gone.
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
