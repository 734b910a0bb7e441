package batch_test

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/me/staketax/internal/batch"
)

func newTestScheduler(t *testing.T, size int, cooldown time.Duration, m batch.MetricsPolicy) *batch.Scheduler[int] {
	t.Helper()

	s, err := batch.New[int](batch.Options{
		BatchSize: size,
		Cooldown:  cooldown,
		Metrics:   m,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		runtime.Gosched()
	}
	t.Fatal("condition not satisfied before timeout")
}

// blockDrain submits an operation that occupies the drain loop until the
// returned release function is called. It lets tests queue further
// submissions deterministically while no batch is being formed.
func blockDrain(t *testing.T, s *batch.Scheduler[int]) (release func(), done <-chan error) {
	t.Helper()

	started := make(chan struct{})
	gate := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), func(context.Context) (int, error) {
			close(started)
			<-gate
			return -1, nil
		})
		errCh <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("blocker did not start")
	}
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }, errCh
}

// submitInOrder launches one Submit goroutine per operation, waiting after
// each launch until the request is queued, so the arrival order is exactly
// the slice order. The drain loop must be blocked while it runs.
func submitInOrder(t *testing.T, s *batch.Scheduler[int], ops []batch.Operation[int]) []chan result {
	t.Helper()

	results := make([]chan result, len(ops))
	for i, op := range ops {
		op := op
		ch := make(chan result, 1)
		results[i] = ch
		go func() {
			v, err := s.Submit(context.Background(), op)
			ch <- result{v: v, err: err}
		}()
		want := i + 1
		waitUntil(t, 2*time.Second, func() bool { return s.QueueLength() == want })
	}
	return results
}

type result struct {
	v   int
	err error
}

// recorder collects execution timestamps keyed by operation index.
type recorder struct {
	mu     sync.Mutex
	order  []int
	starts map[int]time.Time
}

func newRecorder() *recorder {
	return &recorder{starts: make(map[int]time.Time)}
}

func (r *recorder) op(i int) batch.Operation[int] {
	return func(context.Context) (int, error) {
		r.mu.Lock()
		r.order = append(r.order, i)
		r.starts[i] = time.Now()
		r.mu.Unlock()
		return i, nil
	}
}

func (r *recorder) executionOrder() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.order))
	copy(out, r.order)
	return out
}

func (r *recorder) startOf(i int) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts[i]
}
