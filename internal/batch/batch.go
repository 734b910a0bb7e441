package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/google/uuid"
)

// Operation is the opaque unit of work executed by the scheduler. The
// context passed to Submit is handed through unchanged; any deadline a
// caller wants on its work belongs on that context or inside the closure.
type Operation[T any] func(ctx context.Context) (T, error)

type outcome[T any] struct {
	val T
	err error
}

// request pairs an operation with its one-shot completion channel.
// It is created by Submit, owned by the queue, and resolved exactly once
// by the drain loop (or by teardown).
type request[T any] struct {
	id  uuid.UUID
	ctx context.Context
	op  Operation[T]
	out chan outcome[T] // capacity 1, written exactly once
}

func (r request[T]) resolve(val T, err error) {
	r.out <- outcome[T]{val: val, err: err}
}

// Scheduler serializes submitted operations into rate-limited batches.
//
// All submitters share one FIFO queue and at most one drain loop. The
// queue and the draining flag are the only mutable shared state; both are
// guarded by mu.
type Scheduler[T any] struct {
	opts Options

	mu       sync.Mutex
	queue    *ring[request[T]]
	draining bool
	closed   bool

	stopOnce sync.Once
	stopCh   chan struct{} // closed on Shutdown; wakes cooldown sleeps
	wg       sync.WaitGroup
}

// New creates a Scheduler. Negative BatchSize or Cooldown are rejected
// here so misconfiguration never surfaces as a Submit failure.
func New[T any](opts Options) (*Scheduler[T], error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.fillDefaults()
	return &Scheduler[T]{
		opts:   opts,
		queue:  newRing[request[T]](initialQueueCapacity),
		stopCh: make(chan struct{}),
	}, nil
}

// Submit enqueues op and blocks until its result is available.
//
// The returned error is the operation's own failure, a drain-loop failure
// that hit this request's batch, or ErrSchedulerClosed. Failures of other
// requests in the same batch never surface here.
func (s *Scheduler[T]) Submit(ctx context.Context, op Operation[T]) (T, error) {
	var zero T
	if op == nil {
		return zero, ErrNilOperation
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req := request[T]{
		id:  uuid.New(),
		ctx: ctx,
		op:  op,
		out: make(chan outcome[T], 1),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return zero, ErrSchedulerClosed
	}
	s.queue.push(req)
	depth := s.queue.len()
	start := !s.draining
	if start {
		s.draining = true
		s.wg.Add(1)
	}
	s.mu.Unlock()

	s.opts.Metrics.IncSubmitted()
	s.opts.Metrics.SetQueued(int64(depth))

	if start {
		go s.drain()
	}

	o := <-req.out
	return o.val, o.err
}

// QueueLength returns the number of requests waiting to be batched.
func (s *Scheduler[T]) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}

// Shutdown closes the scheduler: no new submissions are accepted, any
// cooldown sleep is cut short, and once the drain loop has stopped every
// request still queued is resolved with ErrSchedulerClosed. It blocks
// until the drain loop exits or ctx is done.
func (s *Scheduler[T]) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.stopCh)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	// No drain loop is running anymore. Requests can still sit in the
	// queue when a previous drain cycle aborted on a bookkeeping failure;
	// resolve them here so nothing is dropped.
	s.mu.Lock()
	rest := s.queue.popN(s.queue.len())
	s.mu.Unlock()
	s.opts.Metrics.SetQueued(0)
	var zero T
	for _, req := range rest {
		req.resolve(zero, ErrSchedulerClosed)
	}
	return nil
}

// Stop is Shutdown without a deadline.
func (s *Scheduler[T]) Stop() { _ = s.Shutdown(context.Background()) }

// drain is the single active consumer of the queue. It runs until the
// queue is observed empty (under the same lock that clears the draining
// flag, so a racing Submit either sees the work or restarts the loop) or
// the scheduler is closed.
func (s *Scheduler[T]) drain() {
	defer s.wg.Done()

	ctx := context.Background()
	var (
		inflight []request[T] // current batch, removed from the queue
		next     int          // index of the first unresolved inflight request
		clean    bool
	)
	defer func() {
		r := recover()
		if r == nil && clean {
			return
		}
		// Bookkeeping failure: resolve exactly the removed-but-unresolved
		// requests, park the scheduler, and let a future Submit restart it.
		err := fmt.Errorf("batch: drain loop failure: %v", r)
		for _, req := range inflight[next:] {
			s.opts.Metrics.IncFailed()
			var zero T
			req.resolve(zero, err)
		}
		s.mu.Lock()
		s.draining = false
		s.mu.Unlock()
		lg.FromContext(ctx).Error("drain loop aborted", lg.Any("error", r))
	}()

	for {
		s.mu.Lock()
		if s.closed {
			rest := s.queue.popN(s.queue.len())
			s.draining = false
			s.mu.Unlock()
			s.opts.Metrics.SetQueued(0)
			var zero T
			for _, req := range rest {
				req.resolve(zero, ErrSchedulerClosed)
			}
			clean = true
			return
		}
		batch := s.queue.popN(s.opts.BatchSize)
		if len(batch) == 0 {
			s.draining = false
			s.mu.Unlock()
			clean = true
			return
		}
		remaining := s.queue.len()
		s.mu.Unlock()

		// From here until the last resolve, the batch is tracked in
		// inflight so the cleanup path can resolve whatever is left.
		inflight, next = batch, 0
		s.opts.Metrics.SetQueued(int64(remaining))
		lg.FromContext(ctx).Info("processing batch",
			lg.Int("size", len(batch)),
			lg.Int("remaining", remaining),
		)
		start := time.Now()
		for i, req := range batch {
			s.execute(req, i+1, len(batch))
			next = i + 1
		}
		inflight, next = nil, 0
		s.opts.Metrics.IncBatches()
		lg.FromContext(ctx).Info("batch complete",
			lg.Int("size", len(batch)),
			lg.String("duration", time.Since(start).String()),
		)

		s.mu.Lock()
		pending := s.queue.len()
		s.mu.Unlock()
		if pending > 0 && s.opts.Cooldown > 0 {
			lg.FromContext(ctx).Info("cooldown before next batch",
				lg.String("wait", s.opts.Cooldown.String()),
				lg.Int("pending", pending),
			)
			timer := time.NewTimer(s.opts.Cooldown)
			select {
			case <-timer.C:
			case <-s.stopCh:
				timer.Stop()
			}
		}
	}
}

// execute runs one request and resolves its completion. Operation errors
// and panics stay local to the request; the batch continues regardless.
func (s *Scheduler[T]) execute(req request[T], n, total int) {
	val, err := runOp(req)
	s.opts.Metrics.IncExecuted()
	if err != nil {
		s.opts.Metrics.IncFailed()
		lg.FromContext(req.ctx).Error("request failed",
			lg.String("request", req.id.String()),
			lg.Int("n", n),
			lg.Int("of", total),
			lg.Any("error", err),
		)
	}
	req.resolve(val, err)
}

// runOp executes the operation with panic containment, so a misbehaving
// operation is reported to its own submitter instead of taking down the
// drain loop.
func runOp[T any](req request[T]) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch: operation panic: %v", r)
		}
	}()
	return req.op(req.ctx)
}
