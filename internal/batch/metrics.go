package batch

import (
	"sync/atomic"
)

// MetricsPolicy defines hooks used by the scheduler to report queueing
// and execution activity.
//
// Implementations must be safe for concurrent use. All methods are
// expected to be lightweight and non-blocking.
type MetricsPolicy interface {

	// IncSubmitted increments the accepted-requests counter.
	IncSubmitted()

	// IncExecuted increments the executed-requests counter.
	// Failed requests count as executed too.
	IncExecuted()

	// IncFailed increments the failed-requests counter.
	IncFailed()

	// IncBatches increments the completed-batches counter.
	IncBatches()

	// SetQueued records the current queue depth.
	SetQueued(n int64)
}

// AtomicMetrics is a lock-free metrics implementation backed by atomics.
//
// Writes are optimized for hot paths.
// Reads are intended for cold-path observation.
type AtomicMetrics struct {
	submitted atomic.Uint64
	executed  atomic.Uint64
	failed    atomic.Uint64
	batches   atomic.Uint64

	_ [24]byte // padding to avoid false sharing with the gauge below

	queued atomic.Int64
}

// Submitted returns the total number of accepted requests.
func (m *AtomicMetrics) Submitted() uint64 { return m.submitted.Load() }

// Executed returns the total number of executed requests.
func (m *AtomicMetrics) Executed() uint64 { return m.executed.Load() }

// Failed returns the total number of requests resolved with an error.
func (m *AtomicMetrics) Failed() uint64 { return m.failed.Load() }

// Batches returns the total number of completed batches.
func (m *AtomicMetrics) Batches() uint64 { return m.batches.Load() }

// Queued returns the queue depth recorded by the last update.
func (m *AtomicMetrics) Queued() int64 { return m.queued.Load() }

func (m *AtomicMetrics) IncSubmitted() { m.submitted.Add(1) }

func (m *AtomicMetrics) IncExecuted() { m.executed.Add(1) }

func (m *AtomicMetrics) IncFailed() { m.failed.Add(1) }

func (m *AtomicMetrics) IncBatches() { m.batches.Add(1) }

func (m *AtomicMetrics) SetQueued(n int64) { m.queued.Store(n) }

//------------- NoopMetrics ----------------------------------

// NoopMetrics is a MetricsPolicy implementation that discards all metric
// updates. Use it when metrics collection is disabled and zero overhead
// is desired.
type NoopMetrics struct{}

func (NoopMetrics) IncSubmitted()   {}
func (NoopMetrics) IncExecuted()    {}
func (NoopMetrics) IncFailed()      {}
func (NoopMetrics) IncBatches()     {}
func (NoopMetrics) SetQueued(int64) {}
