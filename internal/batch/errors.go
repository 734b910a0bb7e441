package batch

import "errors"

var (
	// ErrBatchSize is returned by New when Options.BatchSize is negative.
	ErrBatchSize = errors.New("batch: batch size must be positive")

	// ErrCooldown is returned by New when Options.Cooldown is negative.
	ErrCooldown = errors.New("batch: cooldown must not be negative")

	// ErrNilOperation is returned by Submit for a nil operation.
	ErrNilOperation = errors.New("batch: operation is nil")

	// ErrSchedulerClosed is returned by Submit after Shutdown, and
	// resolves any request still queued when the scheduler is torn down.
	ErrSchedulerClosed = errors.New("batch: scheduler closed")
)
