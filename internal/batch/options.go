package batch

import "time"

const (
	// DefaultBatchSize is used when Options.BatchSize is left zero.
	DefaultBatchSize = 5

	// DefaultCooldown is the pause applied by DefaultOptions.
	DefaultCooldown = 2 * time.Second
)

// Options configure a Scheduler.
//
// The zero value is usable: BatchSize falls back to DefaultBatchSize and a
// zero Cooldown means batches run back to back. Negative values are
// rejected by New.
type Options struct {
	// BatchSize is the maximum number of requests executed per batch.
	BatchSize int

	// Cooldown is the pause between consecutive batches while requests
	// remain queued. Zero disables the pause.
	Cooldown time.Duration

	// Metrics receives queueing and execution counters.
	// Defaults to a fresh AtomicMetrics when nil.
	Metrics MetricsPolicy
}

// DefaultOptions returns the library defaults (5 requests per batch,
// 2s cooldown).
func DefaultOptions() Options {
	return Options{
		BatchSize: DefaultBatchSize,
		Cooldown:  DefaultCooldown,
	}
}

func (o *Options) validate() error {
	if o.BatchSize < 0 {
		return ErrBatchSize
	}
	if o.Cooldown < 0 {
		return ErrCooldown
	}
	return nil
}

func (o *Options) fillDefaults() {
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Metrics == nil {
		o.Metrics = &AtomicMetrics{}
	}
}
