package batch_test

import (
	"context"
	"testing"

	"github.com/me/staketax/internal/batch"
)

// BenchmarkSubmit measures submit-to-resolve round trips with cooldown
// disabled, i.e. pure queue and drain-loop overhead.
func BenchmarkSubmit(b *testing.B) {
	s, err := batch.New[int](batch.Options{
		BatchSize: 256,
		Metrics:   batch.NoopMetrics{},
	})
	if err != nil {
		b.Fatal(err)
	}
	defer s.Stop()

	ctx := context.Background()
	op := func(context.Context) (int, error) { return 0, nil }

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := s.Submit(ctx, op); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
