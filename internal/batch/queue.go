package batch

const initialQueueCapacity = 64

// ring is a growable circular FIFO buffer.
//
// Unlike a fixed-capacity queue that drops submissions when full, the ring
// doubles its backing array on demand: every request accepted by the
// scheduler must eventually be resolved, so dropping is not an option.
// All access is serialized by the scheduler's mutex.
type ring[T any] struct {
	buf  []T // circular buffer
	head int // read index
	size int // number of buffered elements
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

// len returns the number of buffered elements.
func (q *ring[T]) len() int { return q.size }

// push appends v at the tail, growing the buffer when full.
func (q *ring[T]) push(v T) {
	if q.size == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.size)%len(q.buf)] = v
	q.size++
}

func (q *ring[T]) grow() {
	next := make([]T, 2*len(q.buf))
	for i := 0; i < q.size; i++ {
		next[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = next
	q.head = 0
}

// popN removes and returns up to n of the oldest elements, preserving
// insertion order. Returns nil when the queue is empty or n <= 0.
func (q *ring[T]) popN(n int) []T {
	if n > q.size {
		n = q.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	var zero T
	for i := 0; i < n; i++ {
		idx := (q.head + i) % len(q.buf)
		out[i] = q.buf[idx]
		q.buf[idx] = zero // drop the reference so resolved requests can be collected
	}
	q.head = (q.head + n) % len(q.buf)
	q.size -= n
	return out
}
