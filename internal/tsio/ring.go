package tsio

import "sync/atomic"

// Ring is a single producer, single consumer queue of fixed capacity. The
// producer never blocks: a full ring refuses the item.
type Ring[T any] struct {
	buf   []T
	mask  uint64
	head  atomic.Uint64 // consumer index
	tail  atomic.Uint64 // producer index
	ready chan struct{}
}

// NewRing rounds capacity up to a power of two.
func NewRing[T any](capacity int) *Ring[T] {
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &Ring[T]{buf: make([]T, n), mask: uint64(n - 1), ready: make(chan struct{}, 1)}
}

func (r *Ring[T]) TryPush(x T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() >= uint64(len(r.buf)) {
		return false
	}
	r.buf[tail&r.mask] = x
	r.tail.Store(tail + 1)
	select {
	case r.ready <- struct{}{}:
	default:
	}
	return true
}

// TryPopBatch moves up to len(dst) items into dst.
func (r *Ring[T]) TryPopBatch(dst []T) int {
	head := r.head.Load()
	n := int(r.tail.Load() - head)
	if n > len(dst) {
		n = len(dst)
	}
	var zero T
	for i := 0; i < n; i++ {
		slot := &r.buf[(head+uint64(i))&r.mask]
		dst[i] = *slot
		*slot = zero
	}
	r.head.Store(head + uint64(n))
	return n
}

// Ready is signalled after pushes; the consumer waits on it when
// TryPopBatch comes back empty.
func (r *Ring[T]) Ready() <-chan struct{} { return r.ready }

func (r *Ring[T]) Len() int { return int(r.tail.Load() - r.head.Load()) }

func (r *Ring[T]) Cap() int { return len(r.buf) }
