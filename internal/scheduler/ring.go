package scheduler

import "sync/atomic"

// Ring is a bounded single-producer/single-consumer queue of action
// records. The scheduler goroutine pushes; the render goroutine peeks and
// pops. Neither side blocks.
type Ring struct {
	buf  []Record
	mask uint64
	head atomic.Uint64 // next slot to read
	tail atomic.Uint64 // next slot to write
}

// NewRing rounds capacity up to a power of two.
func NewRing(capacity int) *Ring {
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &Ring{buf: make([]Record, n), mask: uint64(n - 1)}
}

// Push appends rec and reports false when the ring is full.
func (r *Ring) Push(rec Record) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() == uint64(len(r.buf)) {
		return false
	}
	r.buf[tail&r.mask] = rec
	r.tail.Store(tail + 1)
	return true
}

// Peek returns the oldest record without consuming it.
func (r *Ring) Peek() (Record, bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		return Record{}, false
	}
	return r.buf[head&r.mask], true
}

// Pop discards the oldest record.
func (r *Ring) Pop() {
	head := r.head.Load()
	if head != r.tail.Load() {
		r.head.Store(head + 1)
	}
}

func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

func (r *Ring) Cap() int { return len(r.buf) }

// Drain discards everything. Consumer side only.
func (r *Ring) Drain() {
	r.head.Store(r.tail.Load())
}
