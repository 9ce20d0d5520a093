package spatial

import (
	"sync/atomic"
)

// CacheLineSize is the typical CPU cache line size (64 bytes on x86-64)
const CacheLineSize = 64

// Padding keeps hot counters on separate cache lines.
type Padding [CacheLineSize]byte

type slot[T any] struct {
	seq  atomic.Uint64
	item T
}

// LockFreeQueue is a bounded multi-producer single-consumer ring buffer
// (Vyukov). Each slot carries a sequence number, so a consumer never observes
// a slot whose write has not completed.
type LockFreeQueue[T any] struct {
	_pad0 Padding
	head  atomic.Uint64 // next position to claim (producers)
	_pad1 Padding
	tail  atomic.Uint64 // next position to read (single consumer)
	_pad2 Padding
	mask  uint64
	slots []slot[T]
}

// NewLockFreeQueue creates a queue. capacity is rounded up to a power of 2.
func NewLockFreeQueue[T any](capacity int) *LockFreeQueue[T] {
	size := 1
	for size < capacity {
		size <<= 1
	}
	q := &LockFreeQueue[T]{
		mask:  uint64(size - 1),
		slots: make([]slot[T], size),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// TryPush adds an item. Returns false when the queue is full.
// Safe for concurrent producers.
func (q *LockFreeQueue[T]) TryPush(item T) bool {
	for {
		pos := q.head.Load()
		s := &q.slots[pos&q.mask]
		seq := s.seq.Load()
		switch {
		case seq == pos:
			if q.head.CompareAndSwap(pos, pos+1) {
				s.item = item
				s.seq.Store(pos + 1)
				return true
			}
		case seq < pos:
			return false
		}
		// another producer advanced head; retry
	}
}

// TryPop removes the oldest published item. Single consumer only.
func (q *LockFreeQueue[T]) TryPop() (T, bool) {
	var zero T
	tail := q.tail.Load()
	s := &q.slots[tail&q.mask]
	if s.seq.Load() != tail+1 {
		return zero, false
	}
	item := s.item
	s.item = zero
	s.seq.Store(tail + q.mask + 1)
	q.tail.Store(tail + 1)
	return item, true
}

// Len returns an approximate count of queued items.
func (q *LockFreeQueue[T]) Len() int {
	head := q.head.Load()
	tail := q.tail.Load()
	if head < tail {
		return 0
	}
	return int(head - tail)
}

// Cap returns the queue capacity.
func (q *LockFreeQueue[T]) Cap() int {
	return int(q.mask + 1)
}

// DrainTo pops up to len(buf) items into buf and returns the count.
func (q *LockFreeQueue[T]) DrainTo(buf []T) int {
	n := 0
	for n < len(buf) {
		item, ok := q.TryPop()
		if !ok {
			break
		}
		buf[n] = item
		n++
	}
	return n
}

// Drain pops every available item, calling fn for each in FIFO order.
func (q *LockFreeQueue[T]) Drain(fn func(T)) int {
	n := 0
	for {
		item, ok := q.TryPop()
		if !ok {
			return n
		}
		fn(item)
		n++
	}
}
