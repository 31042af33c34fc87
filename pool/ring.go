// File: pool/ring.go
// Package pool implements lock-free rings for cross-loop resource transfer.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// RingBuffer is a bounded MPMC circular buffer using per-cell sequence
// numbers (Dmitry Vyukov's scheme), padded to prevent false sharing.
// Multiple loop goroutines acquire and release through it without a shared
// lock.

package pool

import (
	"sync/atomic"
)

const cacheLinePad = 64

type cell[T any] struct {
	sequence atomic.Uint64
	data     T
}

// RingBuffer is a lock-free fixed-capacity MPMC ring (power-of-two size).
type RingBuffer[T any] struct {
	head  uint64
	_     [cacheLinePad]byte
	tail  uint64
	_     [cacheLinePad]byte
	mask  uint64
	cells []cell[T]
}

// NewRingBuffer allocates a ring buffer, rounding size up to a power of two.
func NewRingBuffer[T any](size uint64) *RingBuffer[T] {
	if size < 2 {
		size = 2
	}
	if size&(size-1) != 0 {
		n := uint64(1)
		for n < size {
			n <<= 1
		}
		size = n
	}
	r := &RingBuffer[T]{
		mask:  size - 1,
		cells: make([]cell[T], size),
	}
	for i := range r.cells {
		r.cells[i].sequence.Store(uint64(i))
	}
	return r
}

// Enqueue adds an item; returns false if full.
func (r *RingBuffer[T]) Enqueue(item T) bool {
	for {
		tail := atomic.LoadUint64(&r.tail)
		c := &r.cells[tail&r.mask]
		seq := c.sequence.Load()
		dif := int64(seq) - int64(tail)
		switch {
		case dif == 0:
			if atomic.CompareAndSwapUint64(&r.tail, tail, tail+1) {
				c.data = item
				c.sequence.Store(tail + 1)
				return true
			}
		case dif < 0:
			return false // full
		}
		// tail moved under us, retry
	}
}

// Dequeue removes and returns (item, ok); ok==false if empty.
func (r *RingBuffer[T]) Dequeue() (item T, ok bool) {
	for {
		head := atomic.LoadUint64(&r.head)
		c := &r.cells[head&r.mask]
		seq := c.sequence.Load()
		dif := int64(seq) - int64(head+1)
		switch {
		case dif == 0:
			if atomic.CompareAndSwapUint64(&r.head, head, head+1) {
				item = c.data
				var zero T
				c.data = zero
				c.sequence.Store(head + r.mask + 1)
				return item, true
			}
		case dif < 0:
			return item, false // empty
		}
		// head moved under us, retry
	}
}

// Len returns number of items in the buffer.
func (r *RingBuffer[T]) Len() int {
	head := atomic.LoadUint64(&r.head)
	tail := atomic.LoadUint64(&r.tail)
	return int(tail - head)
}

// Cap returns logical buffer capacity.
func (r *RingBuffer[T]) Cap() int {
	return len(r.cells)
}
