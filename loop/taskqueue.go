// File: loop/taskqueue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Multiple-producer/single-consumer task queue for marshaling work onto a
// loop goroutine. The lock-free ring is the fast path; when it fills, tasks
// spill into an unbounded FIFO under a mutex so Submit never drops work.
// The loop drains once per cycle, so loop-owned state is never mutated
// mid-cycle.

package loop

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-io/pool"
)

type taskQueue struct {
	ring *pool.RingBuffer[func()]

	// spilled mirrors the overflow occupancy so push can route without
	// taking the lock on the fast path.
	spilled atomic.Int64

	mu       sync.Mutex
	overflow *queue.Queue
}

func newTaskQueue(size int) *taskQueue {
	return &taskQueue{
		ring:     pool.NewRingBuffer[func()](uint64(size)),
		overflow: queue.New(),
	}
}

// push enqueues from any goroutine. While spilled tasks remain, later
// pushes spill too: a producer's task never overtakes its earlier one by
// slipping into freed ring space ahead of the overflow FIFO.
func (q *taskQueue) push(fn func()) {
	if q.spilled.Load() == 0 && q.ring.Enqueue(fn) {
		return
	}
	q.mu.Lock()
	q.overflow.Add(fn)
	q.spilled.Add(1)
	q.mu.Unlock()
}

// drain runs every queued task, in submission order per producer. Tasks
// pushed while draining run in the same cycle if they land in the ring,
// otherwise next cycle. Consumer side is single-threaded by contract.
func (q *taskQueue) drain(run func(func())) int {
	n := 0
	for {
		fn, ok := q.ring.Dequeue()
		if !ok {
			break
		}
		run(fn)
		n++
	}
	var spilled []func()
	q.mu.Lock()
	for q.overflow.Length() > 0 {
		spilled = append(spilled, q.overflow.Remove().(func()))
		q.spilled.Add(-1)
	}
	q.mu.Unlock()
	for _, fn := range spilled {
		run(fn)
		n++
	}
	return n
}

// pending reports queued task count, approximately.
func (q *taskQueue) pending() int {
	q.mu.Lock()
	over := q.overflow.Length()
	q.mu.Unlock()
	return q.ring.Len() + over
}
