// File: executor/executor.go
// Package executor implements the worker pool for blocking work.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Loop handlers must never block their loop thread. Anything without a small
// bounded completion time goes here, and the result is marshaled back onto
// the owning loop with Loop.Submit.
//
// Dispatch uses per-worker lock-free queues with a global channel fallback.

package executor

import (
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-io/api"
	"github.com/momentics/hioload-io/pool"
)

// ErrExecutorClosed indicates the executor has been shut down.
var ErrExecutorClosed = errors.New("executor is closed")

// ErrExecutorBusy indicates every queue is full. The executor is still
// running; callers may retry or shed the work.
var ErrExecutorBusy = errors.New("executor queues are full")

const localQueueSize = 1024

// Executor manages a pool of worker goroutines.
type Executor struct {
	globalQueue chan func()
	localQueues []*pool.RingBuffer[func()]
	closeCh     chan struct{}
	closed      atomic.Bool
	numWorkers  int

	totalTasks     atomic.Int64
	completedTasks atomic.Int64
}

var _ api.Executor = (*Executor)(nil)

// New creates an Executor. numWorkers <= 0 defaults to runtime.NumCPU().
func New(numWorkers int) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &Executor{
		globalQueue: make(chan func(), numWorkers*4),
		localQueues: make([]*pool.RingBuffer[func()], numWorkers),
		closeCh:     make(chan struct{}),
		numWorkers:  numWorkers,
	}
	for i := range e.localQueues {
		e.localQueues[i] = pool.NewRingBuffer[func()](localQueueSize)
	}
	for i := 0; i < numWorkers; i++ {
		go e.runWorker(i)
	}
	return e
}

// Submit enqueues a task, preferring a worker-local queue and falling back
// to the global channel. Fails fast when both are full or after Close.
func (e *Executor) Submit(task func()) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	n := e.totalTasks.Add(1)
	idx := int(n % int64(e.numWorkers))
	if e.localQueues[idx].Enqueue(task) {
		return nil
	}
	select {
	case e.globalQueue <- task:
		return nil
	case <-e.closeCh:
		return ErrExecutorClosed
	default:
		return ErrExecutorBusy
	}
}

// NumWorkers returns the worker count.
func (e *Executor) NumWorkers() int { return e.numWorkers }

// Close stops the workers. Queued tasks may be dropped.
func (e *Executor) Close() {
	if e.closed.CompareAndSwap(false, true) {
		close(e.closeCh)
	}
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	total := e.totalTasks.Load()
	done := e.completedTasks.Load()
	return map[string]int64{
		"total_tasks":     total,
		"completed_tasks": done,
		"pending_tasks":   total - done,
		"num_workers":     int64(e.numWorkers),
	}
}

func (e *Executor) runWorker(id int) {
	local := e.localQueues[id]
	for {
		select {
		case <-e.closeCh:
			return
		default:
		}
		if task, ok := local.Dequeue(); ok {
			e.executeTask(task)
			continue
		}
		select {
		case task := <-e.globalQueue:
			e.executeTask(task)
		case <-e.closeCh:
			return
		default:
			// backoff to reduce CPU spinning
			time.Sleep(time.Millisecond)
		}
	}
}

// executeTask runs one task, recovering from panics to keep the worker alive.
func (e *Executor) executeTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			// swallow panic to keep worker alive
		}
		e.completedTasks.Add(1)
	}()
	task()
}
