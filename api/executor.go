// Package api
// Author: momentics
//
// Executor contract for offloading blocking work away from loop threads.

package api

// Executor runs tasks on worker goroutines. Loop handlers hand any operation
// not guaranteed to finish in small bounded time to an Executor, and marshal
// the result back to the owning loop through its task queue.
type Executor interface {
	// Submit schedules task for execution.
	Submit(task func()) error

	// NumWorkers returns current number of active worker routines.
	NumWorkers() int

	// Close stops the workers. Submit fails after Close.
	Close()
}
