// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reactor is the readiness multiplexer contract: a thin wrapper over the host
// OS notification facility (epoll on Linux, poll(2) elsewhere).

package api

import "time"

// Reactor tracks interest sets for registered descriptors and reports
// readiness. All mutation goes through Register/Modify/Deregister; the
// underlying OS interest table is never touched directly by callers.
//
// Registration entries are (fd, interest, attachment) tuples. Interest
// mutations take effect no later than the next Wait call.
type Reactor interface {
	// Register adds fd with the given interest set. The attachment is
	// returned verbatim in every Event for this descriptor.
	Register(fd int, interest Interest, attachment any) error

	// Modify replaces the interest set of an already registered fd.
	Modify(fd int, interest Interest) error

	// Deregister removes fd from the interest table. Must be called
	// before the descriptor is closed.
	Deregister(fd int) error

	// Wait blocks until at least one registered descriptor is ready or
	// the timeout elapses, filling events and returning the count.
	// timeout < 0 blocks indefinitely; timeout == 0 polls and returns
	// immediately. A return of 0 events is not an error.
	Wait(events []Event, timeout time.Duration) (int, error)

	// Wakeup unblocks a concurrent Wait call from another goroutine.
	// The wakeup itself is never surfaced as an Event.
	Wakeup() error

	// Close releases the OS facility. Pending Wait calls return.
	Close() error
}
