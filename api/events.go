// File: api/events.go
// Package api defines the contracts shared by all engine components.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Readiness event model: interest sets requested by callers and ready sets
// reported by the reactor are the same bitmask type.

package api

// Interest is the set of operations a descriptor wants notifications for.
type Interest uint32

const (
	// Readable requests notification when a read would not block.
	Readable Interest = 1 << iota

	// Writable requests notification when a write would not block.
	Writable

	// Acceptable requests notification when a listener has pending
	// connections. At the OS level this is read readiness on the
	// listening descriptor; the separate bit keeps dispatch explicit.
	Acceptable
)

// Ready is the subset of interests (plus error/hang-up conditions) that the
// reactor observed for one descriptor in one wait cycle.
type Ready uint32

const (
	// ReadyRead indicates data (or EOF) is available.
	ReadyRead Ready = 1 << iota

	// ReadyWrite indicates the send buffer has room.
	ReadyWrite

	// ReadyError indicates an error or hang-up condition on the
	// descriptor. The owner must read the pending error and close.
	ReadyError
)

// Has reports whether r contains all bits of want.
func (r Ready) Has(want Ready) bool { return r&want == want }

// Has reports whether i contains all bits of want.
func (i Interest) Has(want Interest) bool { return i&want == want }

// Event is one (descriptor, ready set) pair reported by a reactor wait call.
// Attachment is the opaque value supplied at registration time, returned
// untouched so the dispatcher never needs a descriptor lookup table of its own.
type Event struct {
	FD         int
	Ready      Ready
	Attachment any
}
