// File: reactor/reactor.go
// Package reactor implements the readiness multiplexer over the host OS
// notification facility.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// On Linux the scalable epoll facility is used: the kernel owns the interest
// table and a wait call costs O(ready), independent of the registered count.
// Platforms without a scalable facility fall back to a poll(2) linear scan.
//
// The OS interest table is shared mutable state; it is owned entirely by one
// Reactor instance and mutated only through Register/Modify/Deregister.

package reactor

import (
	"github.com/momentics/hioload-io/api"
)

// New constructs the platform reactor.
func New() (api.Reactor, error) {
	return newPlatformReactor()
}

// entry is one registration: the interest set plus the caller's attachment,
// echoed back in every event for the descriptor.
type entry struct {
	interest   api.Interest
	attachment any
}
