// File: transport/vector.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"github.com/momentics/hioload-io/core/buffer"
)

// advance distributes a transferred byte count across the buffer list in
// order. Both read and write windows are [position, limit), so one routine
// serves scatter and gather alike.
func advance(bufs []*buffer.Buffer, n int) {
	for _, b := range bufs {
		if n == 0 {
			return
		}
		room := b.Remaining()
		if room == 0 {
			continue
		}
		step := room
		if n < step {
			step = n
		}
		b.Advance(step)
		n -= step
	}
}
