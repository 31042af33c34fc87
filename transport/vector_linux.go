//go:build linux

// File: transport/vector_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scatter/gather I/O: one readv/writev syscall fills or drains a buffer list
// in order, treating it as a single contiguous region. Used for
// fixed-header-plus-body framing without an intermediate concat copy.

package transport

import (
	"io"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-io/core/buffer"
)

// ScatterRead reads into the write windows of bufs in list order with a
// single readv call and distributes the cursor advance across the list.
// Returns the total byte count; 0 with io.EOF on orderly close.
func ScatterRead(c *Channel, bufs []*buffer.Buffer) (int, error) {
	if c.closed.Load() {
		return 0, ErrChannelClosed
	}
	iovs := make([][]byte, 0, len(bufs))
	for _, b := range bufs {
		if w := b.Writable(); len(w) > 0 {
			iovs = append(iovs, w)
		}
	}
	if len(iovs) == 0 {
		return 0, nil
	}
	n, err := unix.Readv(c.fd, iovs)
	if err != nil {
		return 0, mapIOError(err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	advance(bufs, n)
	c.bytesIn.Add(int64(n))
	return n, nil
}

// GatherWrite drains the read windows of bufs in list order with a single
// writev call. A short total is normal; unwritten bytes stay in place.
func GatherWrite(c *Channel, bufs []*buffer.Buffer) (int, error) {
	if c.closed.Load() {
		return 0, ErrChannelClosed
	}
	iovs := make([][]byte, 0, len(bufs))
	for _, b := range bufs {
		if r := b.Readable(); len(r) > 0 {
			iovs = append(iovs, r)
		}
	}
	if len(iovs) == 0 {
		return 0, nil
	}
	n, err := unix.Writev(c.fd, iovs)
	if err != nil {
		return 0, mapIOError(err)
	}
	advance(bufs, n)
	c.bytesOut.Add(int64(n))
	return n, nil
}
