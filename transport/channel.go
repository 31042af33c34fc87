// File: transport/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Channel wraps one OS stream descriptor with buffer-cursor read/write.
// Would-block is a distinct, non-error outcome: it is the normal "retry on
// the next readiness event" signal and is never logged or wrapped as a
// failure. Partial writes are equally normal; the buffer cursor tracks the
// unwritten remainder.

package transport

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-io/core/buffer"
)

var (
	// ErrWouldBlock signals no data/space right now on a non-blocking
	// channel. Not a failure; retry after the next readiness event.
	ErrWouldBlock = errors.New("transport: would block")

	// ErrConnReset is the abnormal terminal condition for a reset or
	// broken-pipe peer. Surfaced to the channel's handler.
	ErrConnReset = errors.New("transport: connection reset")

	// ErrChannelClosed is returned by I/O on a closed channel.
	ErrChannelClosed = errors.New("transport: channel closed")
)

// Channel is a bidirectional stream endpoint over an fd. Read and Write are
// issued sequentially by the owning loop goroutine; Close may be called from
// anywhere and is idempotent.
type Channel struct {
	fd       int
	blocking bool
	closed   atomic.Bool

	bytesIn  atomic.Int64
	bytesOut atomic.Int64
}

// NewChannel adopts an fd. The caller decides the blocking mode; sockets
// from Accept/Connect arrive non-blocking.
func NewChannel(fd int) *Channel {
	return &Channel{fd: fd}
}

// FD returns the underlying descriptor.
func (c *Channel) FD() int { return c.fd }

// SetBlocking switches the descriptor's blocking mode.
func (c *Channel) SetBlocking(blocking bool) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	if err := unix.SetNonblock(c.fd, !blocking); err != nil {
		return fmt.Errorf("transport: set blocking: %w", err)
	}
	c.blocking = blocking
	return nil
}

// Read fills the buffer's write window and advances its position by the
// bytes received. Returns:
//   - (n, nil) for n > 0 bytes transferred;
//   - (0, ErrWouldBlock) when non-blocking and nothing is available;
//   - (0, io.EOF) when the peer closed in order;
//   - (0, ErrConnReset) wrapping the errno on abnormal teardown.
func (c *Channel) Read(b *buffer.Buffer) (int, error) {
	if c.closed.Load() {
		return 0, ErrChannelClosed
	}
	window := b.Writable()
	if len(window) == 0 {
		return 0, nil
	}
	n, err := unix.Read(c.fd, window)
	if err != nil {
		return 0, mapIOError(err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	b.Advance(n)
	c.bytesIn.Add(int64(n))
	return n, nil
}

// Write sends the buffer's read window, advancing position by the bytes the
// OS accepted. A short count is a normal outcome; the remainder stays in the
// window for the next attempt.
func (c *Channel) Write(b *buffer.Buffer) (int, error) {
	if c.closed.Load() {
		return 0, ErrChannelClosed
	}
	window := b.Readable()
	if len(window) == 0 {
		return 0, nil
	}
	n, err := unix.Write(c.fd, window)
	if err != nil {
		return 0, mapIOError(err)
	}
	b.Advance(n)
	c.bytesOut.Add(int64(n))
	return n, nil
}

// Close releases the descriptor. Idempotent, safe after read/write errors.
// Callers must deregister the channel from its reactor first.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(c.fd)
}

// Closed reports whether Close has run.
func (c *Channel) Closed() bool { return c.closed.Load() }

// BytesIn returns total bytes read through this channel.
func (c *Channel) BytesIn() int64 { return c.bytesIn.Load() }

// BytesOut returns total bytes written through this channel.
func (c *Channel) BytesOut() int64 { return c.bytesOut.Load() }

// mapIOError folds errnos into the channel error taxonomy.
func mapIOError(err error) error {
	switch err {
	// EWOULDBLOCK aliases EAGAIN on Linux; one case covers both.
	case unix.EAGAIN, unix.EINTR:
		return ErrWouldBlock
	case unix.ECONNRESET, unix.EPIPE:
		return fmt.Errorf("%w: %s", ErrConnReset, err)
	default:
		return err
	}
}
