// File: loop/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-channel state machine. Dispatch is keyed by the connection state, so
// each state owns its transition function instead of readiness handling
// being scattered through conditionals.
//
// Lifecycle: Accepting -> Connected -> {Reading, Writing} -> Closing ->
// Closed. A connection enters Writing only while unsent output remains and
// reverts to read-only interest the moment it drains.

package loop

import (
	"errors"
	"io"

	"github.com/momentics/hioload-io/api"
	"github.com/momentics/hioload-io/core/buffer"
	"github.com/momentics/hioload-io/transport"
)

// State is the connection lifecycle position.
type State int32

const (
	// StateAccepting marks a listener connection feeding new channels.
	StateAccepting State = iota

	// StateConnecting marks an in-progress non-blocking connect.
	StateConnecting

	// StateConnected is the steady state: read interest only.
	StateConnected

	// StateReading is transient while the loop drains readable data.
	StateReading

	// StateWriting is held while unsent output remains queued.
	StateWriting

	// StateClosing is transient during deregister-then-close teardown.
	StateClosing

	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepting:
		return "accepting"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReading:
		return "reading"
	case StateWriting:
		return "writing"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// Handler receives connection callbacks. Every method runs on the owning
// loop goroutine and must not block; hand slow work to an Executor and
// marshal results back with Loop.Submit.
type Handler interface {
	// OnOpen fires once the connection is registered and readable.
	OnOpen(c *Conn)

	// OnData fires with freshly received bytes, flipped for reading. The
	// buffer is pool-owned and valid only for the duration of the call;
	// copy what must outlive it.
	OnData(c *Conn, in *buffer.Buffer)

	// OnClose fires exactly once. err is nil for an orderly peer EOF or
	// local Close; otherwise it carries the failure.
	OnClose(c *Conn, err error)
}

// Conn binds a channel to its loop, handler, state and outbound queue.
// All fields are owned by the loop goroutine; no locking is ever needed.
type Conn struct {
	loop    *Loop
	ch      *transport.Channel
	handler Handler
	state   State

	// pending holds flipped (read-mode) pooled buffers queued for write,
	// drained in order by gather writes.
	pending []*buffer.Buffer

	// file is a queued zero-copy region, sent after pending drains.
	file *fileSend

	closeOnDrain bool

	// sink receives accepted channels; only set on listener conns.
	sink func(*transport.Channel)

	ctx any
}

// fileSend tracks an in-flight zero-copy file region.
type fileSend struct {
	fd        int
	offset    int64
	remaining int
}

// Channel returns the underlying transport channel.
func (c *Conn) Channel() *transport.Channel { return c.ch }

// FD returns the underlying descriptor.
func (c *Conn) FD() int { return c.ch.FD() }

// Loop returns the owning loop. A connection is pinned to one loop for its
// whole lifetime.
func (c *Conn) Loop() *Loop { return c.loop }

// State returns the lifecycle position.
func (c *Conn) State() State { return c.state }

// Context returns the user attachment.
func (c *Conn) Context() any { return c.ctx }

// SetContext stores a user attachment.
func (c *Conn) SetContext(v any) { c.ctx = v }

// PendingOutput reports queued unsent bytes.
func (c *Conn) PendingOutput() int {
	n := 0
	for _, b := range c.pending {
		n += b.Remaining()
	}
	if c.file != nil {
		n += c.file.remaining
	}
	return n
}

// Write queues p for sending and flushes as much as the socket accepts.
// Must be called from the owning loop goroutine (a handler callback or a
// submitted task). The remainder, if any, goes out on write readiness.
func (c *Conn) Write(p []byte) error {
	if c.state >= StateClosing {
		return transport.ErrChannelClosed
	}
	if len(p) == 0 {
		return nil
	}
	b, err := c.loop.bufPool.Acquire(len(p))
	if err != nil {
		return err
	}
	if err := b.Put(p); err != nil {
		_ = c.loop.bufPool.Release(b)
		return err
	}
	b.Flip()
	c.pending = append(c.pending, b)
	return c.flush()
}

// SendFile queues count bytes of fileFD, starting at offset, for zero-copy
// transfer. The region goes out after any queued buffers, resuming across
// partial transfers on write readiness. One region at a time. Must be
// called from the owning loop goroutine.
func (c *Conn) SendFile(fileFD int, offset int64, count int) error {
	if c.state >= StateClosing {
		return transport.ErrChannelClosed
	}
	if c.file != nil {
		return errors.New("loop: file transfer already queued")
	}
	if count <= 0 {
		return nil
	}
	c.file = &fileSend{fd: fileFD, offset: offset, remaining: count}
	return c.flush()
}

// Close tears the connection down in order: deregister, then close. The
// handler's OnClose fires with a nil error.
func (c *Conn) Close() {
	c.closeWith(nil)
}

// CloseWhenDrained closes the connection as soon as all queued output,
// buffers and file regions alike, has reached the socket. Closes
// immediately when nothing is queued.
func (c *Conn) CloseWhenDrained() {
	if c.state >= StateClosing {
		return
	}
	if len(c.pending) == 0 && c.file == nil {
		c.closeWith(nil)
		return
	}
	c.closeOnDrain = true
}

// handleEvent is the per-state dispatch entry, invoked by the loop cycle.
func (c *Conn) handleEvent(ready api.Ready) {
	switch c.state {
	case StateAccepting:
		c.handleAccept()
	case StateConnecting:
		c.handleConnectDone(ready)
	case StateConnected, StateWriting:
		c.handleIO(ready)
	default:
		// Closing/Closed: stale event from the same wait batch.
	}
}

// handleAccept drains the backlog. Each accepted channel goes to the sink,
// which pins it to a loop.
func (c *Conn) handleAccept() {
	for {
		ch, err := transport.Accept(c.ch.FD())
		if err != nil {
			if errors.Is(err, transport.ErrWouldBlock) {
				return
			}
			c.loop.log.WithError(err).Warn("accept failed")
			return
		}
		c.loop.accepted.Add(1)
		c.sink(ch)
	}
}

// handleConnectDone resolves a non-blocking connect on its first readiness.
func (c *Conn) handleConnectDone(ready api.Ready) {
	if err := transport.SocketError(c.ch.FD()); err != nil {
		c.closeWith(err)
		return
	}
	if ready.Has(api.ReadyError) {
		c.closeWith(transport.ErrConnReset)
		return
	}
	if err := c.loop.reactor.Modify(c.ch.FD(), api.Readable); err != nil {
		c.closeWith(err)
		return
	}
	c.state = StateConnected
	if c.handler != nil {
		c.handler.OnOpen(c)
	}
}

// handleIO services read and write readiness for an established conn.
func (c *Conn) handleIO(ready api.Ready) {
	if ready.Has(api.ReadyError) {
		err := transport.SocketError(c.ch.FD())
		if err == nil {
			err = transport.ErrConnReset
		}
		c.closeWith(err)
		return
	}
	if ready.Has(api.ReadyRead) {
		c.handleRead()
		if c.state >= StateClosing {
			return
		}
	}
	if ready.Has(api.ReadyWrite) && c.state == StateWriting {
		if err := c.flush(); err != nil && !errors.Is(err, transport.ErrWouldBlock) {
			c.closeWith(err)
		}
	}
}

// handleRead performs one read per readiness event. Level-triggered polling
// re-reports leftover data next cycle, which keeps one flooding peer from
// starving every other channel on the loop.
func (c *Conn) handleRead() {
	in, err := c.loop.bufPool.Acquire(c.loop.cfg.ReadBufferSize)
	if err != nil {
		// Pool exhausted: shed this event, readiness will re-report.
		c.loop.log.WithError(err).Debug("read buffer acquire failed")
		return
	}
	defer func() { _ = c.loop.bufPool.Release(in) }()

	prev := c.state
	c.state = StateReading
	n, err := c.ch.Read(in)
	if n > 0 {
		in.Flip()
		c.loop.bytesIn.Add(int64(n))
		if c.handler != nil {
			c.handler.OnData(c, in)
		}
	}
	if c.state == StateReading {
		c.state = prev
	}
	switch {
	case err == nil || errors.Is(err, transport.ErrWouldBlock):
	case errors.Is(err, io.EOF):
		c.closeWith(nil)
	default:
		c.closeWith(err)
	}
}

// flush gather-writes the pending queue and keeps write interest in sync
// with whether output remains.
func (c *Conn) flush() error {
	if len(c.pending) == 0 && c.file == nil {
		return c.wantWrite(false)
	}
	if len(c.pending) > 0 {
		n, err := transport.GatherWrite(c.ch, c.pending)
		if n > 0 {
			c.loop.bytesOut.Add(int64(n))
		}
		// Release fully drained buffers from the head.
		drained := 0
		for _, b := range c.pending {
			if b.HasRemaining() {
				break
			}
			_ = c.loop.bufPool.Release(b)
			drained++
		}
		c.pending = c.pending[drained:]

		if err != nil && !errors.Is(err, transport.ErrWouldBlock) {
			return err
		}
	}
	if len(c.pending) == 0 && c.file != nil {
		n, ferr := transport.TransferFile(c.file.fd, c.file.offset, c.file.remaining, c.ch)
		if n > 0 {
			c.loop.bytesOut.Add(int64(n))
			c.file.offset += int64(n)
			c.file.remaining -= n
			if c.file.remaining == 0 {
				c.file = nil
			}
		}
		if ferr != nil && !errors.Is(ferr, transport.ErrWouldBlock) {
			return ferr
		}
	}
	if len(c.pending) > 0 || c.file != nil {
		return c.wantWrite(true)
	}
	if c.closeOnDrain {
		c.closeWith(nil)
		return nil
	}
	return c.wantWrite(false)
}

// wantWrite toggles write interest. Write readiness on an idle socket fires
// constantly, so interest is held only while output is actually queued.
func (c *Conn) wantWrite(on bool) error {
	if on {
		if c.state == StateWriting {
			return nil
		}
		if err := c.loop.reactor.Modify(c.ch.FD(), api.Readable|api.Writable); err != nil {
			return err
		}
		c.state = StateWriting
		return nil
	}
	if c.state != StateWriting {
		return nil
	}
	if err := c.loop.reactor.Modify(c.ch.FD(), api.Readable); err != nil {
		return err
	}
	c.state = StateConnected
	return nil
}

// closeWith runs the Closing -> Closed transition exactly once:
// deregister first so no dangling multiplexer entry survives, then close
// the channel, then notify the handler. One connection's failure never
// touches the loop or its siblings.
func (c *Conn) closeWith(err error) {
	if c.state >= StateClosing {
		return
	}
	c.state = StateClosing
	if derr := c.loop.reactor.Deregister(c.ch.FD()); derr != nil && !errors.Is(derr, api.ErrNotRegistered) {
		c.loop.log.WithError(derr).Warn("deregister failed")
	}
	for _, b := range c.pending {
		_ = c.loop.bufPool.Release(b)
	}
	c.pending = nil
	c.file = nil
	_ = c.ch.Close()
	delete(c.loop.conns, c.ch.FD())
	c.loop.registered.Add(-1)
	c.state = StateClosed
	if c.handler != nil {
		c.handler.OnClose(c, err)
	}
}
