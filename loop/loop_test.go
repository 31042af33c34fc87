//go:build !windows

// File: loop/loop_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Integration tests over real sockets. Plain testing, no mocks: the loop
// is exercised end to end through socketpairs.

package loop

import (
	"os"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-io/control"
	"github.com/momentics/hioload-io/core/buffer"
	"github.com/momentics/hioload-io/pool"
	"github.com/momentics/hioload-io/transport"
)

// echoHandler writes every received payload straight back.
type echoHandler struct {
	mu     sync.Mutex
	closed bool
	err    error
}

func (h *echoHandler) OnOpen(c *Conn) {}

func (h *echoHandler) OnData(c *Conn, in *buffer.Buffer) {
	if err := c.Write(in.Readable()); err != nil {
		c.Close()
	}
}

func (h *echoHandler) OnClose(c *Conn, err error) {
	h.mu.Lock()
	h.closed = true
	h.err = err
	h.mu.Unlock()
}

func startLoop(t *testing.T) *Loop {
	t.Helper()
	cfg := control.DefaultConfig()
	cfg.Loops = 1
	cfg.Tick = 20 * time.Millisecond
	bp := pool.New(pool.Options{})
	l, err := New(0, cfg, bp)
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	go l.Run()
	t.Cleanup(func() {
		if err := l.Close(); err != nil {
			t.Errorf("close loop: %v", err)
		}
		bp.Drain()
	})
	return l
}

func loopPair(t *testing.T) (loopSide *transport.Channel, peer int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	// Bound the blocking peer reads so a broken loop fails the test
	// instead of hanging it.
	tv := unix.Timeval{Sec: 5}
	if err := unix.SetsockoptTimeval(fds[1], unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		t.Fatalf("set rcvtimeo: %v", err)
	}
	t.Cleanup(func() { unix.Close(fds[1]) })
	return transport.NewChannel(fds[0]), fds[1]
}

func TestLoopEchoesThroughHandler(t *testing.T) {
	l := startLoop(t)
	ch, peer := loopPair(t)

	h := &echoHandler{}
	if err := l.Attach(ch, h); err != nil {
		t.Fatalf("attach: %v", err)
	}

	payload := []byte("ping over the loop")
	if _, err := unix.Write(peer, payload); err != nil {
		t.Fatalf("peer write: %v", err)
	}

	got := make([]byte, 0, len(payload))
	buf := make([]byte, 64)
	for len(got) < len(payload) {
		n, err := unix.Read(peer, buf)
		if err != nil {
			t.Fatalf("peer read: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if string(got) != string(payload) {
		t.Fatalf("echo mismatch: got %q want %q", got, payload)
	}
}

func TestLoopSubmitRunsOnLoop(t *testing.T) {
	l := startLoop(t)

	done := make(chan struct{})
	if err := l.Submit(func() { close(done) }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submitted task never ran")
	}
}

func TestLoopPeerCloseFiresOnClose(t *testing.T) {
	l := startLoop(t)
	ch, peer := loopPair(t)

	h := &echoHandler{}
	if err := l.Attach(ch, h); err != nil {
		t.Fatalf("attach: %v", err)
	}
	unix.Close(peer)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		closed, err := h.closed, h.err
		h.mu.Unlock()
		if closed {
			if err != nil {
				t.Fatalf("orderly close surfaced error: %v", err)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("OnClose never fired after peer close")
}

func TestLoopSendFileDeliversAndCloses(t *testing.T) {
	l := startLoop(t)
	ch, peer := loopPair(t)

	const size = 1 << 20
	f, err := os.CreateTemp(t.TempDir(), "payload")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	defer f.Close()
	content := make([]byte, size)
	for i := range content {
		content[i] = byte(i * 7)
	}
	if _, err := f.Write(content); err != nil {
		t.Fatalf("fill file: %v", err)
	}

	h := &echoHandler{}
	if err := l.Attach(ch, h); err != nil {
		t.Fatalf("attach: %v", err)
	}
	var sendErr error
	done := make(chan struct{})
	err = l.Submit(func() {
		defer close(done)
		c := l.conns[ch.FD()]
		if sendErr = c.SendFile(int(f.Fd()), 0, size); sendErr == nil {
			c.CloseWhenDrained()
		}
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-done
	if sendErr != nil {
		t.Fatalf("sendfile: %v", sendErr)
	}

	got := make([]byte, 0, size)
	buf := make([]byte, 64<<10)
	for {
		n, err := unix.Read(peer, buf)
		if n > 0 {
			got = append(got, buf[:n]...)
		}
		if n == 0 && err == nil {
			break // peer EOF: connection closed after drain
		}
		if err != nil {
			t.Fatalf("peer read after %d bytes: %v", len(got), err)
		}
	}
	if len(got) != size {
		t.Fatalf("received %d bytes, want %d", len(got), size)
	}
	for i := range content {
		if got[i] != content[i] {
			t.Fatalf("content mismatch at byte %d", i)
		}
	}
}

func TestLoopWriteBackpressureDrains(t *testing.T) {
	l := startLoop(t)
	ch, peer := loopPair(t)

	h := &echoHandler{}
	if err := l.Attach(ch, h); err != nil {
		t.Fatalf("attach: %v", err)
	}

	// A payload far larger than the socket buffers forces partial writes;
	// the unsent tail must go out on write readiness while the peer drains.
	payload := make([]byte, 1<<20)
	for i := range payload {
		payload[i] = byte(i)
	}
	var attachErr error
	done := make(chan struct{})
	err := l.Submit(func() {
		defer close(done)
		c := l.conns[ch.FD()]
		if c == nil {
			attachErr = transport.ErrChannelClosed
			return
		}
		attachErr = c.Write(payload)
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-done
	if attachErr != nil {
		t.Fatalf("write: %v", attachErr)
	}

	got := make([]byte, 0, len(payload))
	buf := make([]byte, 64<<10)
	for len(got) < len(payload) {
		n, err := unix.Read(peer, buf)
		if err != nil {
			t.Fatalf("peer read after %d bytes: %v", len(got), err)
		}
		got = append(got, buf[:n]...)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("payload corrupted at byte %d", i)
		}
	}
}
