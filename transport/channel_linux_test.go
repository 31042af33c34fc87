//go:build linux

// File: transport/channel_linux_test.go
// License: Apache-2.0

package transport

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"os"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-io/core/buffer"
)

func channelPair(t *testing.T) (*Channel, *Channel) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	a, b := NewChannel(fds[0]), NewChannel(fds[1])
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestReadWouldBlockIsNotAnError(t *testing.T) {
	a, _ := channelPair(t)
	buf, err := buffer.Alloc(64, buffer.Heap)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Free()

	n, err := a.Read(buf)
	if n != 0 || !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("read on idle socket: n=%d err=%v, want 0/ErrWouldBlock", n, err)
	}
}

func TestReadEOFOnPeerClose(t *testing.T) {
	a, b := channelPair(t)
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	buf, err := buffer.Alloc(64, buffer.Heap)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Free()

	_, err = a.Read(buf)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("read after peer close: %v, want io.EOF", err)
	}
}

// A large buffer against a small send buffer: the write must return the
// short count, advance the cursor by exactly that much, and a follow-up
// write must continue from the remainder with no loss or duplication.
func TestPartialWriteTracksRemainder(t *testing.T) {
	a, b := channelPair(t)
	_ = unix.SetsockoptInt(a.FD(), unix.SOL_SOCKET, unix.SO_SNDBUF, 4096)

	payload := make([]byte, 256*1024)
	if _, err := rand.Read(payload); err != nil {
		t.Fatal(err)
	}
	out := buffer.Wrap(append([]byte(nil), payload...))
	// Wrap leaves the buffer in write mode at capacity; flip it to read.
	out.Advance(out.Remaining())
	out.Flip()

	var received bytes.Buffer
	in, err := buffer.Alloc(64*1024, buffer.Heap)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Free()

	for out.HasRemaining() {
		before := out.Position()
		n, err := a.Write(out)
		if err != nil && !errors.Is(err, ErrWouldBlock) {
			t.Fatalf("write: %v", err)
		}
		if out.Position() != before+n {
			t.Fatalf("cursor advanced %d for write of %d", out.Position()-before, n)
		}
		// Drain the peer so the send buffer frees up.
		for {
			in.Clear()
			rn, rerr := b.Read(in)
			if rn > 0 {
				in.Flip()
				got, _ := in.Get(in.Remaining())
				received.Write(got)
			}
			if rerr != nil {
				break
			}
		}
	}
	if !bytes.Equal(received.Bytes(), payload) {
		t.Fatalf("received %d bytes, mismatch with %d sent", received.Len(), len(payload))
	}
}

func TestErrnoFoldsIntoTaxonomy(t *testing.T) {
	for _, errno := range []error{unix.EAGAIN, unix.EWOULDBLOCK, unix.EINTR} {
		if got := mapIOError(errno); got != ErrWouldBlock {
			t.Fatalf("mapIOError(%v) = %v, want ErrWouldBlock", errno, got)
		}
	}
	for _, errno := range []error{unix.ECONNRESET, unix.EPIPE} {
		if got := mapIOError(errno); !errors.Is(got, ErrConnReset) {
			t.Fatalf("mapIOError(%v) = %v, want ErrConnReset wrap", errno, got)
		}
	}
	if got := mapIOError(unix.EBADF); got != unix.EBADF {
		t.Fatalf("mapIOError(EBADF) = %v, want passthrough", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	a, _ := channelPair(t)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	buf, _ := buffer.Alloc(8, buffer.Heap)
	defer buf.Free()
	if _, err := a.Read(buf); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("read after close: %v", err)
	}
}

func TestScatterReadGatherWrite(t *testing.T) {
	a, b := channelPair(t)

	header, _ := buffer.Alloc(4, buffer.Heap)
	body, _ := buffer.Alloc(16, buffer.Heap)
	defer header.Free()
	defer body.Free()
	if err := header.Put([]byte{0, 0, 0, 11}); err != nil {
		t.Fatal(err)
	}
	if err := body.Put([]byte("hello world")); err != nil {
		t.Fatal(err)
	}
	header.Flip()
	body.Flip()

	n, err := GatherWrite(a, []*buffer.Buffer{header, body})
	if err != nil {
		t.Fatal(err)
	}
	if n != 15 {
		t.Fatalf("gather wrote %d, want 15", n)
	}
	if header.HasRemaining() || body.HasRemaining() {
		t.Fatal("gather did not drain both buffers")
	}

	rh, _ := buffer.Alloc(4, buffer.Heap)
	rb, _ := buffer.Alloc(11, buffer.Heap)
	defer rh.Free()
	defer rb.Free()

	total := 0
	for total < 15 {
		n, err := ScatterRead(b, []*buffer.Buffer{rh, rb})
		if err != nil && !errors.Is(err, ErrWouldBlock) {
			t.Fatal(err)
		}
		total += n
	}
	rh.Flip()
	rb.Flip()
	hb, _ := rh.Get(4)
	if !bytes.Equal(hb, []byte{0, 0, 0, 11}) {
		t.Fatalf("header = %v", hb)
	}
	bb, _ := rb.Get(11)
	if string(bb) != "hello world" {
		t.Fatalf("body = %q", bb)
	}
}

// Transfer a file larger than the socket buffer: each call moves what fits,
// and resuming at offset+transferred produces the exact file with no gap or
// duplication.
func TestTransferFileResumesAtOffset(t *testing.T) {
	a, b := channelPair(t)
	_ = unix.SetsockoptInt(a.FD(), unix.SOL_SOCKET, unix.SO_SNDBUF, 4096)

	content := make([]byte, 1<<20)
	if _, err := rand.Read(content); err != nil {
		t.Fatal(err)
	}
	f, err := os.CreateTemp(t.TempDir(), "payload")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.Write(content); err != nil {
		t.Fatal(err)
	}

	var received bytes.Buffer
	in, _ := buffer.Alloc(64*1024, buffer.Heap)
	defer in.Free()

	offset := int64(0)
	for offset < int64(len(content)) {
		n, err := TransferFile(int(f.Fd()), offset, len(content)-int(offset), a)
		if err != nil && !errors.Is(err, ErrWouldBlock) {
			t.Fatalf("transfer at %d: %v", offset, err)
		}
		offset += int64(n)

		for {
			in.Clear()
			rn, rerr := b.Read(in)
			if rn > 0 {
				in.Flip()
				got, _ := in.Get(in.Remaining())
				received.Write(got)
			}
			if rerr != nil {
				break
			}
		}
	}
	if !bytes.Equal(received.Bytes(), content) {
		t.Fatalf("received %d bytes, mismatch with %d in file", received.Len(), len(content))
	}
}
