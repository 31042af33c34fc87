// File: core/buffer/buffer.go
// Package buffer implements the fixed-capacity cursor buffer all engine data
// moves through.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Buffer is a single storage region with a position/limit cursor pair
// rather than separate read and write buffers: the transfer syscalls always
// operate on the contiguous [position, limit) window, so one cursor pair
// serves both directions without a second allocation.
//
// Write mode appends at position up to limit; Flip transitions to read mode;
// Compact preserves unread bytes and re-opens the tail for writing.

package buffer

import (
	"errors"
	"fmt"
)

// Kind selects the backing storage of a Buffer.
type Kind uint8

const (
	// Heap buffers live in ordinary garbage-collected memory, served
	// through a size-class cache.
	Heap Kind = iota

	// Native buffers live outside the managed heap (anonymous mmap).
	// They are cheap to hand to the kernel but expensive to allocate,
	// and must be released explicitly with Free.
	Native
)

func (k Kind) String() string {
	switch k {
	case Heap:
		return "heap"
	case Native:
		return "native"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

var (
	// ErrOverflow is returned by Put when the write window is too small.
	// This is a programming error at the call site, never a truncation.
	ErrOverflow = errors.New("buffer: capacity exceeded")

	// ErrUnderflow is returned by Get when fewer bytes remain than asked.
	ErrUnderflow = errors.New("buffer: underflow")
)

// Buffer is a fixed-capacity byte container with the invariant
// 0 <= position <= limit <= capacity.
//
// A Buffer is exclusively owned by whichever component currently holds it
// (loop handler, pool, in-flight transfer); it is not safe for concurrent
// mutation and never needs to be.
type Buffer struct {
	store    []byte
	position int
	limit    int
	kind     Kind
	freed    bool

	// leased is set while the buffer is checked out of a pool; the pool
	// uses it to detect double release.
	leased bool
}

// Alloc creates a Buffer of the given capacity and storage kind in write
// mode (position 0, limit capacity). Native allocation goes to the OS and is
// an order of magnitude more expensive than heap allocation; callers on hot
// paths should go through the pool instead.
func Alloc(capacity int, kind Kind) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("buffer: invalid capacity %d", capacity)
	}
	store, err := allocStore(capacity, kind)
	if err != nil {
		return nil, err
	}
	return &Buffer{store: store, limit: capacity, kind: kind}, nil
}

// Wrap adopts an existing byte slice as a heap Buffer in write mode.
// The slice must not be used by the caller afterwards.
func Wrap(b []byte) *Buffer {
	return &Buffer{store: b, limit: len(b), kind: Heap}
}

// Capacity returns the fixed storage size.
func (b *Buffer) Capacity() int { return len(b.store) }

// Position returns the next index to read or write.
func (b *Buffer) Position() int { return b.position }

// Limit returns the end of the valid region.
func (b *Buffer) Limit() int { return b.limit }

// Kind returns the backing storage kind.
func (b *Buffer) Kind() Kind { return b.kind }

// Remaining returns limit - position: bytes left to read in read mode, or
// room left to write in write mode.
func (b *Buffer) Remaining() int {
	b.check()
	return b.limit - b.position
}

// HasRemaining reports whether Remaining() > 0.
func (b *Buffer) HasRemaining() bool { return b.Remaining() > 0 }

// Put appends p at position. Fails with ErrOverflow when the window is
// smaller than len(p); nothing is written in that case.
func (b *Buffer) Put(p []byte) error {
	b.check()
	if len(p) > b.limit-b.position {
		return fmt.Errorf("%w: need %d, have %d", ErrOverflow, len(p), b.limit-b.position)
	}
	copy(b.store[b.position:], p)
	b.position += len(p)
	return nil
}

// Get consumes and returns the next n bytes. The returned slice aliases the
// buffer storage and is valid until the next mutating call. Fails with
// ErrUnderflow when fewer than n bytes remain.
func (b *Buffer) Get(n int) ([]byte, error) {
	b.check()
	if n < 0 || n > b.limit-b.position {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrUnderflow, n, b.limit-b.position)
	}
	p := b.store[b.position : b.position+n]
	b.position += n
	return p, nil
}

// Flip transitions write mode to read mode: the bytes written so far become
// the readable window.
func (b *Buffer) Flip() {
	b.check()
	b.limit = b.position
	b.position = 0
}

// Compact moves the unread bytes [position, limit) to index 0, sets position
// to the moved length and limit to capacity, so writing can continue without
// discarding unread data.
func (b *Buffer) Compact() {
	b.check()
	n := copy(b.store, b.store[b.position:b.limit])
	b.position = n
	b.limit = len(b.store)
}

// Clear discards content and restores write mode over the full capacity.
// The storage is not zeroed.
func (b *Buffer) Clear() {
	b.check()
	b.position = 0
	b.limit = len(b.store)
}

// Writable returns the current write window [position, limit). Transfer code
// fills it directly and then calls Advance with the byte count.
func (b *Buffer) Writable() []byte {
	b.check()
	return b.store[b.position:b.limit]
}

// Readable returns the current read window [position, limit) without
// consuming it.
func (b *Buffer) Readable() []byte {
	b.check()
	return b.store[b.position:b.limit]
}

// Advance moves position forward by n after an external read or write into
// the window. Panics if n would break the cursor invariant.
func (b *Buffer) Advance(n int) {
	b.check()
	if n < 0 || b.position+n > b.limit {
		panic(fmt.Sprintf("buffer: advance %d outside window [%d,%d)", n, b.position, b.limit))
	}
	b.position += n
}

// Free releases the backing storage. Idempotent. Required for Native
// buffers, whose memory is invisible to the garbage collector; harmless for
// Heap buffers. Any use after Free panics.
func (b *Buffer) Free() {
	if b.freed {
		return
	}
	b.freed = true
	freeStore(b.store, b.kind)
	b.store = nil
	b.position, b.limit = 0, 0
}

// Lease marks the buffer as checked out of a pool. Returns false when it is
// already leased. Pool internal.
func (b *Buffer) Lease() bool {
	if b.leased {
		return false
	}
	b.leased = true
	return true
}

// Unlease clears the lease flag. Returns false when the buffer was not
// leased, which the pool reports as a double release. Pool internal.
func (b *Buffer) Unlease() bool {
	if !b.leased {
		return false
	}
	b.leased = false
	return true
}

// check enforces the cursor invariant and the no-use-after-free rule at
// every operation boundary. Buffer mode confusion is a whole bug class in
// this domain; the guard catches it where it happens.
func (b *Buffer) check() {
	if b.freed {
		panic("buffer: use after free")
	}
	if b.position < 0 || b.position > b.limit || b.limit > len(b.store) {
		panic(fmt.Sprintf("buffer: invariant violated: position=%d limit=%d capacity=%d",
			b.position, b.limit, len(b.store)))
	}
}
