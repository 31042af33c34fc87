// File: pool/bufferpool.go
// Package pool recycles fixed-size buffers across power-of-two size classes.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Native buffer allocation is an order of magnitude more expensive than heap
// allocation, so the pool's job is to keep released buffers warm. Retention
// is bounded per class: a full class ring frees the surplus buffer back to
// the OS instead of retaining unbounded native memory.
//
// Acquire never blocks. When the configured outstanding cap is reached it
// fails fast with ErrExhausted, so a loop handler can shed load instead of
// stalling every channel on its loop.

package pool

import (
	"errors"
	"fmt"
	"math/bits"
	"sync/atomic"

	"github.com/momentics/hioload-io/core/buffer"
)

var (
	// ErrExhausted is returned by Acquire when the pool's outstanding
	// buffer cap is reached.
	ErrExhausted = errors.New("pool: exhausted")

	// ErrDoubleRelease is returned when Release is called twice for the
	// same acquired buffer. This is a programming error and is reported,
	// never silently tolerated.
	ErrDoubleRelease = errors.New("pool: double release")
)

// Options configures a BufferPool.
type Options struct {
	// Kind selects the storage of pooled buffers.
	Kind buffer.Kind

	// MinClass and MaxClass bound the power-of-two size classes,
	// inclusive. Defaults: 512 .. 64KiB.
	MinClass int
	MaxClass int

	// RetainPerClass caps how many released buffers each class keeps
	// warm. Surplus releases free the buffer. Default 256.
	RetainPerClass int

	// MaxOutstanding caps buffers checked out at once, 0 = unlimited.
	MaxOutstanding int
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.MinClass <= 0 {
		out.MinClass = 512
	}
	if out.MaxClass < out.MinClass {
		out.MaxClass = 64 * 1024
	}
	if out.RetainPerClass <= 0 {
		out.RetainPerClass = 256
	}
	return out
}

// Stats is a point-in-time snapshot of pool accounting.
type Stats struct {
	Allocs      int64 // fresh allocations
	Reuses      int64 // acquisitions served from a class ring
	Frees       int64 // buffers freed (bound overflow or oversized)
	Outstanding int64 // currently checked out
	Exhausted   int64 // Acquire failures due to MaxOutstanding
}

// BufferPool recycles buffers across power-of-two size classes. Safe for use
// from multiple loop goroutines: each class is a lock-free ring, so acquire
// and release never contend on a shared lock.
type BufferPool struct {
	opts    Options
	classes []*sizeClass

	allocs      atomic.Int64
	reuses      atomic.Int64
	frees       atomic.Int64
	outstanding atomic.Int64
	exhausted   atomic.Int64
}

type sizeClass struct {
	size int
	ring *RingBuffer[*buffer.Buffer]
}

// New creates a BufferPool with the given options.
func New(opts Options) *BufferPool {
	o := opts.withDefaults()
	p := &BufferPool{opts: o}
	for size := ceilPow2(o.MinClass); size <= ceilPow2(o.MaxClass); size <<= 1 {
		p.classes = append(p.classes, &sizeClass{
			size: size,
			ring: NewRingBuffer[*buffer.Buffer](uint64(o.RetainPerClass)),
		})
	}
	return p
}

// Acquire returns a cleared buffer with capacity >= minSize, reusing a
// previously released buffer of the matching class when one is warm.
// Requests above the largest class are served by a one-off allocation that
// is freed (not pooled) on release.
func (p *BufferPool) Acquire(minSize int) (*buffer.Buffer, error) {
	if minSize <= 0 {
		return nil, fmt.Errorf("pool: invalid size %d", minSize)
	}
	if max := int64(p.opts.MaxOutstanding); max > 0 {
		if p.outstanding.Add(1) > max {
			p.outstanding.Add(-1)
			p.exhausted.Add(1)
			return nil, ErrExhausted
		}
	} else {
		p.outstanding.Add(1)
	}

	b, err := p.acquire(minSize)
	if err != nil {
		p.outstanding.Add(-1)
		return nil, err
	}
	b.Clear()
	if !b.Lease() {
		// A leased buffer inside the pool means corrupted accounting.
		panic("pool: acquired buffer already leased")
	}
	return b, nil
}

func (p *BufferPool) acquire(minSize int) (*buffer.Buffer, error) {
	c := p.classFor(minSize)
	if c == nil {
		// Oversized: allocate directly, Release will free it.
		p.allocs.Add(1)
		return buffer.Alloc(minSize, p.opts.Kind)
	}
	if b, ok := c.ring.Dequeue(); ok {
		p.reuses.Add(1)
		return b, nil
	}
	p.allocs.Add(1)
	return buffer.Alloc(c.size, p.opts.Kind)
}

// Release returns an acquired buffer to the pool. Must be called exactly
// once per Acquire: a second call reports ErrDoubleRelease. Buffers beyond
// the per-class retention bound, and oversized one-offs, are freed.
func (p *BufferPool) Release(b *buffer.Buffer) error {
	if b == nil {
		return fmt.Errorf("pool: release nil buffer")
	}
	if !b.Unlease() {
		return ErrDoubleRelease
	}
	p.outstanding.Add(-1)

	c := p.classFor(b.Capacity())
	if c != nil && c.size == b.Capacity() {
		b.Clear()
		if c.ring.Enqueue(b) {
			return nil
		}
	}
	p.frees.Add(1)
	b.Free()
	return nil
}

// Stats returns a snapshot of pool accounting.
func (p *BufferPool) Stats() Stats {
	return Stats{
		Allocs:      p.allocs.Load(),
		Reuses:      p.reuses.Load(),
		Frees:       p.frees.Load(),
		Outstanding: p.outstanding.Load(),
		Exhausted:   p.exhausted.Load(),
	}
}

// Drain frees every retained buffer. Outstanding buffers are untouched;
// they are freed by their eventual Release.
func (p *BufferPool) Drain() {
	for _, c := range p.classes {
		for {
			b, ok := c.ring.Dequeue()
			if !ok {
				break
			}
			p.frees.Add(1)
			b.Free()
		}
	}
}

// classFor returns the smallest class with size >= n, or nil when n exceeds
// the largest class.
func (p *BufferPool) classFor(n int) *sizeClass {
	for _, c := range p.classes {
		if c.size >= n {
			return c
		}
	}
	return nil
}

func ceilPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
