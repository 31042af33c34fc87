// File: pool/bufferpool_test.go
// License: Apache-2.0

package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-io/core/buffer"
)

func TestAcquireReturnsClearedBufferOfRequestedClass(t *testing.T) {
	p := New(Options{Kind: buffer.Heap})

	b, err := p.Acquire(1000)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, b.Capacity(), 1000)
	assert.Equal(t, 0, b.Position())
	assert.Equal(t, b.Capacity(), b.Limit())
	require.NoError(t, p.Release(b))
}

func TestReleaseThenAcquireReuses(t *testing.T) {
	p := New(Options{Kind: buffer.Heap})

	b1, err := p.Acquire(4096)
	require.NoError(t, err)
	require.NoError(t, b1.Put([]byte("dirty")))
	require.NoError(t, p.Release(b1))

	b2, err := p.Acquire(4096)
	require.NoError(t, err)
	assert.Same(t, b1, b2, "warm buffer of the same class must be reused")
	assert.Equal(t, 0, b2.Position(), "reused buffer must come back cleared")
	require.NoError(t, p.Release(b2))

	s := p.Stats()
	assert.Equal(t, int64(1), s.Allocs)
	assert.Equal(t, int64(1), s.Reuses)
}

func TestDoubleReleaseDetected(t *testing.T) {
	p := New(Options{Kind: buffer.Heap})

	b, err := p.Acquire(512)
	require.NoError(t, err)
	require.NoError(t, p.Release(b))
	assert.ErrorIs(t, p.Release(b), ErrDoubleRelease)
}

func TestRetentionBound(t *testing.T) {
	p := New(Options{Kind: buffer.Heap, RetainPerClass: 2})

	bufs := make([]*buffer.Buffer, 5)
	for i := range bufs {
		b, err := p.Acquire(1024)
		require.NoError(t, err)
		bufs[i] = b
	}
	for _, b := range bufs {
		require.NoError(t, p.Release(b))
	}

	// Two retained, three freed back to the allocator.
	assert.Equal(t, int64(3), p.Stats().Frees)
	assert.Equal(t, int64(0), p.Stats().Outstanding)
}

func TestExhaustionFailsFast(t *testing.T) {
	p := New(Options{Kind: buffer.Heap, MaxOutstanding: 2})

	b1, err := p.Acquire(512)
	require.NoError(t, err)
	b2, err := p.Acquire(512)
	require.NoError(t, err)

	_, err = p.Acquire(512)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, int64(1), p.Stats().Exhausted)

	require.NoError(t, p.Release(b1))
	b3, err := p.Acquire(512)
	require.NoError(t, err)
	require.NoError(t, p.Release(b2))
	require.NoError(t, p.Release(b3))
}

func TestOversizedRequestIsOneOff(t *testing.T) {
	p := New(Options{Kind: buffer.Heap, MaxClass: 4096})

	b, err := p.Acquire(1 << 20)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, b.Capacity(), 1<<20)
	require.NoError(t, p.Release(b))
	// Oversized buffers are never pooled.
	assert.Equal(t, int64(1), p.Stats().Frees)
}

func TestNativePoolRecycles(t *testing.T) {
	p := New(Options{Kind: buffer.Native})

	b, err := p.Acquire(8192)
	require.NoError(t, err)
	assert.Equal(t, buffer.Native, b.Kind())
	require.NoError(t, p.Release(b))
	p.Drain()
}
