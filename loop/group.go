// File: loop/group.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package loop

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-io/control"
	"github.com/momentics/hioload-io/core/buffer"
	"github.com/momentics/hioload-io/internal/logging"
	"github.com/momentics/hioload-io/pool"
	"github.com/momentics/hioload-io/transport"
)

// Group runs cfg.Loops event loops over one shared buffer pool and spreads
// connections across them round-robin.
type Group struct {
	cfg     control.Config
	loops   []*Loop
	bufPool *pool.BufferPool
	next    atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// NewGroup builds and starts the loops. Each loop runs on its own goroutine
// as soon as NewGroup returns.
func NewGroup(cfg control.Config) (*Group, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kind := buffer.Heap
	if cfg.NativeBuffers {
		kind = buffer.Native
	}
	bp := pool.New(pool.Options{
		Kind:           kind,
		RetainPerClass: cfg.PoolRetainPerClass,
		MaxOutstanding: cfg.PoolMaxOutstanding,
	})
	g := &Group{cfg: cfg, bufPool: bp}
	for i := 0; i < cfg.Loops; i++ {
		l, err := New(i, cfg, bp)
		if err != nil {
			g.closeLoops()
			return nil, err
		}
		g.loops = append(g.loops, l)
	}
	for _, l := range g.loops {
		go l.Run()
	}
	logging.For("group").WithField("loops", cfg.Loops).Info("group started")
	return g, nil
}

// Next picks the loop for the next connection, round-robin.
func (g *Group) Next() *Loop {
	n := g.next.Add(1)
	return g.loops[(n-1)%uint64(len(g.loops))]
}

// Loops exposes the member loops, for metrics and tests.
func (g *Group) Loops() []*Loop { return g.loops }

// Pool exposes the shared buffer pool.
func (g *Group) Pool() *pool.BufferPool { return g.bufPool }

// Serve opens a listening socket and registers it with the first loop.
// Accepted channels are distributed across all loops round-robin, each
// bound to handler for its lifetime.
func (g *Group) Serve(addr string, port int, handler Handler) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("group: closed")
	}
	fd, err := transport.Listen(addr, port, g.cfg.AcceptBacklog)
	if err != nil {
		return err
	}
	sink := func(ch *transport.Channel) {
		l := g.Next()
		if err := l.Attach(ch, handler); err != nil {
			_ = ch.Close()
		}
	}
	if err := g.loops[0].ServeListener(fd, sink); err != nil {
		_ = unix.Close(fd)
		return err
	}
	return nil
}

// Connect starts a non-blocking connect and attaches it to the next loop.
// handler.OnOpen fires once the connect completes.
func (g *Group) Connect(addr string, port int, handler Handler) error {
	ch, err := transport.Connect(addr, port)
	if err != nil {
		return err
	}
	l := g.Next()
	if err := l.AttachConnecting(ch, handler); err != nil {
		_ = ch.Close()
		return err
	}
	return nil
}

// PublishMetrics pushes every loop's counters plus pool stats into mr.
func (g *Group) PublishMetrics(mr *control.MetricsRegistry) {
	for _, l := range g.loops {
		l.PublishMetrics(mr)
	}
	ps := g.bufPool.Stats()
	mr.Set("pool.allocs", ps.Allocs)
	mr.Set("pool.reuses", ps.Reuses)
	mr.Set("pool.frees", ps.Frees)
	mr.Set("pool.outstanding", ps.Outstanding)
	mr.Set("pool.exhausted", ps.Exhausted)
}

// Close stops the loops, which closes every registered descriptor
// (listeners included), then drains the shared pool. Idempotent.
func (g *Group) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	err := g.closeLoops()
	g.bufPool.Drain()
	return err
}

func (g *Group) closeLoops() error {
	var first error
	for _, l := range g.loops {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
