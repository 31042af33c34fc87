// File: loop/loop.go
// Package loop runs single-threaded readiness dispatch cycles.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One Loop owns one reactor and a disjoint set of connections. The cycle is
// strict: drain submitted tasks, wait for readiness, dispatch each ready
// entry to its connection's state machine, repeat. Control never returns to
// the wait call while a handler runs, and no two handlers of one loop ever
// execute concurrently, so connection state needs no locking.

package loop

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-io/affinity"
	"github.com/momentics/hioload-io/api"
	"github.com/momentics/hioload-io/control"
	"github.com/momentics/hioload-io/internal/logging"
	"github.com/momentics/hioload-io/pool"
	"github.com/momentics/hioload-io/reactor"
	"github.com/momentics/hioload-io/transport"
)

// Stats is a point-in-time snapshot of one loop's counters.
type Stats struct {
	ID              int
	RegisteredConns int64
	Accepted        int64
	BytesIn         int64
	BytesOut        int64
	TasksRun        int64
	Waits           int64
	AvgWaitNanos    int64
}

// Loop is one event loop. Create with New, drive with Run (usually on its
// own goroutine), stop with Close.
type Loop struct {
	id      int
	cfg     control.Config
	reactor api.Reactor
	bufPool *pool.BufferPool
	tasks   *taskQueue
	conns   map[int]*Conn
	events  []api.Event
	log     *logrus.Entry

	running  atomic.Bool
	stopping atomic.Bool
	waitDone chan struct{}

	registered atomic.Int64
	accepted   atomic.Int64
	bytesIn    atomic.Int64
	bytesOut   atomic.Int64
	tasksRun   atomic.Int64
	waits      atomic.Int64
	waitNanos  atomic.Int64
}

// New creates a loop with its own reactor. The buffer pool may be shared
// across loops; it is the one cross-loop structure and is lock-free.
func New(id int, cfg control.Config, bufPool *pool.BufferPool) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r, err := reactor.New()
	if err != nil {
		return nil, fmt.Errorf("loop %d: %w", id, err)
	}
	return &Loop{
		id:       id,
		cfg:      cfg,
		reactor:  r,
		bufPool:  bufPool,
		tasks:    newTaskQueue(cfg.EventBatch * 8),
		conns:    make(map[int]*Conn),
		events:   make([]api.Event, cfg.EventBatch),
		log:      logging.For("loop").WithField("loop", id),
		waitDone: make(chan struct{}),
	}, nil
}

// ID returns the loop's identity, used for task routing and metrics keys.
func (l *Loop) ID() int { return l.id }

// Run executes the dispatch cycle until Close. It blocks; run it on a
// dedicated goroutine.
func (l *Loop) Run() {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	defer close(l.waitDone)

	if l.cfg.PinLoops {
		runtime.LockOSThread()
		if err := affinity.SetAffinity(l.id % runtime.NumCPU()); err != nil {
			l.log.WithError(err).Warn("cpu pinning unavailable")
		}
	}

	for {
		if n := l.tasks.drain(l.runTask); n > 0 {
			l.tasksRun.Add(int64(n))
		}
		if l.stopping.Load() {
			l.teardown()
			return
		}

		start := time.Now()
		n, err := l.reactor.Wait(l.events, l.cfg.Tick)
		l.waits.Add(1)
		l.waitNanos.Add(time.Since(start).Nanoseconds())
		if err != nil {
			if errors.Is(err, api.ErrClosed) {
				l.teardown()
				return
			}
			l.log.WithError(err).Error("wait failed")
			continue
		}
		for i := 0; i < n; i++ {
			ev := l.events[i]
			c, ok := ev.Attachment.(*Conn)
			if !ok || c.state >= StateClosing {
				continue
			}
			c.handleEvent(ev.Ready)
		}
	}
}

func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.WithField("panic", r).Error("submitted task panicked")
		}
	}()
	fn()
}

// Submit marshals fn onto the loop goroutine; it runs at the start of the
// next cycle. Safe from any goroutine. This is the only sanctioned way to
// touch loop-owned state from outside.
func (l *Loop) Submit(fn func()) error {
	if l.stopping.Load() && !l.running.Load() {
		return api.ErrClosed
	}
	l.tasks.push(fn)
	return l.reactor.Wakeup()
}

// Attach pins a channel to this loop for its lifetime and registers it for
// read interest. Safe from any goroutine: when the loop is running the
// registration itself is marshaled onto it.
func (l *Loop) Attach(ch *transport.Channel, h Handler) error {
	if l.running.Load() {
		return l.Submit(func() {
			if err := l.attach(ch, h); err != nil {
				l.log.WithError(err).Warn("attach failed")
				_ = ch.Close()
			}
		})
	}
	return l.attach(ch, h)
}

func (l *Loop) attach(ch *transport.Channel, h Handler) error {
	c := &Conn{loop: l, ch: ch, handler: h, state: StateConnected}
	if err := l.reactor.Register(ch.FD(), api.Readable, c); err != nil {
		return err
	}
	l.conns[ch.FD()] = c
	l.registered.Add(1)
	if h != nil {
		h.OnOpen(c)
	}
	return nil
}

// AttachConnecting registers an in-progress non-blocking connect. The conn
// completes (or fails) on its first write readiness.
func (l *Loop) AttachConnecting(ch *transport.Channel, h Handler) error {
	do := func() error {
		c := &Conn{loop: l, ch: ch, handler: h, state: StateConnecting}
		if err := l.reactor.Register(ch.FD(), api.Writable, c); err != nil {
			return err
		}
		l.conns[ch.FD()] = c
		l.registered.Add(1)
		return nil
	}
	if l.running.Load() {
		return l.Submit(func() {
			if err := do(); err != nil {
				l.log.WithError(err).Warn("attach connecting failed")
				_ = ch.Close()
			}
		})
	}
	return do()
}

// ServeListener registers a listening descriptor; accepted channels are
// handed to sink, which decides their owning loop.
func (l *Loop) ServeListener(listenFD int, sink func(*transport.Channel)) error {
	do := func() error {
		c := &Conn{
			loop:  l,
			ch:    transport.NewChannel(listenFD),
			state: StateAccepting,
			sink:  sink,
		}
		if err := l.reactor.Register(listenFD, api.Acceptable, c); err != nil {
			return err
		}
		l.conns[listenFD] = c
		l.registered.Add(1)
		return nil
	}
	if l.running.Load() {
		return l.Submit(func() {
			if err := do(); err != nil {
				l.log.WithError(err).Warn("serve listener failed")
			}
		})
	}
	return do()
}

// Close stops the loop and waits for the cycle to exit. Idempotent.
func (l *Loop) Close() error {
	if !l.stopping.CompareAndSwap(false, true) {
		<-l.waitDone
		return nil
	}
	if l.running.CompareAndSwap(false, true) {
		// Never ran: winning the CAS means Run's own CAS will fail and
		// return without touching waitDone, so release it and the
		// reactor directly.
		close(l.waitDone)
		return l.reactor.Close()
	}
	_ = l.reactor.Wakeup()
	select {
	case <-l.waitDone:
		return nil
	case <-time.After(15 * time.Second):
		return errors.New("loop: close timeout")
	}
}

// teardown closes every connection in order and releases the reactor.
// Runs on the loop goroutine.
func (l *Loop) teardown() {
	for _, c := range l.conns {
		c.closeWith(nil)
	}
	if err := l.reactor.Close(); err != nil {
		l.log.WithError(err).Warn("reactor close failed")
	}
	l.log.Info("loop exit")
}

// Stats returns the loop's counters.
func (l *Loop) Stats() Stats {
	waits := l.waits.Load()
	var avg int64
	if waits > 0 {
		avg = l.waitNanos.Load() / waits
	}
	return Stats{
		ID:              l.id,
		RegisteredConns: l.registered.Load(),
		Accepted:        l.accepted.Load(),
		BytesIn:         l.bytesIn.Load(),
		BytesOut:        l.bytesOut.Load(),
		TasksRun:        l.tasksRun.Load(),
		Waits:           waits,
		AvgWaitNanos:    avg,
	}
}

// PublishMetrics pushes the loop's counters into a registry under
// loop.<id>.* keys.
func (l *Loop) PublishMetrics(mr *control.MetricsRegistry) {
	s := l.Stats()
	prefix := fmt.Sprintf("loop.%d.", l.id)
	mr.Set(prefix+"conns", s.RegisteredConns)
	mr.Set(prefix+"accepted", s.Accepted)
	mr.Set(prefix+"bytes_in", s.BytesIn)
	mr.Set(prefix+"bytes_out", s.BytesOut)
	mr.Set(prefix+"tasks_run", s.TasksRun)
	mr.Set(prefix+"avg_wait_ns", s.AvgWaitNanos)
}
