//go:build !linux && !windows

// File: reactor/reactor_poll.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Portable poll(2) fallback. The pollfd slice is rebuilt from the
// registration table on every wait, so the cost is O(registered) rather
// than O(ready); prefer the epoll backend whenever available. A pipe serves
// as the wakeup channel.

package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-io/api"
)

type pollReactor struct {
	wakeR int
	wakeW int

	mu      sync.Mutex
	entries map[int]*entry

	trigger atomic.Uint32
	closed  atomic.Bool
}

func newPlatformReactor() (api.Reactor, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, fmt.Errorf("reactor: pipe: %w", err)
	}
	_ = unix.SetNonblock(p[0], true)
	_ = unix.SetNonblock(p[1], true)
	return &pollReactor{
		wakeR:   p[0],
		wakeW:   p[1],
		entries: make(map[int]*entry),
	}, nil
}

func (r *pollReactor) Register(fd int, interest api.Interest, attachment any) error {
	if r.closed.Load() {
		return api.ErrClosed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[fd]; ok {
		return fmt.Errorf("reactor: fd %d: %w", fd, api.ErrAlreadyRegistered)
	}
	r.entries[fd] = &entry{interest: interest, attachment: attachment}
	return nil
}

func (r *pollReactor) Modify(fd int, interest api.Interest) error {
	if r.closed.Load() {
		return api.ErrClosed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[fd]
	if !ok {
		return fmt.Errorf("reactor: fd %d: %w", fd, api.ErrNotRegistered)
	}
	e.interest = interest
	return nil
}

func (r *pollReactor) Deregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[fd]; !ok {
		return fmt.Errorf("reactor: fd %d: %w", fd, api.ErrNotRegistered)
	}
	delete(r.entries, fd)
	return nil
}

func (r *pollReactor) Wait(events []api.Event, timeout time.Duration) (int, error) {
	if r.closed.Load() {
		return 0, api.ErrClosed
	}
	if len(events) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	fds := make([]unix.PollFd, 0, len(r.entries)+1)
	fds = append(fds, unix.PollFd{Fd: int32(r.wakeR), Events: unix.POLLIN})
	for fd, e := range r.entries {
		var ev int16
		if e.interest.Has(api.Readable) || e.interest.Has(api.Acceptable) {
			ev |= unix.POLLIN
		}
		if e.interest.Has(api.Writable) {
			ev |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: ev})
	}
	r.mu.Unlock()

	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}
	n, err := unix.Poll(fds, msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		if r.closed.Load() {
			return 0, api.ErrClosed
		}
		return 0, fmt.Errorf("reactor: poll: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	out := 0
	r.mu.Lock()
	for _, pfd := range fds {
		if out == len(events) {
			break
		}
		if pfd.Revents == 0 {
			continue
		}
		if int(pfd.Fd) == r.wakeR {
			r.drainWakeup()
			continue
		}
		e, ok := r.entries[int(pfd.Fd)]
		if !ok {
			continue
		}
		var ready api.Ready
		if pfd.Revents&(unix.POLLIN|unix.POLLPRI) != 0 {
			ready |= api.ReadyRead
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			ready |= api.ReadyWrite
		}
		if pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			ready |= api.ReadyError
		}
		events[out] = api.Event{FD: int(pfd.Fd), Ready: ready, Attachment: e.attachment}
		out++
	}
	r.mu.Unlock()
	return out, nil
}

func (r *pollReactor) Wakeup() error {
	if r.closed.Load() {
		return api.ErrClosed
	}
	if !r.trigger.CompareAndSwap(0, 1) {
		return nil
	}
	_, err := unix.Write(r.wakeW, []byte{1})
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("reactor: wakeup: %w", err)
	}
	return nil
}

func (r *pollReactor) drainWakeup() {
	var buf [16]byte
	for {
		n, err := unix.Read(r.wakeR, buf[:])
		if n <= 0 || err != nil {
			break
		}
	}
	r.trigger.Store(0)
}

func (r *pollReactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	_, _ = unix.Write(r.wakeW, []byte{1})
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[int]*entry)
	_ = unix.Close(r.wakeW)
	return unix.Close(r.wakeR)
}
