//go:build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7) reactor. Level-triggered, with an eventfd wakeup channel so
// another goroutine can interrupt a blocking wait (task submission, shutdown).

package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-io/api"
)

type epollReactor struct {
	epfd   int
	wakefd int // eventfd; read side drained inside Wait

	mu      sync.Mutex
	entries map[int]*entry

	// trigger collapses concurrent Wakeup calls into one eventfd write
	// per wait cycle.
	trigger atomic.Uint32
	closed  atomic.Bool

	raw []unix.EpollEvent
}

func newPlatformReactor() (api.Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}
	r := &epollReactor{
		epfd:    epfd,
		wakefd:  wakefd,
		entries: make(map[int]*entry),
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("reactor: register wakeup: %w", err)
	}
	return r, nil
}

func (r *epollReactor) Register(fd int, interest api.Interest, attachment any) error {
	if r.closed.Load() {
		return api.ErrClosed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[fd]; ok {
		return fmt.Errorf("reactor: fd %d: %w", fd, api.ErrAlreadyRegistered)
	}
	ev := unix.EpollEvent{Events: epollMask(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add fd %d: %w", fd, err)
	}
	r.entries[fd] = &entry{interest: interest, attachment: attachment}
	return nil
}

func (r *epollReactor) Modify(fd int, interest api.Interest) error {
	if r.closed.Load() {
		return api.ErrClosed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[fd]
	if !ok {
		return fmt.Errorf("reactor: fd %d: %w", fd, api.ErrNotRegistered)
	}
	ev := unix.EpollEvent{Events: epollMask(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl mod fd %d: %w", fd, err)
	}
	e.interest = interest
	return nil
}

func (r *epollReactor) Deregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[fd]; !ok {
		return fmt.Errorf("reactor: fd %d: %w", fd, api.ErrNotRegistered)
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("reactor: epoll_ctl del fd %d: %w", fd, err)
	}
	delete(r.entries, fd)
	return nil
}

func (r *epollReactor) Wait(events []api.Event, timeout time.Duration) (int, error) {
	if r.closed.Load() {
		return 0, api.ErrClosed
	}
	if len(events) == 0 {
		return 0, nil
	}
	if cap(r.raw) < len(events) {
		r.raw = make([]unix.EpollEvent, len(events))
	}
	raw := r.raw[:len(events)]

	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}
	n, err := unix.EpollWait(r.epfd, raw, msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		if r.closed.Load() {
			return 0, api.ErrClosed
		}
		return 0, fmt.Errorf("reactor: epoll_wait: %w", err)
	}

	out := 0
	r.mu.Lock()
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		if fd == r.wakefd {
			r.drainWakeup()
			continue
		}
		e, ok := r.entries[fd]
		if !ok {
			// Deregistered between wait and dispatch.
			continue
		}
		events[out] = api.Event{
			FD:         fd,
			Ready:      readyMask(raw[i].Events),
			Attachment: e.attachment,
		}
		out++
	}
	r.mu.Unlock()
	return out, nil
}

func (r *epollReactor) Wakeup() error {
	if r.closed.Load() {
		return api.ErrClosed
	}
	if !r.trigger.CompareAndSwap(0, 1) {
		return nil
	}
	var one = [8]byte{0: 1}
	_, err := unix.Write(r.wakefd, one[:])
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("reactor: wakeup: %w", err)
	}
	return nil
}

func (r *epollReactor) drainWakeup() {
	var buf [8]byte
	_, _ = unix.Read(r.wakefd, buf[:])
	r.trigger.Store(0)
}

func (r *epollReactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	// Unblock a Wait in flight before tearing down the fds.
	var one = [8]byte{0: 1}
	_, _ = unix.Write(r.wakefd, one[:])
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[int]*entry)
	if err := unix.Close(r.wakefd); err != nil {
		return err
	}
	return unix.Close(r.epfd)
}

// epollMask maps an interest set to epoll event bits. Acceptable is read
// readiness on a listening socket. EPOLLRDHUP is always requested so a
// half-closed peer surfaces as read readiness (the read then reports EOF).
func epollMask(interest api.Interest) uint32 {
	var events uint32
	if interest.Has(api.Readable) || interest.Has(api.Acceptable) {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest.Has(api.Writable) {
		events |= unix.EPOLLOUT
	}
	return events
}

func readyMask(events uint32) api.Ready {
	var ready api.Ready
	if events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLPRI) != 0 {
		ready |= api.ReadyRead
	}
	if events&unix.EPOLLOUT != 0 {
		ready |= api.ReadyWrite
	}
	if events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		ready |= api.ReadyError
	}
	return ready
}
