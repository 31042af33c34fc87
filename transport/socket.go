// File: transport/socket.go
// Package transport provides channel access to OS stream descriptors.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw socket plumbing: create, bind, listen, accept, connect. IPv4 TCP.

package transport

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Listen creates a non-blocking listening TCP socket bound to addr:port.
func Listen(addr string, port int, backlog int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("transport: socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("transport: set nonblock: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	sa, err := sockaddr(addr, port)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("transport: bind %s:%d: %w", addr, port, err)
	}
	if backlog <= 0 {
		backlog = 128
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("transport: listen: %w", err)
	}
	return fd, nil
}

// Accept takes one pending connection off a listening socket and returns a
// non-blocking Channel for it. Returns ErrWouldBlock when the backlog is
// empty.
func Accept(listenFD int) (*Channel, error) {
	fd, _, err := unix.Accept(listenFD)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: set nonblock: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return NewChannel(fd), nil
}

// Connect opens a non-blocking TCP connection. The returned channel is
// usually still connecting; register it for write readiness and check
// SO_ERROR on the first writable event.
func Connect(addr string, port int) (*Channel, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("transport: socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: set nonblock: %w", err)
	}
	sa, err := sockaddr(addr, port)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: connect %s:%d: %w", addr, port, err)
	}
	return NewChannel(fd), nil
}

// SocketError drains the pending asynchronous error from a socket, used
// after a non-blocking connect completes.
func SocketError(fd int) error {
	code, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("transport: getsockopt: %w", err)
	}
	if code != 0 {
		return unix.Errno(code)
	}
	return nil
}

func sockaddr(addr string, port int) (unix.Sockaddr, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, fmt.Errorf("transport: invalid address %q", addr)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("transport: not an IPv4 address %q", addr)
	}
	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip4)
	return sa, nil
}
