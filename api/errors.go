// Package api
// Author: momentics <momentics@gmail.com>
//
// Errors shared by reactor and loop implementations.

package api

import "errors"

var (
	// ErrClosed is returned by operations on a closed reactor or loop.
	ErrClosed = errors.New("closed")

	// ErrAlreadyRegistered is returned when registering a descriptor that
	// is already present in the interest table.
	ErrAlreadyRegistered = errors.New("descriptor already registered")

	// ErrNotRegistered is returned by Modify/Deregister for an unknown
	// descriptor.
	ErrNotRegistered = errors.New("descriptor not registered")

	// ErrNotSupported is returned by platform-specific operations that
	// have no implementation on the host OS.
	ErrNotSupported = errors.New("operation not supported")
)
