//go:build !linux

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for platforms without settable thread affinity.

package affinity

import "errors"

func setAffinityPlatform(cpuID int) error {
	return errors.New("affinity: not supported on this platform")
}
