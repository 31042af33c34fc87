//go:build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux implementation via sched_setaffinity(2), no cgo.

package affinity

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func setAffinityPlatform(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity cpu %d: %w", cpuID, err)
	}
	return nil
}
