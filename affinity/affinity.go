// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations
// are located in separate files guarded by build tags.

package affinity

// SetAffinity pins the current OS thread to a given logical CPU on
// supported platforms. On unsupported platforms returns an error. Callers
// must have locked the goroutine to its thread first.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}
