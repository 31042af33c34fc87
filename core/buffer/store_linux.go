//go:build linux

// File: core/buffer/store_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Backing storage allocation. Heap buffers come from the bytedance mcache
// size-class allocator; native buffers from anonymous mmap, outside the
// managed heap so the kernel can hold references across syscalls without
// pinning GC memory.

package buffer

import (
	"fmt"

	"github.com/bytedance/gopkg/lang/mcache"
	"golang.org/x/sys/unix"
)

func allocStore(capacity int, kind Kind) ([]byte, error) {
	switch kind {
	case Heap:
		return mcache.Malloc(capacity, capacity), nil
	case Native:
		store, err := unix.Mmap(-1, 0, capacity,
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			// A native allocation failure is fatal for the caller;
			// it is surfaced, never retried here.
			return nil, fmt.Errorf("buffer: native alloc %d: %w", capacity, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("buffer: unknown kind %v", kind)
	}
}

func freeStore(store []byte, kind Kind) {
	if store == nil {
		return
	}
	switch kind {
	case Heap:
		mcache.Free(store)
	case Native:
		_ = unix.Munmap(store)
	}
}
