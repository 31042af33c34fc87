//go:build !linux

// File: core/buffer/store_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fallback storage for platforms without the mmap path: native buffers
// degrade to heap allocation. Free stays explicit so calling code keeps the
// same ownership discipline everywhere.

package buffer

import (
	"fmt"

	"github.com/bytedance/gopkg/lang/mcache"
)

func allocStore(capacity int, kind Kind) ([]byte, error) {
	switch kind {
	case Heap, Native:
		return mcache.Malloc(capacity, capacity), nil
	default:
		return nil, fmt.Errorf("buffer: unknown kind %v", kind)
	}
}

func freeStore(store []byte, kind Kind) {
	if store == nil {
		return
	}
	mcache.Free(store)
}
