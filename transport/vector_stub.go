//go:build !linux

// File: transport/vector_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Portable scatter/gather emulation: sequential per-buffer syscalls. Loses
// the single-syscall property but keeps the contract, including partial
// transfers stopping cleanly at a would-block.

package transport

import (
	"github.com/momentics/hioload-io/core/buffer"
)

func ScatterRead(c *Channel, bufs []*buffer.Buffer) (int, error) {
	total := 0
	for _, b := range bufs {
		if b.Remaining() == 0 {
			continue
		}
		n, err := c.Read(b)
		total += n
		if err != nil {
			if err == ErrWouldBlock && total > 0 {
				return total, nil
			}
			return total, err
		}
		if b.Remaining() > 0 {
			break
		}
	}
	return total, nil
}

func GatherWrite(c *Channel, bufs []*buffer.Buffer) (int, error) {
	total := 0
	for _, b := range bufs {
		if b.Remaining() == 0 {
			continue
		}
		n, err := c.Write(b)
		total += n
		if err != nil {
			if err == ErrWouldBlock && total > 0 {
				return total, nil
			}
			return total, err
		}
		if b.Remaining() > 0 {
			break
		}
	}
	return total, nil
}
