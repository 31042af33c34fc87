//go:build !linux

// File: transport/sendfile_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Portable TransferFile: pread into a bounce buffer then write. Correct but
// not zero-copy; the Linux build uses sendfile(2).

package transport

import (
	"golang.org/x/sys/unix"
)

const bounceSize = 64 * 1024

func TransferFile(fileFD int, offset int64, count int, dst *Channel) (int, error) {
	if dst.closed.Load() {
		return 0, ErrChannelClosed
	}
	bounce := make([]byte, bounceSize)
	total := 0
	for total < count {
		chunk := count - total
		if chunk > len(bounce) {
			chunk = len(bounce)
		}
		nr, err := unix.Pread(fileFD, bounce[:chunk], offset+int64(total))
		if err != nil {
			return total, mapIOError(err)
		}
		if nr == 0 {
			break
		}
		nw, err := unix.Write(dst.fd, bounce[:nr])
		if nw > 0 {
			total += nw
			dst.bytesOut.Add(int64(nw))
		}
		if err != nil {
			mapped := mapIOError(err)
			if mapped == ErrWouldBlock {
				return total, nil
			}
			return total, mapped
		}
		if nw < nr {
			return total, nil
		}
	}
	return total, nil
}
