//go:build linux

// File: transport/sendfile_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Zero-copy file-to-channel transfer via sendfile(2): bytes move from the
// page cache to the socket without ever materializing in user space.

package transport

import (
	"golang.org/x/sys/unix"
)

// TransferFile moves up to count bytes from the file descriptor fileFD,
// starting at offset, directly into dst. Returns the count actually moved,
// which may be short when the destination would block; the caller resumes at
// offset plus the returned count. A short count with a nil error is normal.
func TransferFile(fileFD int, offset int64, count int, dst *Channel) (int, error) {
	if dst.closed.Load() {
		return 0, ErrChannelClosed
	}
	if count <= 0 {
		return 0, nil
	}
	off := offset
	n, err := unix.Sendfile(dst.fd, fileFD, &off, count)
	if n < 0 {
		n = 0
	}
	if err != nil {
		mapped := mapIOError(err)
		if mapped == ErrWouldBlock && n > 0 {
			// Partial progress before the socket filled up.
			dst.bytesOut.Add(int64(n))
			return n, nil
		}
		return n, mapped
	}
	dst.bytesOut.Add(int64(n))
	return n, nil
}
