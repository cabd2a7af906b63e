package engine

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// write whole buf, a single write may take only a part of it
// returns how much was written, less than len(buf) only with an error
func writeFull(sock socket, buf []byte, timeout time.Duration) (int, error) {
	off := 0
	for off < len(buf) {
		n, err := sock.Write(buf[off:])
		if n > 0 {
			off += n
		}

		switch {
		case err == nil && n == 0:
			return off, ErrShortWrite
		case err == nil:
		case errors.Is(err, unix.EAGAIN):
			// socket buffer is full, wait till peer drains it
			if werr := sock.Wait(unix.POLLOUT, timeout); werr != nil {
				return off, werr
			}
		case errors.Is(err, unix.EINTR):
		default:
			return off, err
		}
	}
	return off, nil
}
