package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/s00inx/staticd/server/protocol"
)

// socket is what the connection handler needs from a descriptor
type socket interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Wait(events int16, timeout time.Duration) error // poll until ready, 0 means no timeout
	Close() error
}

// non-blocking socket descriptor, waits also watch the engine wake descriptor
// so a stalled peer can't hold a worker past Stop
type fdSocket struct {
	fd     int
	wakefd int
}

func (s fdSocket) Read(p []byte) (int, error) {
	n, err := unix.Read(s.fd, p)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (s fdSocket) Write(p []byte) (int, error) {
	n, err := unix.Write(s.fd, p)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (s fdSocket) Wait(events int16, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	fds := []unix.PollFd{
		{Fd: int32(s.fd), Events: events},
		{Fd: int32(s.wakefd), Events: unix.POLLIN},
	}
	for {
		ms := -1
		if timeout > 0 {
			left := time.Until(deadline)
			if left <= 0 {
				return ErrTimeout
			}
			ms = int(left.Milliseconds()) + 1
		}

		n, err := unix.Poll(fds, ms)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return fmt.Errorf("poll: %w", err)
		case n == 0:
			return ErrTimeout
		case fds[1].Revents != 0:
			return ErrShutdown
		}
		// POLLHUP and POLLERR come back as ready too, next read or write reports them
		return nil
	}
}

func (s fdSocket) Close() error {
	return unix.Close(s.fd)
}

// Responder builds the complete response for a request target.
// target is nil when the request had none.
type Responder func(target []byte) []byte

// handle one connection: read -> parse -> respond -> write -> close
type connHandler struct {
	respond      Responder
	maxRetries   int
	readTimeout  time.Duration
	writeTimeout time.Duration
	stats        *Stats
}

// serve runs synchronously until the connection is closed, sock is closed exactly once
func (h *connHandler) serve(s *Session, sock socket, log *logrus.Entry) {
	defer func() {
		if err := sock.Close(); err != nil {
			log.WithError(err).Warn("close failed")
		}
		log.WithField("elapsed", time.Since(s.Start)).Debug("closing connection")
	}()

	if err := h.readRequest(s, sock, log); err != nil {
		h.stats.ReadErrors.Add(1)
		log.WithError(err).Info("request not read, dropping connection")
		return
	}

	target, err := s.Parser.Target()
	if err != nil {
		// 404 comes naturally from the empty target
		log.WithError(err).Info("http header error: no filename")
	}
	log.WithField("target", string(target)).Debug("request complete")

	resp := h.respond(target)
	if protocol.IsNotFound(resp) {
		h.stats.NotFound.Add(1)
	}

	n, err := writeFull(sock, resp, h.writeTimeout)
	if err != nil {
		h.stats.WriteErrors.Add(1)
		log.WithError(err).WithFields(logrus.Fields{
			"written": n,
			"size":    len(resp),
		}).Warn("write error, response truncated")
		return
	}
	h.stats.Served.Add(1)
	log.WithField("size", n).Debug("response sent")
}

// receive into scratch buffer and feed parser until the header block is over
func (h *connHandler) readRequest(s *Session, sock socket, log *logrus.Entry) error {
	retries := 0
	for !s.Parser.Complete() {
		n, err := sock.Read(s.Buf)
		switch {
		case errors.Is(err, unix.EAGAIN):
			if werr := sock.Wait(unix.POLLIN, h.readTimeout); werr != nil {
				return fmt.Errorf("wait for request: %w", werr)
			}
			continue
		case errors.Is(err, unix.EINTR):
			// interrupted before anything was read, not a failure
			continue
		case err != nil:
			retries++
			log.WithError(err).WithField("retry", retries).Debug("read error")
			if retries > h.maxRetries {
				return fmt.Errorf("%w: %w", ErrReadRetries, err)
			}
			continue
		case n == 0:
			return ErrPeerClosed
		}

		retries = 0
		if err := s.Parser.Feed(s.Buf[:n]); err != nil {
			return err
		}
	}
	return nil
}
