// file with epoll settings
// only low level epoll functional, shared by all workers
package engine

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	listenEvents = unix.EPOLLIN                     // level-triggered, losers of the accept race get EAGAIN
	connEvents   = unix.EPOLLIN | unix.EPOLLONESHOT // exactly one worker gets the connection
)

// Poller is one epoll instance shared by every worker,
// kernel guarantees epoll_wait and epoll_ctl are safe to call concurrently.
type Poller struct {
	epfd   int
	wakefd int // eventfd, readable forever once Wake is called
}

// creating new epoll instance with wake descriptor registered
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	p := &Poller{epfd: epfd, wakefd: wakefd}
	if err := p.Add(wakefd, unix.EPOLLIN); err != nil {
		p.Close()
		return nil, fmt.Errorf("register wake descriptor: %w", err)
	}
	return p, nil
}

// register fd for events
func (p *Poller) Add(fd int, events uint32) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	})
}

// Wait blocks without timeout until something is ready, EINTR is retried
func (p *Poller) Wait(events []unix.EpollEvent) (int, error) {
	for {
		n, err := unix.EpollWait(p.epfd, events, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return n, err
	}
}

// Wake makes every current and future Wait return the wake descriptor
func (p *Poller) Wake() error {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)

	_, err := unix.Write(p.wakefd, one[:])
	if errors.Is(err, unix.EAGAIN) {
		// counter is already non zero
		return nil
	}
	return err
}

func (p *Poller) WakeFd() int {
	return p.wakefd
}

// close only after all workers returned
func (p *Poller) Close() error {
	return errors.Join(unix.Close(p.wakefd), unix.Close(p.epfd))
}
