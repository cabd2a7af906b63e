// session management and worker logic
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	maxSessions     = 1 << 20 // upper bound for session table whatever rlimit says
	defaultSessions = 1 << 16

	// a listener stuck in an error state stays readable, workers pause and log rarely
	listenErrBackoff  = 10 * time.Millisecond
	listenErrLogEvery = time.Second
)

// Config is the engine part of settings, read-only once the engine is built
type Config struct {
	Workers        int
	MaxEvents      int
	ReadBufferSize int
	MaxHeaderBytes int // 0 means unlimited
	MaxReadRetries int
	ReadTimeout    time.Duration // 0 means wait forever
	WriteTimeout   time.Duration
}

// Engine runs a fixed pool of workers, all of them waiting on the same epoll instance.
// there is no job queue, epoll hands every ready descriptor to one waiting worker.
type Engine struct {
	cfg    Config
	poller *Poller
	ln     *Listener
	conn   connHandler
	log    *logrus.Entry

	// accepted but not yet served sessions, index is fd
	// i use atomic pointer here bc accept and serve of one fd can run on different workers
	sessions    []atomic.Pointer[Session]
	sessionPool sync.Pool

	listenErrLog logLimiter

	Stats Stats
}

// what a worker does with ready descriptors
type dispatcher interface {
	acceptConn(log *logrus.Entry)
	serveConn(fd int, log *logrus.Entry)
	dropConn(fd int, log *logrus.Entry)
}

func New(cfg Config, ln *Listener, p *Poller, respond Responder, log *logrus.Entry) *Engine {
	e := &Engine{
		cfg:    cfg,
		poller: p,
		ln:     ln,
		log:    log,
	}
	e.conn = connHandler{
		respond:      respond,
		maxRetries:   cfg.MaxReadRetries,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		stats:        &e.Stats,
	}
	e.sessionPool.New = e.newSession
	e.listenErrLog.every = listenErrLogEvery
	e.sessions = make([]atomic.Pointer[Session], sessionTableSize())

	return e
}

// get r limit (means max count of descriptors)
func sessionTableSize() int {
	rlim := unix.Rlimit{}
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil || rlim.Cur == 0 {
		return defaultSessions
	}
	if rlim.Cur > maxSessions {
		return maxSessions
	}
	return int(rlim.Cur)
}

// Run registers the listener and blocks until every worker returned.
// returns the first worker error, nil after Stop.
func (e *Engine) Run() error {
	if err := e.poller.Add(e.ln.Fd(), listenEvents); err != nil {
		return fmt.Errorf("register listener: %w", err)
	}

	errc := make(chan error, e.cfg.Workers)
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		w := &worker{
			id:       i + 1,
			listenfd: e.ln.Fd(),
			wakefd:   e.poller.WakeFd(),
			events:   make([]unix.EpollEvent, e.cfg.MaxEvents),
			wait:     e.poller.Wait,
			d:        e,
			log:      e.log.WithField("worker", i+1),
			errLog:   &e.listenErrLog,
			backoff:  listenErrBackoff,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.run(); err != nil {
				errc <- err
				e.Stop()
			}
		}()
	}
	e.log.WithField("workers", e.cfg.Workers).Info("workers started")

	wg.Wait()
	close(errc)

	var errs []error
	for err := range errc {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Stop wakes all workers, they finish their current batch of events and return
func (e *Engine) Stop() {
	if err := e.poller.Wake(); err != nil {
		e.log.WithError(err).Error("wake workers")
	}
}

// listener is readable: take one connection and register it
func (e *Engine) acceptConn(log *logrus.Entry) {
	nfd, peer, err := e.ln.accept()
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			// another worker took it
			return
		}
		e.Stats.AcceptErrors.Add(1)
		log.WithError(err).Warn("error during accept")
		return
	}

	if nfd >= len(e.sessions) {
		e.Stats.AcceptErrors.Add(1)
		log.WithFields(logrus.Fields{"fd": nfd, "peer": peer}).Warn("descriptor out of session table")
		unix.Close(nfd)
		return
	}

	s := e.getSession(nfd, peer)
	e.sessions[nfd].Store(s)
	e.Stats.Accepted.Add(1)

	if err := e.poller.Add(nfd, connEvents); err != nil {
		log.WithError(err).WithField("fd", nfd).Warn("error on epoll_ctl add")
		e.sessions[nfd].Store(nil)
		e.putSession(s)
		unix.Close(nfd)
		return
	}

	log.WithFields(logrus.Fields{
		"fd":   nfd,
		"conn": s.ID,
		"peer": peer,
	}).Debug("accepted new connection")
}

// connection is readable: serve it to the end on this worker
func (e *Engine) serveConn(fd int, log *logrus.Entry) {
	s := e.takeSession(fd)
	log = log.WithFields(logrus.Fields{"fd": fd, "conn": s.ID})
	log.Debug("new EPOLLIN event")

	e.conn.serve(s, fdSocket{fd: fd, wakefd: e.poller.WakeFd()}, log)
	e.putSession(s)
}

// epoll reported error or hangup
func (e *Engine) dropConn(fd int, log *logrus.Entry) {
	s := e.takeSession(fd)
	e.Stats.Dropped.Add(1)
	log.WithFields(logrus.Fields{"fd": fd, "conn": s.ID}).Info("error on descriptor")

	unix.Close(fd) // closing socket AFTER clearing its slot
	e.putSession(s)
}

// zero the slot before the fd is closed, otherwise a new connection
// reusing the number could find the old session
func (e *Engine) takeSession(fd int) *Session {
	if fd >= 0 && fd < len(e.sessions) {
		if s := e.sessions[fd].Swap(nil); s != nil {
			return s
		}
	}
	return e.getSession(fd, "")
}

// one worker: waiting -> dispatching -> waiting
type worker struct {
	id       int
	listenfd int
	wakefd   int
	events   []unix.EpollEvent
	wait     func([]unix.EpollEvent) (int, error)
	d        dispatcher
	log      *logrus.Entry

	errLog    *logLimiter   // shared by all workers
	backoff   time.Duration // pause after a batch with a listener error
	listenErr bool
}

// logLimiter lets one caller through per interval, safe for concurrent use
type logLimiter struct {
	every time.Duration
	last  atomic.Int64 // unix nano of the last allowed call
}

func (l *logLimiter) allow(now time.Time) bool {
	last := l.last.Load()
	if last != 0 && now.UnixNano()-last < int64(l.every) {
		return false
	}
	return l.last.CompareAndSwap(last, now.UnixNano())
}

func (w *worker) run() error {
	w.log.Debug("worker started")
	for {
		n, err := w.wait(w.events)
		if err != nil {
			return fmt.Errorf("worker %d: epoll_wait: %w", w.id, err)
		}

		if stop := w.dispatch(w.events[:n]); stop {
			w.log.Debug("worker stopped")
			return nil
		}
		if w.listenErr {
			w.listenErr = false
			time.Sleep(w.backoff)
		}
	}
}

// handle one batch of ready descriptors, true means the wake descriptor fired
func (w *worker) dispatch(events []unix.EpollEvent) bool {
	stop := false
	for i := range events {
		ev := events[i].Events
		fd := int(events[i].Fd) // current event descriptor
		bad := ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 || ev&unix.EPOLLIN == 0

		switch {
		case fd == w.wakefd:
			stop = true
		case fd == w.listenfd:
			if bad {
				// the listener stays, dropping it would stop the server
				w.listenErr = true
				if w.errLog.allow(time.Now()) {
					w.log.WithField("events", ev).Warn("error on listening descriptor")
				}
				continue
			}
			w.d.acceptConn(w.log)
		case bad:
			w.d.dropConn(fd, w.log)
		default:
			w.d.serveConn(fd, w.log)
		}
	}
	return stop
}
