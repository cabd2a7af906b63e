// Package server puts the pieces together: listener, shared poller,
// worker engine, file router and the optional admin endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/s00inx/staticd/internal/admin"
	"github.com/s00inx/staticd/internal/config"
	"github.com/s00inx/staticd/internal/logx"
	"github.com/s00inx/staticd/server/engine"
	"github.com/s00inx/staticd/server/protocol"
	"github.com/s00inx/staticd/server/router"
)

const shutdownTimeout = 5 * time.Second

// Server serves files from the configured directory until its context ends
type Server struct {
	settings *config.Settings
	log      *logrus.Logger
	entry    *logrus.Entry
	router   *router.Router

	// set before ready is closed, read-only afterwards
	ln     *engine.Listener
	poller *engine.Poller
	eng    *engine.Engine
	ready  chan struct{}
}

func New(settings *config.Settings, log *logrus.Logger) (*Server, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}

	return &Server{
		settings: settings,
		log:      log,
		entry:    logx.Component(log, "server"),
		router:   router.New(settings.Directory, settings.Mounts, logx.Component(log, "router")),
		ready:    make(chan struct{}),
	}, nil
}

// respond maps a target to a full response, nil target means root directory => 404
func (s *Server) respond(target []byte) []byte {
	return protocol.FileResponse(s.router.Resolve(target))
}

// Ready is closed once the server accepts connections
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound listening address, valid after Ready
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr()
}

// Snapshot returns engine counters, zero before start
func (s *Server) Snapshot() engine.StatsSnapshot {
	select {
	case <-s.ready:
		return s.eng.Stats.Snapshot()
	default:
		return engine.StatsSnapshot{}
	}
}

// Run blocks until ctx is cancelled or a worker fails
func (s *Server) Run(ctx context.Context) error {
	ln, err := engine.Listen(s.settings.Host, s.settings.Port, s.settings.Backlog)
	if err != nil {
		return fmt.Errorf("listener: %w", err)
	}
	defer ln.Close()

	p, err := engine.NewPoller()
	if err != nil {
		return fmt.Errorf("poller: %w", err)
	}
	defer p.Close()

	s.ln, s.poller = ln, p
	s.eng = engine.New(engine.Config{
		Workers:        s.settings.Workers,
		MaxEvents:      s.settings.MaxEvents,
		ReadBufferSize: s.settings.ReadBufferSize,
		MaxHeaderBytes: s.settings.MaxHeaderBytes,
		MaxReadRetries: s.settings.MaxReadRetries,
		ReadTimeout:    s.settings.ReadTimeout,
		WriteTimeout:   s.settings.WriteTimeout,
	}, ln, p, s.respond, logx.Component(s.log, "engine"))

	engErr := make(chan error, 1)
	go func() {
		engErr <- s.eng.Run()
	}()

	var adm *admin.Server
	admErr := make(chan error, 1)
	if s.settings.AdminAddr != "" {
		h := admin.NewHandler(s.settings, s, s.Addr)
		adm = admin.NewServer(s.settings.AdminAddr, h, logx.Component(s.log, "admin"))
		go func() {
			admErr <- adm.Serve(nil)
		}()
	}

	s.entry.WithFields(logrus.Fields{
		"addr":      ln.Addr(),
		"directory": s.settings.Directory,
		"workers":   s.settings.Workers,
	}).Info("server started")
	close(s.ready)

	var runErr error
	select {
	case <-ctx.Done():
		s.entry.Info("shutting down")
		s.eng.Stop()
		runErr = <-engErr
	case runErr = <-engErr:
		s.entry.WithError(runErr).Error("engine stopped")
	case err := <-admErr:
		runErr = err
		s.eng.Stop()
		runErr = errors.Join(runErr, <-engErr)
	}

	if adm != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := adm.Shutdown(sctx); err != nil {
			runErr = errors.Join(runErr, err)
		}
		cancel()
	}

	st := s.eng.Stats.Snapshot()
	s.entry.WithFields(logrus.Fields{
		"accepted":  st.Accepted,
		"served":    st.Served,
		"not_found": st.NotFound,
		"dropped":   st.Dropped,
	}).Info("server stopped")

	return runErr
}
