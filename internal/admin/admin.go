// Package admin serves the status endpoints of a running server on a
// separate plain net/http listener: /health and /api/status.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/s00inx/staticd/internal/config"
	"github.com/s00inx/staticd/server/engine"
)

// StatsSource is anything that can report engine counters
type StatsSource interface {
	Snapshot() engine.StatsSnapshot
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type StatusResponse struct {
	Status    string               `json:"status"`
	Listen    string               `json:"listen"`
	Directory string               `json:"directory"`
	Workers   int                  `json:"workers"`
	Uptime    string               `json:"uptime"`
	Stats     engine.StatsSnapshot `json:"stats"`
	Timestamp time.Time            `json:"timestamp"`
}

// Handler implements the admin endpoints
type Handler struct {
	settings *config.Settings
	stats    StatsSource
	listen   func() string
	started  time.Time
}

// listen reports the bound address of the file server, it may change after start (port 0)
func NewHandler(settings *config.Settings, stats StatsSource, listen func() string) *Handler {
	return &Handler{
		settings: settings,
		stats:    stats,
		listen:   listen,
		started:  time.Now(),
	}
}

// HealthCheck answers as long as the process is up
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// GetStatus reports settings and counters
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:    "running",
		Listen:    h.listen(),
		Directory: h.settings.Directory,
		Workers:   h.settings.Workers,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Stats:     h.stats.Snapshot(),
		Timestamp: time.Now(),
	})
}

// Router wires the handler into a gin engine
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.HealthCheck)
	r.GET("/api/status", h.GetStatus)
	return r
}

// Server is the admin http server
type Server struct {
	httpServer *http.Server
	log        *logrus.Entry
}

func NewServer(addr string, h *Handler, log *logrus.Entry) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           h.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Serve blocks until Shutdown, ln may be nil to listen on the configured address
func (s *Server) Serve(ln net.Listener) error {
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", s.httpServer.Addr); err != nil {
			return fmt.Errorf("admin listen: %w", err)
		}
	}

	s.log.WithField("addr", ln.Addr().String()).Info("admin endpoint listening")
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin serve: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin shutdown: %w", err)
	}
	return nil
}
