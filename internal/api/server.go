// Package api exposes a council Service over HTTP with a WebSocket snapshot
// stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nvandessel/forensic-council/internal/council"
	"github.com/nvandessel/forensic-council/internal/logging"
	"github.com/nvandessel/forensic-council/internal/pathutil"
	"github.com/nvandessel/forensic-council/internal/ratelimit"
	"github.com/nvandessel/forensic-council/internal/store"
)

// Options configures a Server.
type Options struct {
	// Root is the project root. Evidence referenced by path must live under
	// it, and uploads are written to <Root>/.fcouncil/evidence.
	Root string

	// MaxUploadBytes caps multipart uploads. Zero means no cap beyond the
	// service's own validation.
	MaxUploadBytes int64

	Version string
	Logger  *slog.Logger

	// PingInterval is how often stream connections are pinged.
	PingInterval time.Duration

	// RunLimiter throttles POST /api/run per client IP. Nil disables it.
	RunLimiter *ratelimit.Limiter
}

// Server serves the council API.
type Server struct {
	svc          *council.Service
	root         string
	evidenceDir  string
	evidenceDirs *pathutil.AllowList
	maxUpload    int64
	version      string
	logger       *slog.Logger
	pingInterval time.Duration
	runLimiter   *ratelimit.Limiter
	upgrader     websocket.Upgrader
	echo         *echo.Echo
}

// NewServer creates a server with every route registered.
func NewServer(svc *council.Service, opts Options) *Server {
	s := &Server{
		svc:          svc,
		root:         opts.Root,
		evidenceDir:  store.EvidenceDir(opts.Root),
		evidenceDirs: pathutil.NewAllowList(pathutil.AllowedEvidenceDirs(opts.Root)...),
		maxUpload:    opts.MaxUploadBytes,
		version:      opts.Version,
		logger:       opts.Logger,
		pingInterval: opts.PingInterval,
		runLimiter:   opts.RunLimiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 30 * time.Second
	}
	if s.version == "" {
		s.version = "dev"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	s.echo = e
	s.RegisterRoutes(e)
	return s
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// RegisterRoutes registers routes with the echo server.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	var limit []echo.MiddlewareFunc
	if s.runLimiter != nil {
		limit = append(limit, rateLimit(s.runLimiter))
	}

	e.GET("/health", s.Health)
	e.GET("/api/catalog", s.GetCatalog)

	e.GET("/api/run", s.GetRun)
	e.POST("/api/run", s.StartRun, limit...)
	e.DELETE("/api/run", s.ResetRun)
	e.GET("/api/run/stream", s.StreamRun)

	e.GET("/api/reports", s.ListReports)
	e.DELETE("/api/reports", s.ClearReports)
	e.GET("/api/reports/current", s.GetCurrentReport)
	e.GET("/api/reports/:id", s.GetReport)
	e.DELETE("/api/reports/:id", s.DeleteReport)
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("council server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// rateLimit rejects requests once the client's bucket is empty.
func rateLimit(l *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				return errorJSON(c, http.StatusTooManyRequests, "too many runs started, try again later")
			}
			return next(c)
		}
	}
}

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}
