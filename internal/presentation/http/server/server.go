// Package server provides HTTP server initialization and management.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/application/container"
	"github.com/AtRiskMedia/tractstack-attribution/internal/presentation/http/routes"
	"github.com/AtRiskMedia/tractstack-attribution/pkg/config"
)

// Config holds the listener settings of the attribution API.
type Config struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	// WriteTimeout bounds each response. Websocket connections on the
	// conversion feed are hijacked and keep their own deadlines.
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
}

// ConfigFromEnv returns the settings loaded by pkg/config.
func ConfigFromEnv() Config {
	return Config{
		Port:              config.Port,
		ReadTimeout:       config.ServerReadTimeout,
		ReadHeaderTimeout: config.ServerReadHeaderTimeout,
		WriteTimeout:      config.ServerWriteTimeout,
		IdleTimeout:       config.ServerIdleTimeout,
		ShutdownTimeout:   config.ServerShutdownTimeout,
		MaxHeaderBytes:    config.ServerMaxHeaderBytes,
	}
}

// Server wraps the HTTP server with configuration and dependency injection
type Server struct {
	httpServer      *http.Server
	container       *container.Container
	shutdownTimeout time.Duration
}

// New creates the HTTP server for the attribution routes
func New(cfg Config, container *container.Container) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           routes.SetupRoutes(container),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
		container:       container,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	s.container.Logger.System().Info("Starting HTTP server",
		"address", s.httpServer.Addr,
		"readTimeout", s.httpServer.ReadTimeout,
		"writeTimeout", s.httpServer.WriteTimeout,
		"idleTimeout", s.httpServer.IdleTimeout)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop drains in-flight requests, waiting at most the configured shutdown
// timeout. A zero timeout waits until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.container.Logger.Shutdown().Info("Shutting down HTTP server...", "timeout", s.shutdownTimeout)
	if s.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}
