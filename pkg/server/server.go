// Package server provides the normative HTTP surface of §6: run/cancel a
// flow, read its run status and node schema, and import a flow file.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/flowfile/internal/config"
	"github.com/smilemakc/flowfile/internal/infrastructure/logger"
	"github.com/smilemakc/flowfile/pkg/fingerprint"
	"github.com/smilemakc/flowfile/pkg/scheduler"
)

// Server is the embeddable HTTP server around the core execution engine.
type Server struct {
	config *config.Config
	logger *logger.Logger
	router *gin.Engine

	httpServer *http.Server

	flows   *FlowRegistry
	runner  *scheduler.Runner
	cleanup func()
}

// Option configures a Server before it is built by New.
type Option func(*Server) error

// WithConfig sets the server configuration, skipping config.Load.
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) error {
		s.config = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) error {
		s.logger = l
		return nil
	}
}

// New builds a Server, applying opts, loading configuration and wiring the
// dispatch backends and routes.
func New(opts ...Option) (*Server, error) {
	s := &Server{flows: NewFlowRegistry()}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("server: apply option: %w", err)
		}
	}

	if s.config == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("server: load configuration: %w", err)
		}
		s.config = cfg
	}

	if s.logger == nil {
		s.logger = logger.New(s.config.Logging)
		logger.SetDefault(s.logger)
	}

	dispatchers, cleanup, err := NewDefaultDispatchers(s.config)
	if err != nil {
		return nil, fmt.Errorf("server: build dispatchers: %w", err)
	}
	s.cleanup = cleanup

	cache := fingerprint.NewCache(s.config.Cache.Dir)
	mutex := fingerprint.NewMutex()
	s.runner = scheduler.NewRunner(dispatchers, cache, mutex)
	s.runner.RetryPolicy = scheduler.DefaultRetryPolicy()

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("server: setup routes: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Run starts the HTTP server and blocks until a shutdown signal arrives or
// the server errors out.
func (s *Server) Run() error {
	s.logger.Info("starting flowfile-core", "host", s.config.Server.Host, "port", s.config.Server.Port)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- s.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil

	case sig := <-shutdown:
		s.logger.Info("shutdown initiated", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(ctx)
	}
}

// Shutdown gracefully stops the HTTP server and releases the kernel
// coordinator's Docker client, if one was acquired.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("graceful shutdown failed", "error", err)
		if cerr := s.httpServer.Close(); cerr != nil {
			s.logger.Error("server close failed", "error", cerr)
		}
	}
	if s.cleanup != nil {
		s.cleanup()
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router, for tests or embedding callers that want
// to register additional routes.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Config returns the server's configuration.
func (s *Server) Config() *config.Config {
	return s.config
}
