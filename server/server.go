package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/RyanBlaney/sonido-analyzer/analyzer"
	"github.com/RyanBlaney/sonido-analyzer/config"
	"github.com/RyanBlaney/sonido-analyzer/logging"
)

// Server exposes the analyzer over HTTP
type Server struct {
	config  config.ServerConfig
	engine  *analyzer.Engine
	decoder analyzer.Decoder
	router  *chi.Mux
	logger  logging.Logger
}

// New creates a new server
func New(cfg config.ServerConfig, engine *analyzer.Engine, decoder analyzer.Decoder, logger logging.Logger) *Server {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}

	s := &Server{
		config:  cfg,
		engine:  engine,
		decoder: decoder,
		router:  chi.NewRouter(),
		logger: logger.WithFields(logging.Fields{
			"component": "server",
		}),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/audio_analyzer/analyze", s.handleAnalyze)
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", logging.Fields{"addr": s.config.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error(err, "Shutdown error")
		return err
	}
	return <-errCh
}
