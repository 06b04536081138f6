package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pgshortener/internal/handler"
	"pgshortener/internal/middleware"

	"github.com/klauspost/compress/gzhttp"
)

// Config holds server configuration.
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
	BaseURL         string

	// HealthCheck, if set, is consulted by GET /health; an error answers 503.
	HealthCheck func(ctx context.Context) error

	// Logger receives access logs and lifecycle messages. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Server represents the HTTP server.
type Server struct {
	cfg        Config
	httpServer *http.Server
	mux        *http.ServeMux
	handler    *handler.Handler
	logger     *slog.Logger
}

// New creates a new Server with the given configuration.
// Optional urlService can be passed to enable URL shortening endpoints.
func New(cfg Config, urlService ...handler.URLService) *Server {
	mux := http.NewServeMux()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var root http.Handler = gzhttp.GzipHandler(mux)
	root = middleware.Timing(root)
	root = middleware.AccessLog(logger)(root)
	root = middleware.RequestID(root)

	s := &Server{
		cfg:    cfg,
		mux:    mux,
		logger: logger,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      root,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
			ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
		},
	}

	// If URLService is provided, create handler
	if len(urlService) > 0 && urlService[0] != nil {
		s.handler = handler.New(urlService[0], cfg.BaseURL)
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// Register URL shortening routes if handler is available
	if s.handler != nil {
		s.mux.HandleFunc("POST /shorten", s.handler.Create)
		s.mux.HandleFunc("GET /shorten/{code}", s.handler.Get)
		s.mux.HandleFunc("PUT /shorten/{code}", s.handler.Update)
		s.mux.HandleFunc("DELETE /shorten/{code}", s.handler.Delete)
		s.mux.HandleFunc("GET /shorten/{code}/stats", s.handler.Stats)
		s.mux.HandleFunc("GET /s/{code}", s.handler.Redirect)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := handler.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if s.cfg.HealthCheck != nil {
		if err := s.cfg.HealthCheck(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "health check failed", "error", err)
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server. This method blocks until the server is stopped.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// HandleFunc registers a handler function for the given pattern.
// This is useful for testing to add custom endpoints.
func (s *Server) HandleFunc(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

// Run starts the server and blocks until a shutdown signal is received.
// It handles SIGINT and SIGTERM for graceful shutdown.
// The provided context can also be used to trigger shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Channel for shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Channel for server errors
	errChan := make(chan error, 1)

	// Start server
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	s.logger.Info("server listening", "addr", s.httpServer.Addr)

	// Wait for shutdown signal, context cancellation, or server error
	select {
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		// Context cancelled
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	return s.Shutdown(shutdownCtx)
}
