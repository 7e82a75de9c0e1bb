// Package server exposes the read-only operational API: health, pipeline
// status, and token mute controls for the Telegram sink.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/premarket-labs/spreadbot/internal/notify"
)

// Muter mutes and unmutes alert delivery per token. Implemented by the
// Telegram sink; nil when Telegram is disabled.
type Muter interface {
	Mute(token string) bool
	Unmute(token string) bool
	MutedTokens() []string
}

// Options configures the API server.
type Options struct {
	Addr      string
	Recorder  *notify.Recorder
	Muter     Muter
	Producers []string
	Engines   []string

	// RatePerSecond caps requests per client IP. Zero disables limiting.
	RatePerSecond float64
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New registers all routes and wires the middleware chain.
func New(opts Options, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	h := &handlers{
		recorder:  opts.Recorder,
		muter:     opts.Muter,
		producers: opts.Producers,
		engines:   opts.Engines,
		started:   time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.health)
	mux.HandleFunc("GET /api/status", h.status)
	mux.HandleFunc("POST /api/mute/{token}", h.mute)
	mux.HandleFunc("DELETE /api/mute/{token}", h.unmute)

	var handler http.Handler = mux
	handler = rateLimit(opts.RatePerSecond)(handler)
	handler = logging(logger)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
