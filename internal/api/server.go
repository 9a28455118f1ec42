// Package api serves the local HTTP API used by editors and the dashboard to
// manage providers and drive edit sessions.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/provswitch/internal/catalog"
	"github.com/allaspectsdev/provswitch/internal/live"
	"github.com/allaspectsdev/provswitch/internal/metrics"
	"github.com/allaspectsdev/provswitch/internal/session"
	"github.com/allaspectsdev/provswitch/internal/store"
	"github.com/allaspectsdev/provswitch/internal/tracing"
)

// Options wires the server to its collaborators. Store, Sessions and
// Catalog are required; a nil Switcher disables the switch route.
type Options struct {
	Store     *store.Store
	Sessions  *session.Manager
	Catalog   *catalog.Catalog
	Switcher  *live.Switcher
	Collector *metrics.Collector

	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodySize  int64
}

// Server is the local API server.
type Server struct {
	opts   Options
	router chi.Router
	server *http.Server
}

// NewServer builds the router. Call Start to begin serving.
func NewServer(opts Options) *Server {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 1 << 20
	}
	s := &Server{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(tracing.HTTPMiddleware)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/stats", s.handleStats)
	r.Get("/api/templates", s.handleTemplates)

	r.Route("/api/providers", func(r chi.Router) {
		r.Get("/", s.handleListProviders)
		r.Post("/", s.handleCreateProvider)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetProvider)
			r.Delete("/", s.handleDeleteProvider)
			r.Get("/history", s.handleProbeHistory)
			r.Post("/sessions", s.handleOpenSession)
			r.Post("/switch", s.handleSwitch)
		})
	})

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleOpenDraftSession)
		r.Route("/{sid}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleCloseSession)
			r.Post("/candidates", s.handleAddCandidate)
			r.Delete("/candidates", s.handleRemoveCandidate)
			r.Post("/speedtest", s.handleSpeedTest)
			r.Put("/fields", s.handleSetFields)
			r.Put("/blob", s.handleBlobChanged)
			r.Post("/commit", s.handleCommit)
		})
	})

	r.Get("/metrics", metrics.PrometheusHandler(opts.Collector))

	s.router = r
	s.server = &http.Server{
		Handler:      r,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on the configured address. It blocks until the
// server is shut down or an error occurs.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	log.Info().Str("addr", ln.Addr().String()).Msg("api server starting")
	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("api server shutting down")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.opts.Store.Ping(); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":   status,
		"sessions": s.opts.Sessions.Len(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Collector.Stats())
}

// corsMiddleware allows browser-based editors served from other local ports.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
