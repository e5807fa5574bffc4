package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/aquaproc/internal/config"
	"github.com/me/aquaproc/internal/metrics"
	"github.com/me/aquaproc/internal/process"
	"github.com/me/aquaproc/internal/scheduler"
	"github.com/me/aquaproc/internal/store"
)

// Version is reported by the health and discovery endpoints.
const Version = "0.3.0"

// Server is the aquaproc REST API server.
type Server struct {
	router      chi.Router
	logger      *slog.Logger
	config      config.ServerConfig
	startTime   time.Time
	catalog     *process.Catalog
	store       store.Store
	dispatcher  *scheduler.Dispatcher
	metrics     *metrics.Metrics // optional; enables /metrics
	downloadDir string           // optional; enables /download/*
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithMetrics exposes m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithDownloads serves the job output tree under dir on /download/*.
func WithDownloads(dir string) Option {
	return func(s *Server) {
		s.downloadDir = dir
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, cat *process.Catalog, st store.Store, d *scheduler.Dispatcher, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		logger:     logger.With("component", "server"),
		config:     cfg,
		startTime:  time.Now(),
		catalog:    cat,
		store:      st,
		dispatcher: d,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	if s.downloadDir != "" {
		r.Handle("/download/*", downloadHandler(s.downloadDir))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/processes", func(r chi.Router) {
			r.Get("/", s.handleListProcesses)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetProcess)
				r.Post("/execution", s.handleExecute)
			})
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Delete("/", s.handleDismissJob)
				r.Get("/results", s.handleGetJobResults)
				r.Get("/logs", s.handleGetJobLogs)
			})
		})
	})
}
