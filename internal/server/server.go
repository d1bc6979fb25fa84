// Package server provides the HTTP API for browsing and triggering reports.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/finreport/internal/analysis"
	"github.com/aristath/finreport/internal/config"
	"github.com/aristath/finreport/internal/database"
	"github.com/aristath/finreport/internal/events"
	"github.com/aristath/finreport/internal/modules/reports"
)

// ReportReader reads stored reports
type ReportReader interface {
	Get(ctx context.Context, runID string) (*analysis.Report, error)
	Latest(ctx context.Context, portfolio string) (*analysis.Report, error)
	List(ctx context.Context, portfolio string) ([]reports.Meta, error)
}

// ReportRunner runs analyses on demand
type ReportRunner interface {
	Portfolios() ([]config.PortfolioConfig, error)
	RunPortfolio(ctx context.Context, name string) (*analysis.Report, error)
}

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	DataDir   string
	Reports   ReportReader
	Runner    ReportRunner
	Bus       *events.Bus
	Databases map[string]*database.DB
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	reports   ReportReader
	runner    ReportRunner
	bus       *events.Bus
	system    *SystemHandlers
	devMode   bool
	startedAt time.Time

	// Background runs triggered over the API
	runCtx    context.Context
	cancelRun context.CancelFunc
	runs      sync.WaitGroup
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		reports:   cfg.Reports,
		runner:    cfg.Runner,
		bus:       cfg.Bus,
		devMode:   cfg.DevMode,
		startedAt: time.Now(),
		runCtx:    runCtx,
		cancelRun: cancel,
	}
	s.system = NewSystemHandlers(cfg.DataDir, cfg.Databases, s.startedAt, cfg.Log)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	// No WriteTimeout: event streams stay open
	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if devMode {
		s.log.Info().Msg("Development mode enabled")
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.system.HandleSystemStatus)
			r.Get("/disk", s.system.HandleDiskUsage)
		})

		r.Route("/portfolios", func(r chi.Router) {
			r.Get("/", s.handleListPortfolios)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/reports", s.handleListReports)
				r.Get("/reports/latest", s.handleLatestReport)
				r.Post("/runs", s.handleTriggerRun)
			})
		})

		r.Get("/reports", s.handleListReports)
		r.Get("/reports/{runID}", s.handleGetReport)

		if s.bus != nil {
			r.Get("/events/stream", NewEventsStreamHandler(s.bus, s.log).ServeHTTP)
			r.Get("/events/ws", NewEventsSocketHandler(s.bus, s.devMode, s.log).ServeHTTP)
		}
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, cancels triggered runs and waits for them
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	err := s.server.Shutdown(ctx)
	s.cancelRun()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("Triggered runs still in progress at shutdown")
	}
	return err
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
