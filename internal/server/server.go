// Package server provides the read-only HTTP API for riskpilot.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/riskpilot/internal/database"
	"github.com/aristath/riskpilot/internal/market_regime"
	"github.com/aristath/riskpilot/internal/metrics"
	"github.com/aristath/riskpilot/internal/modules/allocation"
	"github.com/aristath/riskpilot/internal/modules/ledger"
	ledgerhandlers "github.com/aristath/riskpilot/internal/modules/ledger/handlers"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/aristath/riskpilot/internal/scheduler"
	"github.com/aristath/riskpilot/internal/services"
)

// Config holds server configuration
type Config struct {
	Log        zerolog.Logger
	LedgerDB   *database.DB
	Policy     *policy.Policy
	Allocation *allocation.Engine
	Validation *services.ValidationService
	Metrics    *metrics.Recorder
	Scheduler  *scheduler.Scheduler // optional
	Port       int
	DevMode    bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	ledgerHandlers *ledgerhandlers.Handler
	systemHandlers *SystemHandlers
	metrics        *metrics.Recorder
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	conn := cfg.LedgerDB.Conn()
	history := ledger.NewHistoryRepository(conn, cfg.Log)
	regimes := market_regime.NewRegimePersistence(conn, cfg.Log)

	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		port:   cfg.Port,
		ledgerHandlers: ledgerhandlers.NewHandler(
			history,
			ledger.NewObservationRepository(conn, cfg.Log),
			regimes,
			cfg.Policy,
			cfg.Log,
		),
		systemHandlers: NewSystemHandlers(
			cfg.LedgerDB,
			history,
			regimes,
			cfg.Allocation,
			cfg.Validation,
			cfg.Scheduler,
			cfg.Log,
		),
		metrics: cfg.Metrics,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router returns the HTTP handler, used by tests
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.systemHandlers.HandleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		s.ledgerHandlers.RegisterRoutes(r)
		r.Get("/targets", s.systemHandlers.HandleTargets)
		r.Get("/validation", s.systemHandlers.HandleValidation)
		r.Get("/jobs", s.systemHandlers.HandleJobs)
	})
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

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
