// Package httpserver provides the HTTP REST API for the publication index:
// roster maintenance, reconciliation triggers, job status and reports.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/yohaboy/research-tracker/internal/database"
	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/observability"
	"github.com/yohaboy/research-tracker/internal/reconcile"
	"github.com/yohaboy/research-tracker/internal/repository"
	"github.com/yohaboy/research-tracker/internal/roster"
)

type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// RosterService applies roster rows.
type RosterService interface {
	AddAll(ctx context.Context, rows []domain.AuthorInput) (*roster.Result, error)
}

// schedulerHealth is the optional readiness check of a JobScheduler.
type schedulerHealth interface {
	Health(ctx context.Context) error
}

// Dependencies are the collaborators behind the handlers.
type Dependencies struct {
	Groups       repository.GroupRepository
	Authors      repository.AuthorRepository
	Publications repository.PublicationRepository
	Reports      repository.ReportRepository
	Roster       RosterService
	Scheduler    reconcile.JobScheduler
	DB           HealthChecker
	Metrics      *observability.Metrics
}

// AuthConfig configures bearer-token checks on mutating routes.
type AuthConfig struct {
	Enabled bool
	Secret  string
	Issuer  string
}

type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// DefaultSince is used by reconcile triggers that carry no since date.
	DefaultSince time.Time
	// ReportTTL is how long a report response is cached; zero disables caching.
	ReportTTL time.Duration

	Auth AuthConfig
}

// Server serves the REST API. Report responses are cached for ReportTTL and
// dropped whenever a write lands.
type Server struct {
	router       chi.Router
	httpServer   *http.Server
	deps         Dependencies
	defaultSince time.Time
	reports      *cache.Cache
	auth         AuthConfig
	logger       zerolog.Logger
}

func NewServer(cfg Config, deps Dependencies, logger zerolog.Logger) *Server {
	s := &Server{
		deps:         deps,
		defaultSince: domain.DateOnly(cfg.DefaultSince),
		auth:         cfg.Auth,
		logger:       observability.WithComponent(logger, "http-server"),
	}
	if cfg.ReportTTL > 0 {
		s.reports = cache.New(cfg.ReportTTL, 2*cfg.ReportTTL)
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		correlationIDMiddleware,
		accessLogMiddleware(s.logger),
		jsonContentTypeMiddleware,
	)

	healthRoutes := func(r chi.Router) {
		r.Get("/healthz", s.healthHandler)
		r.Get("/readyz", s.readinessHandler)
	}
	healthRoutes(r)

	r.Route("/api/v1", func(r chi.Router) {
		healthRoutes(r)

		r.Get("/summary", s.getSummary)
		r.Get("/groups", s.listGroups)
		r.Get("/authors", s.listAuthors)
		r.Get("/authors/{authorID}", s.getAuthor)
		r.Get("/publications", s.listPublications)
		r.Get("/jobs/{jobID}", s.getJobStatus)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/new-publications", s.newPublicationsReport)
			r.Get("/keywords", s.keywordsReport)
			r.Get("/keywords-per-group", s.keywordsPerGroupReport)
			r.Get("/multi-group", s.multiGroupReport)
			r.Get("/group-author-multi-group", s.groupAuthorMultiGroupReport)
			r.Get("/papers-per-group", s.papersPerGroupReport)
		})

		r.Group(func(r chi.Router) {
			if s.auth.Enabled {
				r.Use(jwtAuthMiddleware(s.auth.Secret, s.auth.Issuer))
			}
			r.Post("/authors", s.addAuthors)
			r.Post("/authors/{authorID}/reconcile", s.reconcileAuthor)
			r.Post("/reconcile", s.reconcileAll)
			r.Delete("/data", s.resetData)
		})
	})

	return r
}

// Start blocks serving on Config.Address until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("http api: listen %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info().Str("address", ln.Addr().String()).Msg("listening")
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler is liveness: the process is up and the database answers.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	db := s.deps.DB.Health(r.Context())
	body := map[string]string{"status": "ok", "database": db.Status}
	code := http.StatusOK
	if !db.Healthy() {
		body["status"], body["error"] = "unhealthy", db.Error
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}

// readinessHandler additionally requires the job runner when the scheduler
// can report health.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ready"}
	if db := s.deps.DB.Health(r.Context()); !db.Healthy() {
		body["database"], body["error"] = db.Status, db.Error
	} else {
		body["database"] = db.Status
		checker, ok := s.deps.Scheduler.(schedulerHealth)
		if !ok || checker.Health(r.Context()) == nil {
			writeJSON(w, http.StatusOK, body)
			return
		}
		body["jobs"] = "unavailable"
	}
	body["status"] = "not_ready"
	writeJSON(w, http.StatusServiceUnavailable, body)
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already out; an encode failure has no one to report to.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
