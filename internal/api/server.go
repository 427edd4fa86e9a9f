package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/dgallion1/docoutline/internal/config"
	"github.com/dgallion1/docoutline/internal/ingest"
	"github.com/dgallion1/docoutline/internal/metrics"
	"github.com/dgallion1/docoutline/internal/pipeline"
)

// Server is the HTTP API server for docoutline.
type Server struct {
	router       chi.Router
	gateway      *ingest.Gateway
	orchestrator *pipeline.Orchestrator
	limiter      *IPRateLimiter
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(gw *ingest.Gateway, orch *pipeline.Orchestrator, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		gateway:      gw,
		orchestrator: orch,
		log:          log,
		cfg:          cfg,
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints.
		r.Get("/health", s.handleHealth)

		// Authenticated endpoints.
		r.Group(func(r chi.Router) {
			if s.cfg.APIKey != "" {
				r.Use(AuthMiddleware(s.cfg.APIKey, s.log))
			}

			r.Group(func(r chi.Router) {
				if s.limiter != nil {
					r.Use(RateLimit(s.limiter, s.log))
				}
				r.Post("/documents", s.handleIngest)
				r.Post("/documents/batch", s.handleBatchIngest)
			})
			r.Get("/jobs/{jobID}", s.handleJobStatus)
			r.Get("/stats/pipeline", s.handlePipelineStats)

			r.Get("/documents", s.handleListDocuments)
			r.Get("/documents/{docID}", s.handleGetDocument)
			r.Delete("/documents/{docID}", s.handleDeleteDocument)
			r.Get("/documents/{docID}/sections", s.handleGetTree)
			r.Get("/documents/{docID}/sections/{path}", s.handleGetSection)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.gateway.Health(r.Context()); err != nil {
		s.log.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
