// Package api provides the HTTP API server and handlers for the zine server.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tellmeastory/zine-server/internal/auth"
	"github.com/tellmeastory/zine-server/internal/metrics"
	"github.com/tellmeastory/zine-server/internal/search"
	"github.com/tellmeastory/zine-server/internal/sse"
	"github.com/tellmeastory/zine-server/internal/store"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// Server holds dependencies for HTTP handlers.
type Server struct {
	docs        store.DocumentStore
	services    *Services
	searchIndex *search.SearchIndex
	sseManager  *sse.Manager
	sseHandler  *sse.Handler
	verifier    auth.Verifier
	metrics     *metrics.Metrics
	router      *chi.Mux
	api         huma.API
	logger      *slog.Logger

	authRateLimiter       *RateLimiter
	submissionRateLimiter *RateLimiter
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(
	docs store.DocumentStore,
	services *Services,
	searchIndex *search.SearchIndex,
	sseManager *sse.Manager,
	verifier auth.Verifier,
	m *metrics.Metrics,
	corsOrigins []string,
	logger *slog.Logger,
) *Server {
	s := &Server{
		docs:                  docs,
		services:              services,
		searchIndex:           searchIndex,
		sseManager:            sseManager,
		verifier:              verifier,
		metrics:               m,
		router:                chi.NewRouter(),
		logger:                logger,
		authRateLimiter:       NewRateLimiter(20, time.Minute, 10),
		submissionRateLimiter: NewRateLimiter(10, time.Hour, 5),
	}
	if sseManager != nil {
		s.sseHandler = sse.NewHandler(sseManager, logger)
	}

	s.setupMiddleware(corsOrigins)

	humaConfig := huma.DefaultConfig("Zine Server API", Version)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO or Firebase ID token",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, used to dump the OpenAPI document.
func (s *Server) API() huma.API {
	return s.api
}

// Close stops the rate limiter sweepers.
func (s *Server) Close() {
	s.authRateLimiter.Stop()
	s.submissionRateLimiter.Stop()
}

// setupMiddleware configures middleware stack. Everything here must be in place
// before huma registers its first route on the router.
func (s *Server) setupMiddleware(corsOrigins []string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))
	if s.verifier != nil {
		s.router.Use(authMiddleware(s.verifier))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	// Plain chi routes: the event stream and multipart uploads.
	s.router.Get("/api/v1/events", s.handleEvents)
	s.router.Route("/api/v1/submissions", func(r chi.Router) {
		r.Use(RateLimitMiddleware(s.submissionRateLimiter, s.logger))
		r.Post("/zines", s.handleSubmitZine)
		r.Post("/issues", s.handleSubmitIssue)
	})

	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerCatalogRoutes()
	s.registerFollowRoutes()
	s.registerNotificationRoutes()
	s.registerIssueMarkRoutes()
	s.registerFanMailRoutes()
	s.registerPassportRoutes()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// bearerSecurity marks an operation as requiring a token in the OpenAPI document.
var bearerSecurity = []map[string][]string{{"bearer": {}}}
