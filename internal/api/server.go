// Package api provides the HTTP API server and handlers for the converter.
package api

import (
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bpm4b/bpm4b/internal/config"
	"github.com/bpm4b/bpm4b/internal/logger"
	"github.com/bpm4b/bpm4b/internal/ratelimit"
	"github.com/bpm4b/bpm4b/internal/scratch"
	"github.com/bpm4b/bpm4b/internal/service"
)

// APIVersion is reported in the OpenAPI document.
const APIVersion = "1.0.0"

// Server holds dependencies for HTTP handlers.
type Server struct {
	convert *service.ConvertService
	scratch *scratch.Manager
	limiter *ratelimit.KeyedRateLimiter
	cfg     *config.Config
	router  *chi.Mux
	api     huma.API
	logger  *logger.Logger
}

// NewServer creates a new HTTP server with all routes configured. A nil
// limiter disables rate limiting on the conversion endpoint.
func NewServer(
	convert *service.ConvertService,
	scratchManager *scratch.Manager,
	limiter *ratelimit.KeyedRateLimiter,
	cfg *config.Config,
	log *logger.Logger,
) *Server {
	if log == nil {
		log = logger.Discard()
	}

	router := chi.NewRouter()

	s := &Server{
		convert: convert,
		scratch: scratchManager,
		limiter: limiter,
		cfg:     cfg,
		router:  router,
		logger:  log,
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("bpm4b API", APIVersion)
	humaConfig.Info.Description = "Convert MP3 audio into chaptered M4B audiobooks."
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(router, humaConfig)

	RegisterErrorHandler()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, mainly for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	convert := http.HandlerFunc(s.handleConvert)
	if s.limiter != nil {
		s.router.With(RateLimitMiddleware(s.limiter, s.logger)).Post("/api/mp3-to-m4b", convert)
	} else {
		s.router.Post("/api/mp3-to-m4b", convert)
	}

	s.registerHealthRoutes()
	s.registerChapterRoutes()
}

// NewHTTPServer wraps handler in an http.Server using the configured
// address and timeouts.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
