// Package api provides the HTTP API for managing language alternatives,
// their library mirrors and user language assignments.
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

	"github.com/listenupapp/listenup-mirrors/internal/ratelimit"
	"github.com/listenupapp/listenup-mirrors/internal/service"
	"github.com/listenupapp/listenup-mirrors/internal/store"
	"github.com/listenupapp/listenup-mirrors/internal/validation"
)

// Options configures the HTTP surface.
type Options struct {
	// CORSOrigins lists allowed browser origins. Empty disables CORS headers.
	CORSOrigins []string
	// TriggerRatePerMinute bounds sync, cleanup and reconcile requests per
	// client and target.
	TriggerRatePerMinute int
	// Events, when set, is served at GET /api/v1/events.
	Events http.Handler
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store        *store.Store
	alternatives *service.AlternativeService
	router       *chi.Mux
	api          huma.API
	validator    *validation.Validator
	triggers     *ratelimit.KeyedRateLimiter
	logger       *slog.Logger
}

// NewServer creates the HTTP server with all routes configured.
func NewServer(st *store.Store, alternatives *service.AlternativeService, opts Options, logger *slog.Logger) *Server {
	if opts.TriggerRatePerMinute < 1 {
		opts.TriggerRatePerMinute = 6
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"Retry-After", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	humaConfig := huma.DefaultConfig("ListenUp Mirrors API", "1.0.0")
	humaConfig.Info.Description = "Language alternatives backed by hardlinked library mirrors"
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	api := humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s := &Server{
		store:        st,
		alternatives: alternatives,
		router:       router,
		api:          api,
		validator:    validation.New(),
		triggers:     ratelimit.PerInterval(opts.TriggerRatePerMinute, time.Minute),
		logger:       logger,
	}

	s.registerHealthRoutes()
	s.registerAlternativeRoutes()
	s.registerMirrorRoutes()
	s.registerSettingsRoutes()
	s.registerLibraryRoutes()
	s.registerUserRoutes()
	if opts.Events != nil {
		router.Method(http.MethodGet, "/api/v1/events", opts.Events)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases the rate limiter.
func (s *Server) Close() {
	s.triggers.Stop()
}

// requestLogger logs one line per request with slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
