// Package server wires the artifact repository's HTTP surface: a
// go-chi router dispatching to the Lifecycle Engine and Query Engine,
// request logging and size limiting, and the one place in this module
// that translates a pkg/apierr.Type into an HTTP status code.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/cuemby/relic/internal/identity"
	"github.com/cuemby/relic/pkg/lifecycle"
	"github.com/cuemby/relic/pkg/log"
	"github.com/cuemby/relic/pkg/metrics"
	"github.com/cuemby/relic/pkg/registry"
)

// Server holds every collaborator an HTTP handler needs.
type Server struct {
	engine    *lifecycle.Engine
	registry  *registry.Registry
	validate  *validator.Validate
	maxBodyMB int64
}

// New builds a Server. maxBodyMB caps every request body; 0 disables
// the cap.
func New(engine *lifecycle.Engine, reg *registry.Registry, maxBodyMB int64) *Server {
	return &Server{
		engine:    engine,
		registry:  reg,
		validate:  validator.New(),
		maxBodyMB: maxBodyMB,
	}
}

// Router builds the complete chi.Router for this server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if s.maxBodyMB > 0 {
		r.Use(s.limitBody)
	}

	r.Get("/health", metricsHealthHandler())
	r.Get("/live", metricsLivenessHandler())
	r.Handle("/metrics", metrics.Handler())

	r.Get("/schemas", s.handleListSchemas)
	r.Get("/schemas/{type}", s.handleGetSchema)

	r.Route("/artifacts/{type}", func(r chi.Router) {
		r.Post("/", s.handleCreateArtifact)
		r.Get("/", s.handleListArtifacts)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetArtifact)
			r.Patch("/", s.handlePatchArtifact)
			r.Delete("/", s.handleDeleteArtifact)

			r.Get("/tags", s.handleGetTags)
			r.Put("/tags", s.handleReplaceTags)
			r.Delete("/tags", s.handleDeleteTags)

			r.Get("/*", s.handleDownloadBlob)
			r.Put("/*", s.handleUploadBlob)
		})
	})

	return r
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	max := s.maxBodyMB << 20
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, max)
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request through a logger scoped to the
// resolved caller and request id instead of chi's own text logger, and
// feeds relic_http_request_duration_seconds/relic_http_requests_total.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		statusStr := http.StatusText(status)
		metrics.RequestsTotal.WithLabelValues(route, r.Method, statusStr).Inc()
		metrics.RequestDuration.WithLabelValues(route, r.Method, statusStr).Observe(time.Since(start).Seconds())

		caller := identity.FromRequest(r)
		log.WithCaller(caller).With().
			Str("component", "server").
			Str("request_id", middleware.GetReqID(r.Context())).
			Logger().Info().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func metricsHealthHandler() http.HandlerFunc  { return metrics.HealthHandler() }
func metricsLivenessHandler() http.HandlerFunc { return metrics.LivenessHandler() }
