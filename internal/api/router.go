package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Instrumenter wraps handlers with request metrics.
type Instrumenter interface {
	InstrumentHandler(next http.Handler) http.Handler
	Handler() http.Handler
}

// NewRouter configures all API routes. metrics may be nil.
func NewRouter(handler *Handler, metrics Instrumenter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)
	if metrics != nil {
		r.Use(metrics.InstrumentHandler)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Get("/healthz", handler.HealthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog/new", handler.GetNewSinceHandler)
		r.Get("/catalog/{window}", handler.GetWindowHandler)
		r.Get("/events/{id}", handler.GetEventByIDHandler)
		r.Get("/events/{id}/enrichment-logs", handler.GetEnrichmentLogsHandler)
	})

	return r
}

// corsMiddleware allows read-only cross-origin access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
