// Package httpapi is the HTTP surface of the order service.
package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nsridhar76/go-orderrelay/internal/logging"
)

// NewRouter wires the order, health and metrics endpoints. metrics may be nil.
func NewRouter(orders *OrderHandler, health *HealthHandler, metrics http.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", orders.Create)
		r.Get("/{id}", orders.Get)
		r.Post("/{id}/approve", orders.Approve)
		r.Get("/{id}/delivery-term", orders.DeliveryTerm)
	})

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger scopes a logger with the request id into the context and logs
// each completed request. Probe and scrape paths are not logged.
func requestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := base.With("request_id", middleware.GetReqID(r.Context()))
			r = r.WithContext(logging.WithLogger(r.Context(), logger))

			if strings.HasPrefix(r.URL.Path, "/healthz") || strings.HasPrefix(r.URL.Path, "/readyz") || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
