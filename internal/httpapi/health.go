package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/nsridhar76/go-orderrelay/internal/health"
	"github.com/nsridhar76/go-orderrelay/internal/logging"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db     pinger
	broker health.Checker
}

// NewHealthHandler builds the liveness and readiness endpoints. broker may be
// nil when no Kafka brokers are configured.
func NewHealthHandler(db pinger, broker health.Checker) *HealthHandler {
	return &HealthHandler{db: db, broker: broker}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())
	checks := map[string]string{}
	httpStatus := http.StatusOK

	checks["database"] = "ok"
	if err := h.db.Ping(r.Context()); err != nil {
		logger.Warn("readiness check failed: database unreachable", "error", err)
		checks["database"] = "down"
		httpStatus = http.StatusServiceUnavailable
	}

	if h.broker != nil {
		res := h.broker.Check(r.Context())
		checks["kafka"] = res.Status.String()
		if res.Status != health.StatusHealthy {
			logger.Warn("readiness check failed: kafka", "result", res.String())
			httpStatus = http.StatusServiceUnavailable
		}
	}

	overall := "ok"
	if httpStatus != http.StatusOK {
		overall = "down"
	}
	respondJSON(w, r, httpStatus, map[string]any{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}
