package health

import (
	"context"
	"log/slog"
	"time"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceKafka is the gRPC health service name the broker probe reports under.
const ServiceKafka = "kafka"

// DefaultInterval applies when NewReporter is given a non-positive interval.
const DefaultInterval = 15 * time.Second

// Reporter runs a Checker on an interval and mirrors each result into a gRPC
// health server.
type Reporter struct {
	checker  Checker
	server   *grpchealth.Server
	service  string
	interval time.Duration
	logger   *slog.Logger
}

func NewReporter(checker Checker, server *grpchealth.Server, service string, interval time.Duration, logger *slog.Logger) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	server.SetServingStatus(service, healthpb.HealthCheckResponse_UNKNOWN)
	return &Reporter{
		checker:  checker,
		server:   server,
		service:  service,
		interval: interval,
		logger:   logger,
	}
}

// Run reports once immediately, then on every tick until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Report(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Report(ctx)
		}
	}
}

// Report performs a single check and publishes the result.
func (r *Reporter) Report(ctx context.Context) Result {
	res := r.checker.Check(ctx)
	if ctx.Err() != nil {
		return res
	}
	r.server.SetServingStatus(r.service, ServingStatus(res.Status))
	if res.Status != StatusHealthy {
		r.logger.Warn("health check failed", "service", r.service, "result", res.String())
	}
	return res
}

// ServingStatus maps a Status to the gRPC health tri-state.
func ServingStatus(s Status) healthpb.HealthCheckResponse_ServingStatus {
	switch s {
	case StatusHealthy:
		return healthpb.HealthCheckResponse_SERVING
	case StatusUnhealthy:
		return healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return healthpb.HealthCheckResponse_UNKNOWN
	}
}
