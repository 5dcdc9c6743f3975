package health

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type stubChecker struct {
	mu     sync.Mutex
	result Result
	calls  int
}

func (c *stubChecker) Check(context.Context) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.result
}

func (c *stubChecker) set(r Result) {
	c.mu.Lock()
	c.result = r
	c.mu.Unlock()
}

func (c *stubChecker) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func servingStatus(t *testing.T, hs *grpchealth.Server) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceKafka})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "healthy: 3 broker(s)", Healthy("3 broker(s)").String())
	assert.Equal(t, "unhealthy: dial: refused", Unhealthy("dial", errors.New("refused")).String())
	assert.Equal(t, "unknown", Status(0).String())
}

func TestServingStatus(t *testing.T) {
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, ServingStatus(StatusHealthy))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, ServingStatus(StatusUnhealthy))
	assert.Equal(t, healthpb.HealthCheckResponse_UNKNOWN, ServingStatus(StatusUnknown))
}

func TestReporter_StartsUnknown(t *testing.T) {
	hs := grpchealth.NewServer()
	NewReporter(&stubChecker{}, hs, ServiceKafka, time.Second, slog.New(slog.DiscardHandler))
	assert.Equal(t, healthpb.HealthCheckResponse_UNKNOWN, servingStatus(t, hs))
}

func TestReporter_MirrorsResult(t *testing.T) {
	hs := grpchealth.NewServer()
	checker := &stubChecker{result: Healthy("1 broker(s)")}
	r := NewReporter(checker, hs, ServiceKafka, time.Second, slog.New(slog.DiscardHandler))

	r.Report(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, hs))

	checker.set(Unhealthy("no brokers", nil))
	res := r.Report(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, hs))
}

func TestReporter_RunChecksPeriodically(t *testing.T) {
	hs := grpchealth.NewServer()
	checker := &stubChecker{result: Healthy("ok")}
	r := NewReporter(checker, hs, ServiceKafka, 10*time.Millisecond, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return checker.callCount() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, hs))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reporter did not stop")
	}
}
