package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nsridhar76/go-orderrelay/internal/cache"
	"github.com/nsridhar76/go-orderrelay/internal/config"
	"github.com/nsridhar76/go-orderrelay/internal/delivery"
	"github.com/nsridhar76/go-orderrelay/internal/health"
	"github.com/nsridhar76/go-orderrelay/internal/logging"
	"github.com/nsridhar76/go-orderrelay/internal/messaging/kafka"
	"github.com/nsridhar76/go-orderrelay/internal/metrics"
	"github.com/nsridhar76/go-orderrelay/internal/repository/postgres"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Init("delivery-worker", cfg.LogLevel, cfg.AppEnv)
	if !cfg.KafkaEnabled() {
		return errors.New("KAFKA_BROKERS is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	m := metrics.New()

	var terms delivery.TermStore = postgres.NewDeliveryTermRepository(pool)
	if cfg.RedisURL != "" {
		client, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		terms = cache.NewGuard(terms, client, cfg.DeliveryCacheTTL, m)
		logger.Info("delivery cache enabled", "ttl", cfg.DeliveryCacheTTL)
	}
	handler := delivery.NewHandler(postgres.NewOrderRepository(pool), terms)

	deadLetter := kafka.NewProducer(kafka.NewWriter(cfg.KafkaBrokers), kafka.ProducerConfig{
		Name:             "dead-letter",
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
		Retries:          cfg.PublishRetries,
		Backoff:          cfg.PublishBackoff,
		Timeout:          cfg.PublishTimeout,
	}, m, logger)
	defer deadLetter.Close()

	consumer := kafka.NewConsumer(
		kafka.NewReader(cfg.KafkaBrokers, cfg.ConsumerGroup, []string{cfg.TopicOrderCreated}),
		handler,
		deadLetter,
		kafka.ConsumerConfig{
			Concurrency:     cfg.ConsumerConcurrency,
			Retries:         cfg.ConsumerRetries,
			RetryBackoff:    cfg.ConsumerRetryBackoff,
			DeadLetterTopic: cfg.TopicDeadLetter,
		},
		m, logger,
	)
	defer consumer.Close()

	hs := grpchealth.NewServer()
	reporter := health.NewReporter(kafka.NewProbe(cfg.KafkaBrokers, cfg.HealthProbeTimeout), hs, health.ServiceKafka, cfg.HealthProbeInterval, logger)
	go reporter.Run(ctx)

	grpcSrv, err := serveGRPC(cfg.GRPCPort, hs, logger)
	if err != nil {
		return err
	}
	defer grpcSrv.GracefulStop()

	metricsSrv := serveMetrics(cfg.Port, m.Handler(), logger)
	defer shutdownHTTP(metricsSrv, logger)

	err = consumer.Run(ctx)
	hs.Shutdown()
	return err
}

func serveGRPC(port int, hs *grpchealth.Server, logger *slog.Logger) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen grpc: %w", err)
	}
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() {
		logger.Info("grpc health server started", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "error", err)
		}
	}()
	return srv, nil
}

func serveMetrics(port int, h http.Handler, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("metrics server forced to shutdown", "error", err)
	}
}
