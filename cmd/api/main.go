package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nsridhar76/go-orderrelay/internal/config"
	"github.com/nsridhar76/go-orderrelay/internal/domain"
	"github.com/nsridhar76/go-orderrelay/internal/health"
	"github.com/nsridhar76/go-orderrelay/internal/httpapi"
	"github.com/nsridhar76/go-orderrelay/internal/logging"
	"github.com/nsridhar76/go-orderrelay/internal/messaging"
	"github.com/nsridhar76/go-orderrelay/internal/messaging/kafka"
	"github.com/nsridhar76/go-orderrelay/internal/messaging/noop"
	"github.com/nsridhar76/go-orderrelay/internal/metrics"
	"github.com/nsridhar76/go-orderrelay/internal/order"
	"github.com/nsridhar76/go-orderrelay/internal/repository/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Init("order-api", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	cancel()
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	m := metrics.New()
	orders := postgres.NewOrderRepository(pool)
	terms := postgres.NewDeliveryTermRepository(pool)

	var (
		created  messaging.OrderPublisher = noop.Publisher[*domain.Order]{}
		approved messaging.OrderPublisher = noop.Publisher[*domain.Order]{}
		probe    health.Checker
	)
	if cfg.KafkaEnabled() {
		producer := kafka.NewProducer(kafka.NewWriter(cfg.KafkaBrokers), kafka.ProducerConfig{
			Name:             "order-events",
			BreakerThreshold: cfg.BreakerThreshold,
			BreakerCooldown:  cfg.BreakerCooldown,
			Retries:          cfg.PublishRetries,
			Backoff:          cfg.PublishBackoff,
			Timeout:          cfg.PublishTimeout,
		}, m, logger)
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Error("failed to close producer", "error", err)
			}
		}()

		created = messaging.NewPublisher(messaging.OrderCreatedRoute(cfg.TopicOrderCreated), producer)
		approved = messaging.NewPublisher(messaging.OrderApprovedRoute(cfg.TopicOrderApproved, messaging.OrderApprovedMapper{}), producer)
		probe = kafka.NewProbe(cfg.KafkaBrokers, cfg.HealthProbeTimeout)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers)
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events will not be published")
	}

	svc := order.NewService(orders, terms, created, approved)
	router := httpapi.NewRouter(
		httpapi.NewOrderHandler(svc),
		httpapi.NewHealthHandler(pool, probe),
		m.Handler(),
		logger,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serve(srv, logger)
}

func serve(srv *http.Server, logger *slog.Logger) {
	go func() {
		logger.Info("server started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}
	logger.Info("server stopped")
}
