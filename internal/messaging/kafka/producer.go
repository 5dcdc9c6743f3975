// Package kafka is the Kafka side of the relay: a producer guarded by a
// circuit breaker, the consumer worker loop, and the connectivity probe.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	"github.com/nsridhar76/go-orderrelay/internal/messaging"
	"github.com/nsridhar76/go-orderrelay/internal/metrics"
)

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// ProducerConfig tunes the retry and breaker policy of a Producer.
type ProducerConfig struct {
	Name             string
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
	Retries          int
	Backoff          time.Duration
	Timeout          time.Duration
}

// Producer sends messages through a single broker connection. It owns the
// circuit breaker for that connection; share one instance between every
// publisher that uses the connection.
type Producer struct {
	writer  writer
	breaker *gobreaker.TwoStepCircuitBreaker
	cfg     ProducerConfig
	metrics *metrics.Relay
	logger  *slog.Logger
}

// NewWriter builds the kafka-go writer used in production. Internal retries
// are disabled so that the Producer's policy is the only one in effect.
func NewWriter(brokers []string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		MaxAttempts:            1,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

func NewProducer(w writer, cfg ProducerConfig, m *metrics.Relay, logger *slog.Logger) *Producer {
	if cfg.Name == "" {
		cfg.Name = "kafka"
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	p := &Producer{writer: w, cfg: cfg, metrics: m, logger: logger}
	p.breaker = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			m.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	m.BreakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))
	return p
}

// Send delivers msg or returns an error naming the topic. The error wraps
// messaging.ErrCircuitOpen when the breaker rejected the attempt and
// messaging.ErrBrokerUnavailable otherwise.
func (p *Producer) Send(ctx context.Context, msg messaging.Message) error {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	km := toKafkaMessage(msg)
	attempt := 0
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		done, err := p.breaker.Allow()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %w", messaging.ErrCircuitOpen, err))
		}
		probing := p.breaker.State() == gobreaker.StateHalfOpen
		attempt++

		err = p.writer.WriteMessages(ctx, km)
		switch {
		case err == nil:
			done(true)
			return nil
		case errors.Is(ctx.Err(), context.Canceled):
			// Cancellation says nothing about the broker. Counts are left alone;
			// a half-open probe slot is released as a failure.
			if probing {
				done(false)
			}
			return backoff.Permanent(err)
		default:
			done(false)
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
	}
	notify := func(err error, wait time.Duration) {
		p.metrics.PublishRetries.WithLabelValues(msg.Topic).Inc()
		p.logger.Warn("retrying publish",
			"topic", msg.Topic,
			"attempt", attempt+1,
			"backoff", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotify(op, p.retryPolicy(ctx), notify)
	switch {
	case err == nil:
		p.metrics.Published.WithLabelValues(msg.Topic, "ok").Inc()
		return nil
	case errors.Is(err, messaging.ErrCircuitOpen):
		p.metrics.Published.WithLabelValues(msg.Topic, "rejected").Inc()
		return fmt.Errorf("send to topic %q: %w", msg.Topic, err)
	default:
		p.metrics.Published.WithLabelValues(msg.Topic, "failed").Inc()
		return fmt.Errorf("send to topic %q after %d attempt(s): %w: %w", msg.Topic, attempt, messaging.ErrBrokerUnavailable, err)
	}
}

// TrySend is the best-effort variant of Send. Reporting a false result is
// left to the caller.
func (p *Producer) TrySend(ctx context.Context, msg messaging.Message) bool {
	if err := p.Send(ctx, msg); err != nil {
		p.logger.Debug("best-effort send failed", "topic", msg.Topic, "error", err)
		return false
	}
	return true
}

// State reports the breaker state.
func (p *Producer) State() gobreaker.State {
	return p.breaker.State()
}

// Counts reports the breaker counters for the current generation.
func (p *Producer) Counts() gobreaker.Counts {
	return p.breaker.Counts()
}

func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("Producer.Close: %w", err)
	}
	return nil
}

func (p *Producer) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.Backoff
	b.MaxInterval = 8 * p.cfg.Backoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.cfg.Retries)), ctx)
}

func toKafkaMessage(msg messaging.Message) kafkago.Message {
	km := kafkago.Message{
		Topic: msg.Topic,
		Value: msg.Payload,
		Time:  time.Now().UTC(),
	}
	if msg.Key != "" {
		km.Key = []byte(msg.Key)
	}
	if len(msg.Headers) > 0 {
		keys := make([]string, 0, len(msg.Headers))
		for k := range msg.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		km.Headers = make([]kafkago.Header, 0, len(keys))
		for _, k := range keys {
			km.Headers = append(km.Headers, kafkago.Header{Key: k, Value: msg.Headers[k]})
		}
	}
	return km
}
