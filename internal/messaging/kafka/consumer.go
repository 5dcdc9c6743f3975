package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/nsridhar76/go-orderrelay/internal/delivery"
	"github.com/nsridhar76/go-orderrelay/internal/domain"
	"github.com/nsridhar76/go-orderrelay/internal/logging"
	"github.com/nsridhar76/go-orderrelay/internal/messaging"
	"github.com/nsridhar76/go-orderrelay/internal/metrics"
)

const commitTimeout = 5 * time.Second

type reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type orderProcessor interface {
	Process(ctx context.Context, orderID int64, correlationID string) (delivery.Outcome, error)
}

// ConsumerConfig tunes the worker loop.
type ConsumerConfig struct {
	Concurrency     int
	Retries         int
	RetryBackoff    time.Duration
	DeadLetterTopic string
}

// Consumer feeds order events from a consumer group into the delivery-term
// handler. A message is settled once it is processed, found to be a
// duplicate, or dead-lettered. A partition is committed only through its
// earliest unsettled message.
type Consumer struct {
	reader     reader
	offsets    *offsetTracker
	processor  orderProcessor
	deadLetter messaging.Sender
	cfg        ConsumerConfig
	metrics    *metrics.Relay
	logger     *slog.Logger
}

// NewReader builds the consumer-group reader used in production.
func NewReader(brokers []string, groupID string, topics []string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
}

func NewConsumer(r reader, p orderProcessor, deadLetter messaging.Sender, cfg ConsumerConfig, m *metrics.Relay, logger *slog.Logger) *Consumer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Consumer{
		reader:     r,
		offsets:    newOffsetTracker(),
		processor:  p,
		deadLetter: deadLetter,
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
	}
}

// Run fetches until ctx is cancelled or the reader is closed. In-flight
// messages are allowed to finish before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started", "concurrency", c.cfg.Concurrency)

	sem := make(chan struct{}, c.cfg.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("consumer stopped")
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			select {
			case <-ctx.Done():
				c.logger.Info("consumer stopped")
				return nil
			case <-time.After(c.cfg.RetryBackoff):
			}
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			c.logger.Info("consumer stopped")
			return nil
		}
		c.offsets.track(m)
		wg.Add(1)
		go func(m kafkago.Message) {
			defer wg.Done()
			defer func() { <-sem }()
			if !c.handle(ctx, m) {
				return
			}
			if through, ok := c.offsets.settle(m); ok {
				c.commit(ctx, through)
			}
		}(m)
	}
}

func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("Consumer.Close: %w", err)
	}
	return nil
}

// handle reports whether m was settled. An unsettled message holds back its
// partition's commit position so it is redelivered after a restart.
func (c *Consumer) handle(ctx context.Context, m kafkago.Message) bool {
	logger := c.logger.With("topic", m.Topic, "partition", m.Partition, "offset", m.Offset)
	ctx = logging.WithLogger(ctx, logger)

	var payload messaging.OrderCreatedPayload
	if err := json.Unmarshal(m.Value, &payload); err != nil {
		logger.Error("malformed order event", "error", err)
		return c.deadLetterUntilSent(ctx, m, fmt.Errorf("decode: %w", err))
	}

	outcome, err := c.process(ctx, payload.OrderID, headerValue(m, messaging.HeaderCorrelationID))
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		logger.Error("failed to process order event", "order_id", payload.OrderID, "error", err)
		return c.deadLetterUntilSent(ctx, m, err)
	}

	c.metrics.ConsumerResults.WithLabelValues(m.Topic, outcome.String()).Inc()
	return true
}

// process retries everything except invalid input, which no retry can fix.
func (c *Consumer) process(ctx context.Context, orderID int64, correlationID string) (delivery.Outcome, error) {
	var outcome delivery.Outcome
	op := func() error {
		var err error
		outcome, err = c.processor.Process(ctx, orderID, correlationID)
		if errors.Is(err, domain.ErrInvalidOrderID) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.Retries)), ctx)

	notify := func(err error, wait time.Duration) {
		logging.FromContext(ctx).Warn("retrying order event", "order_id", orderID, "backoff", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return 0, err
	}
	return outcome, nil
}

// deadLetterUntilSent retries the dead-letter send until it is accepted or
// ctx is done.
func (c *Consumer) deadLetterUntilSent(ctx context.Context, m kafkago.Message, cause error) bool {
	if c.cfg.DeadLetterTopic == "" || c.deadLetter == nil {
		c.metrics.ConsumerResults.WithLabelValues(m.Topic, "dropped").Inc()
		logging.FromContext(ctx).Warn("dropping unprocessable message, no dead-letter topic configured")
		return true
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryBackoff
	b.MaxElapsedTime = 0
	notify := func(err error, wait time.Duration) {
		logging.FromContext(ctx).Error("failed to dead-letter message, retrying",
			"dead_letter_topic", c.cfg.DeadLetterTopic,
			"backoff", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotify(func() error {
		if !c.sendToDeadLetter(ctx, m, cause) {
			return errDeadLetterRejected
		}
		return nil
	}, backoff.WithContext(b, ctx), notify)
	if err != nil {
		return false
	}
	c.metrics.ConsumerResults.WithLabelValues(m.Topic, "dead_lettered").Inc()
	return true
}

var errDeadLetterRejected = errors.New("dead-letter send not accepted")

func (c *Consumer) sendToDeadLetter(ctx context.Context, m kafkago.Message, cause error) bool {
	headers := make(map[string][]byte, len(m.Headers)+1)
	for _, h := range m.Headers {
		headers[h.Key] = h.Value
	}
	headers[messaging.HeaderError] = []byte(cause.Error())

	return c.deadLetter.TrySend(ctx, messaging.Message{
		Topic:   c.cfg.DeadLetterTopic,
		Key:     string(m.Key),
		Payload: m.Value,
		Headers: headers,
	})
}

// commit outlives cancellation of ctx so settled work is recorded at
// shutdown. Run waits for it before returning.
func (c *Consumer) commit(ctx context.Context, m kafkago.Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		logging.FromContext(ctx).Error("failed to commit message", "error", err)
	}
}

func headerValue(m kafkago.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
