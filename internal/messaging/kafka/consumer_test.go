package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsridhar76/go-orderrelay/internal/delivery"
	"github.com/nsridhar76/go-orderrelay/internal/domain"
	"github.com/nsridhar76/go-orderrelay/internal/messaging"
	"github.com/nsridhar76/go-orderrelay/internal/metrics"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafkago.Message
	committed []kafkago.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

// committedThrough mirrors the group position kafka-go keeps per partition:
// the highest committed offset wins. -1 means nothing was committed.
func (r *fakeReader) committedThrough(partition int) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	through := int64(-1)
	for _, m := range r.committed {
		if m.Partition == partition && m.Offset > through {
			through = m.Offset
		}
	}
	return through
}

type call struct {
	orderID       int64
	correlationID string
}

type fakeProcessor struct {
	mu      sync.Mutex
	calls   []call
	created map[int64]bool
	err     map[int64]error
	block   map[int64]chan struct{}
}

func (p *fakeProcessor) Process(ctx context.Context, orderID int64, correlationID string) (delivery.Outcome, error) {
	p.mu.Lock()
	block := p.block[orderID]
	p.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call{orderID, correlationID})
	if orderID <= 0 {
		return 0, fmt.Errorf("Process: %w", domain.ErrInvalidOrderID)
	}
	if err := p.err[orderID]; err != nil {
		return 0, err
	}
	if p.created[orderID] {
		return delivery.OutcomeDuplicate, nil
	}
	p.created[orderID] = true
	return delivery.OutcomeCreated, nil
}

func (p *fakeProcessor) callsFor(orderID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.orderID == orderID {
			n++
		}
	}
	return n
}

type recordingSender struct {
	mu       sync.Mutex
	sent     []messaging.Message
	attempts int
	rejectN  int // reject the first rejectN sends; -1 rejects forever
}

func (s *recordingSender) TrySend(_ context.Context, msg messaging.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.rejectN < 0 || s.attempts <= s.rejectN {
		return false
	}
	s.sent = append(s.sent, msg)
	return true
}

func (s *recordingSender) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *recordingSender) messages() []messaging.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messaging.Message(nil), s.sent...)
}

func orderMessage(offset int64, value string, headers ...kafkago.Header) kafkago.Message {
	return kafkago.Message{
		Topic:   "order-created",
		Offset:  offset,
		Key:     []byte("k"),
		Value:   []byte(value),
		Headers: headers,
	}
}

func startConsumer(t *testing.T, r *fakeReader, p *fakeProcessor, dlq *recordingSender) (*metrics.Relay, func()) {
	t.Helper()
	m := metrics.New()
	c := NewConsumer(r, p, dlq, ConsumerConfig{
		Concurrency:     2,
		Retries:         2,
		RetryBackoff:    time.Millisecond,
		DeadLetterTopic: "delivery-terms-dlq",
	}, m, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	stop := func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
		}
	}
	return m, stop
}

// runConsumer runs until partition 0 is committed through lastOffset.
func runConsumer(t *testing.T, r *fakeReader, p *fakeProcessor, dlq *recordingSender, lastOffset int64) *metrics.Relay {
	t.Helper()
	m, stop := startConsumer(t, r, p, dlq)
	require.Eventually(t, func() bool { return r.committedThrough(0) == lastOffset }, 2*time.Second, 5*time.Millisecond)
	stop()
	return m
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		created: make(map[int64]bool),
		err:     make(map[int64]error),
		block:   make(map[int64]chan struct{}),
	}
}

func TestConsumer_ProcessesAndCommits(t *testing.T) {
	r := &fakeReader{queue: []kafkago.Message{
		orderMessage(1, `{"orderId":5}`, kafkago.Header{Key: messaging.HeaderCorrelationID, Value: []byte("corr-5")}),
	}}
	p := newFakeProcessor()
	dlq := &recordingSender{}

	m := runConsumer(t, r, p, dlq, 1)

	require.Len(t, p.calls, 1)
	assert.Equal(t, call{5, "corr-5"}, p.calls[0])
	assert.Empty(t, dlq.messages())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsumerResults.WithLabelValues("order-created", "created")))
}

func TestConsumer_DuplicateDeliveriesAreCommitted(t *testing.T) {
	r := &fakeReader{queue: []kafkago.Message{
		orderMessage(1, `{"orderId":5}`),
		orderMessage(2, `{"orderId":5}`),
		orderMessage(3, `{"orderId":5}`),
	}}
	p := newFakeProcessor()
	dlq := &recordingSender{}

	m := runConsumer(t, r, p, dlq, 3)

	assert.Equal(t, 3, p.callsFor(5))
	assert.Empty(t, dlq.messages())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsumerResults.WithLabelValues("order-created", "created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConsumerResults.WithLabelValues("order-created", "duplicate")))
}

func TestConsumer_MalformedMessageIsDeadLettered(t *testing.T) {
	r := &fakeReader{queue: []kafkago.Message{orderMessage(1, `not json`)}}
	p := newFakeProcessor()
	dlq := &recordingSender{}

	runConsumer(t, r, p, dlq, 1)

	assert.Empty(t, p.calls)
	sent := dlq.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "delivery-terms-dlq", sent[0].Topic)
	assert.Equal(t, "k", sent[0].Key)
	assert.Equal(t, []byte(`not json`), sent[0].Payload)
	assert.Contains(t, string(sent[0].Headers[messaging.HeaderError]), "decode")
}

func TestConsumer_InvalidOrderIDIsNotRetried(t *testing.T) {
	r := &fakeReader{queue: []kafkago.Message{orderMessage(1, `{"orderId":0}`)}}
	p := newFakeProcessor()
	dlq := &recordingSender{}

	runConsumer(t, r, p, dlq, 1)

	assert.Equal(t, 1, p.callsFor(0))
	require.Len(t, dlq.messages(), 1)
}

func TestConsumer_NotFoundIsRetriedThenDeadLettered(t *testing.T) {
	r := &fakeReader{queue: []kafkago.Message{orderMessage(1, `{"orderId":8}`)}}
	p := newFakeProcessor()
	p.err[8] = fmt.Errorf("Process: load order: %w", domain.ErrOrderNotFound)
	dlq := &recordingSender{}

	runConsumer(t, r, p, dlq, 1)

	assert.Equal(t, 3, p.callsFor(8))
	sent := dlq.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, string(sent[0].Headers[messaging.HeaderError]), "order not found")
}

func TestConsumer_StopsOnCancel(t *testing.T) {
	r := &fakeReader{}
	c := NewConsumer(r, newFakeProcessor(), nil, ConsumerConfig{}, metrics.New(), slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumer_CommitWaitsForEarlierOffset(t *testing.T) {
	r := &fakeReader{queue: []kafkago.Message{
		orderMessage(0, `{"orderId":1}`),
		orderMessage(1, `{"orderId":2}`),
	}}
	p := newFakeProcessor()
	release := make(chan struct{})
	p.block[1] = release

	_, stop := startConsumer(t, r, p, &recordingSender{})
	defer stop()

	require.Eventually(t, func() bool { return p.callsFor(2) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(-1), r.committedThrough(0), "later offset must not commit past an in-flight one")

	close(release)
	require.Eventually(t, func() bool { return r.committedThrough(0) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, r.commitCount())
}

func TestConsumer_UnfinishedMessageIsNotCommittedPastOnShutdown(t *testing.T) {
	r := &fakeReader{queue: []kafkago.Message{
		orderMessage(0, `{"orderId":1}`),
		orderMessage(1, `{"orderId":2}`),
	}}
	p := newFakeProcessor()
	p.block[1] = make(chan struct{})

	_, stop := startConsumer(t, r, p, &recordingSender{})
	require.Eventually(t, func() bool { return p.callsFor(2) == 1 }, time.Second, time.Millisecond)
	stop()

	assert.Equal(t, int64(-1), r.committedThrough(0))
	assert.Zero(t, p.callsFor(1), "blocked message never completed")
}

func TestConsumer_PartitionsCommitIndependently(t *testing.T) {
	other := orderMessage(5, `{"orderId":2}`)
	other.Partition = 1
	r := &fakeReader{queue: []kafkago.Message{orderMessage(0, `{"orderId":1}`), other}}
	p := newFakeProcessor()
	p.block[1] = make(chan struct{})

	_, stop := startConsumer(t, r, p, &recordingSender{})
	defer stop()

	require.Eventually(t, func() bool { return r.committedThrough(1) == 5 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(-1), r.committedThrough(0))
}

func TestConsumer_DeadLetterRetriedUntilAccepted(t *testing.T) {
	r := &fakeReader{queue: []kafkago.Message{orderMessage(1, `not json`)}}
	dlq := &recordingSender{rejectN: 3}

	m := runConsumer(t, r, newFakeProcessor(), dlq, 1)

	assert.Equal(t, 4, dlq.attemptCount())
	require.Len(t, dlq.messages(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsumerResults.WithLabelValues("order-created", "dead_lettered")))
}

func TestConsumer_RejectedDeadLetterIsNotCommitted(t *testing.T) {
	r := &fakeReader{queue: []kafkago.Message{orderMessage(1, `not json`)}}
	dlq := &recordingSender{rejectN: -1}

	m, stop := startConsumer(t, r, newFakeProcessor(), dlq)
	require.Eventually(t, func() bool { return dlq.attemptCount() >= 3 }, time.Second, time.Millisecond)
	stop()

	assert.Zero(t, r.commitCount())
	assert.Empty(t, dlq.messages())
	assert.Zero(t, testutil.ToFloat64(m.ConsumerResults.WithLabelValues("order-created", "dead_lettered")))
}
