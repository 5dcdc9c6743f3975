package messaging

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/nsridhar76/go-orderrelay/internal/domain"
	"github.com/nsridhar76/go-orderrelay/internal/logging"
)

// Sender is the best-effort half of the producer client.
type Sender interface {
	TrySend(ctx context.Context, msg Message) bool
}

// OrderPublisher relays a committed order transition. Implementations never
// fail the caller; the result only reports whether the broker accepted it.
type OrderPublisher interface {
	Publish(ctx context.Context, o *domain.Order, trace Trace) bool
}

// Route binds an entity type to a topic, a partition key and a payload mapping.
type Route[T any] struct {
	Topic string
	Key   func(T) string
	Map   func(T) (any, error)
}

// Publisher maps, encodes and best-effort sends entities along a Route.
type Publisher[T any] struct {
	route  Route[T]
	sender Sender
}

func NewPublisher[T any](route Route[T], sender Sender) *Publisher[T] {
	return &Publisher[T]{route: route, sender: sender}
}

func (p *Publisher[T]) Publish(ctx context.Context, entity T, trace Trace) bool {
	logger := logging.FromContext(ctx).With("topic", p.route.Topic)

	payload, err := p.route.Map(entity)
	if err != nil {
		logger.Error("failed to map event payload", "error", err)
		return false
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to encode event payload", "error", err)
		return false
	}

	ok := p.sender.TrySend(ctx, Message{
		Topic:   p.route.Topic,
		Key:     p.route.Key(entity),
		Payload: data,
		Headers: trace.Headers(),
	})
	if !ok {
		logger.Warn("event not published", "correlation_id", trace.CorrelationID, "causation_id", trace.CausationID)
	}
	return ok
}

func orderKey(o *domain.Order) string {
	return strconv.FormatInt(o.ID, 10)
}

// OrderCreatedRoute routes orders to the order-created topic.
func OrderCreatedRoute(topic string) Route[*domain.Order] {
	return Route[*domain.Order]{
		Topic: topic,
		Key:   orderKey,
		Map: func(o *domain.Order) (any, error) {
			return MapOrderCreated(o)
		},
	}
}

// OrderApprovedRoute routes orders to the order-approved topic.
func OrderApprovedRoute(topic string, mapper OrderApprovedMapper) Route[*domain.Order] {
	return Route[*domain.Order]{
		Topic: topic,
		Key:   orderKey,
		Map: func(o *domain.Order) (any, error) {
			return mapper.Map(o)
		},
	}
}
