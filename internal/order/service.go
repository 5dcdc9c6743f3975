// Package order owns the order lifecycle: it persists transitions and relays
// each committed one to the broker.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/nsridhar76/go-orderrelay/internal/domain"
	"github.com/nsridhar76/go-orderrelay/internal/logging"
	"github.com/nsridhar76/go-orderrelay/internal/messaging"
)

type orderStore interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	Approve(ctx context.Context, id int64) (*domain.Order, error)
}

type termReader interface {
	GetByOrderID(ctx context.Context, orderID int64) (*domain.DeliveryTerm, error)
}

type Service struct {
	orders   orderStore
	terms    termReader
	created  messaging.OrderPublisher
	approved messaging.OrderPublisher
	now      func() time.Time
}

func NewService(orders orderStore, terms termReader, created, approved messaging.OrderPublisher) *Service {
	return &Service{
		orders:   orders,
		terms:    terms,
		created:  created,
		approved: approved,
		now:      time.Now,
	}
}

func (s *Service) Create(ctx context.Context, customerID string, total float64) (*domain.Order, error) {
	if customerID == "" {
		return nil, fmt.Errorf("Create: customer id is required: %w", domain.ErrInvalidOrder)
	}
	if total < 0 {
		return nil, fmt.Errorf("Create: negative total: %w", domain.ErrInvalidOrder)
	}

	o := &domain.Order{CustomerID: customerID, Total: total, Status: domain.OrderStatusPending}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	s.relay(ctx, s.created, o, domain.NewOrderCreated(o, s.now()))
	return o, nil
}

func (s *Service) Approve(ctx context.Context, id int64) (*domain.Order, error) {
	if id <= 0 {
		return nil, fmt.Errorf("Approve: %d: %w", id, domain.ErrInvalidOrderID)
	}

	o, err := s.orders.Approve(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Approve: %w", err)
	}

	s.relay(ctx, s.approved, o, domain.NewOrderApproved(o, s.now()))
	return o, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Order, error) {
	if id <= 0 {
		return nil, fmt.Errorf("Get: %d: %w", id, domain.ErrInvalidOrderID)
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return o, nil
}

func (s *Service) DeliveryTerm(ctx context.Context, orderID int64) (*domain.DeliveryTerm, error) {
	if orderID <= 0 {
		return nil, fmt.Errorf("DeliveryTerm: %d: %w", orderID, domain.ErrInvalidOrderID)
	}
	t, err := s.terms.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("DeliveryTerm: %w", err)
	}
	return t, nil
}

// relay publishes after the write has committed. The outcome is logged only;
// the caller's result never depends on it.
func (s *Service) relay(ctx context.Context, p messaging.OrderPublisher, o *domain.Order, ev domain.Event) {
	trace := messaging.Trace{
		CorrelationID: middleware.GetReqID(ctx),
		CausationID:   ev.EventID().String(),
	}
	ok := p.Publish(ctx, o, trace)
	logging.FromContext(ctx).Debug("order event relayed",
		"event", ev.EventName(),
		"order_id", ev.AggregateID(),
		"event_id", trace.CausationID,
		"published", ok,
	)
}
