package messaging

import (
	"fmt"
	"time"

	"github.com/nsridhar76/go-orderrelay/internal/domain"
)

func validOrder(o *domain.Order) error {
	if o == nil {
		return fmt.Errorf("nil order: %w", ErrInvalidEntity)
	}
	if o.ID <= 0 {
		return fmt.Errorf("order id %d: %w", o.ID, ErrInvalidEntity)
	}
	return nil
}

// MapOrderCreated translates an order into its order-created payload.
func MapOrderCreated(o *domain.Order) (OrderCreatedPayload, error) {
	if err := validOrder(o); err != nil {
		return OrderCreatedPayload{}, fmt.Errorf("MapOrderCreated: %w", err)
	}
	return OrderCreatedPayload{OrderID: o.ID}, nil
}

// OrderApprovedMapper translates an approved order into its payload. The
// approval time is stamped from Now when mapping, not read from the order.
type OrderApprovedMapper struct {
	Now func() time.Time
}

func (m OrderApprovedMapper) Map(o *domain.Order) (OrderApprovedPayload, error) {
	if err := validOrder(o); err != nil {
		return OrderApprovedPayload{}, fmt.Errorf("MapOrderApproved: %w", err)
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	return OrderApprovedPayload{
		OrderID:       o.ID,
		Status:        string(o.Status),
		ApprovedAtUTC: now().UTC(),
	}, nil
}
