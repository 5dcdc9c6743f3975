package domain

import "time"

// DefaultDeliveryDays is the fixed delivery window applied to every order.
const DefaultDeliveryDays = 5

// DeliveryTerm is the side-effect record derived from an order. At most one
// exists per order id.
type DeliveryTerm struct {
	ID           int64
	OrderID      int64
	BaseDate     time.Time
	DeliveryDays int
	CreatedAt    time.Time
}

// NewDeliveryTerm derives the delivery term for o. The base date is the
// order's creation time normalized to UTC.
func NewDeliveryTerm(o *Order) *DeliveryTerm {
	return &DeliveryTerm{
		OrderID:      o.ID,
		BaseDate:     o.CreatedAt.UTC(),
		DeliveryDays: DefaultDeliveryDays,
	}
}

// DueDate is the base date plus the delivery window.
func (t *DeliveryTerm) DueDate() time.Time {
	return t.BaseDate.AddDate(0, 0, t.DeliveryDays)
}
