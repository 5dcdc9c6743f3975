// Package domain holds the order and delivery-term entities, the domain
// events emitted on their transitions, and the sentinel errors shared by the
// persistence and messaging layers.
package domain

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusApproved OrderStatus = "approved"
)

// Order is the source record a delivery term is derived from.
type Order struct {
	ID         int64
	CustomerID string
	Total      float64
	Status     OrderStatus
	CreatedAt  time.Time
	ApprovedAt *time.Time
}

// CanApprove reports whether the order may move to approved.
func (o *Order) CanApprove() bool {
	return o.Status == OrderStatusPending
}
