package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event names.
const (
	EventOrderCreated  = "order.created"
	EventOrderApproved = "order.approved"
	EventUserCreated   = "user.created"
)

// Event is an immutable record of a committed state transition.
type Event interface {
	EventID() uuid.UUID
	EventName() string
	AggregateID() int64
	OccurredAt() time.Time
}

type eventBase struct {
	id         uuid.UUID
	occurredAt time.Time
}

func newEventBase(now time.Time) eventBase {
	return eventBase{id: uuid.New(), occurredAt: now.UTC()}
}

func (e eventBase) EventID() uuid.UUID    { return e.id }
func (e eventBase) OccurredAt() time.Time { return e.occurredAt }

// OrderCreated is emitted once an order insert has committed.
type OrderCreated struct {
	eventBase
	OrderID    int64
	CustomerID string
	Total      float64
}

func NewOrderCreated(o *Order, now time.Time) OrderCreated {
	return OrderCreated{
		eventBase:  newEventBase(now),
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Total:      o.Total,
	}
}

func (OrderCreated) EventName() string    { return EventOrderCreated }
func (e OrderCreated) AggregateID() int64 { return e.OrderID }

// OrderApproved is emitted once an order approval has committed.
type OrderApproved struct {
	eventBase
	OrderID int64
	Status  OrderStatus
}

func NewOrderApproved(o *Order, now time.Time) OrderApproved {
	return OrderApproved{
		eventBase: newEventBase(now),
		OrderID:   o.ID,
		Status:    o.Status,
	}
}

func (OrderApproved) EventName() string    { return EventOrderApproved }
func (e OrderApproved) AggregateID() int64 { return e.OrderID }

// UserCreated is emitted when a user account is registered. No relay route
// publishes it.
type UserCreated struct {
	eventBase
	UserID int64
	Email  string
}

func NewUserCreated(userID int64, email string, now time.Time) UserCreated {
	return UserCreated{eventBase: newEventBase(now), UserID: userID, Email: email}
}

func (UserCreated) EventName() string    { return EventUserCreated }
func (e UserCreated) AggregateID() int64 { return e.UserID }
