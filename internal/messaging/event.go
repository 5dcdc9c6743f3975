// Package messaging defines the wire contract for order events and the
// publish path that relays committed order transitions to the broker.
package messaging

import (
	"errors"
	"time"
)

// Header keys carried on every outbound message when set.
const (
	HeaderCorrelationID = "correlation-id"
	HeaderCausationID   = "causation-id"
	HeaderError         = "error"
)

var (
	ErrInvalidEntity     = errors.New("invalid entity")
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrCircuitOpen       = errors.New("circuit open")
)

// OrderCreatedPayload is the external shape of an order-created event.
type OrderCreatedPayload struct {
	OrderID int64 `json:"orderId"`
}

// OrderApprovedPayload is the external shape of an order-approved event.
type OrderApprovedPayload struct {
	OrderID       int64     `json:"orderId"`
	Status        string    `json:"status"`
	ApprovedAtUTC time.Time `json:"approvedAtUtc"`
}

// Message is the unit exchanged with the broker. Key and Headers are optional.
type Message struct {
	Topic   string
	Key     string
	Payload []byte
	Headers map[string][]byte
}

// Trace carries the optional correlation and causation ids of a publish.
type Trace struct {
	CorrelationID string
	CausationID   string
}

// Headers returns the trace ids as message headers, omitting empty ones.
func (t Trace) Headers() map[string][]byte {
	h := make(map[string][]byte, 2)
	if t.CorrelationID != "" {
		h[HeaderCorrelationID] = []byte(t.CorrelationID)
	}
	if t.CausationID != "" {
		h[HeaderCausationID] = []byte(t.CausationID)
	}
	return h
}
