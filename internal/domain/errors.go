package domain

import "errors"

var (
	ErrInvalidOrderID        = errors.New("order id must be positive")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderNotPending       = errors.New("order is not pending")
	ErrInvalidOrder          = errors.New("invalid order")
	ErrDuplicateDeliveryTerm = errors.New("delivery term already exists for order")
	ErrDeliveryTermNotFound  = errors.New("delivery term not found")
)
