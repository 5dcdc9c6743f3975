// Package delivery derives delivery terms from order events. Processing is
// idempotent per order id: any number of deliveries of the same event, in
// sequence or concurrently, create exactly one delivery term.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nsridhar76/go-orderrelay/internal/domain"
	"github.com/nsridhar76/go-orderrelay/internal/logging"
)

// Outcome reports what a successful Process call did.
type Outcome int

const (
	OutcomeCreated Outcome = iota + 1
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// ErrRaceUnresolved is returned when the insert lost a uniqueness race but
// the winning row is not visible afterwards. The message should be retried.
var ErrRaceUnresolved = errors.New("delivery term conflict without visible winner")

type orderReader interface {
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
}

// TermStore is the side-effect store. Insert must return
// domain.ErrDuplicateDeliveryTerm on a unique violation of the order id.
type TermStore interface {
	ExistsForOrder(ctx context.Context, orderID int64) (bool, error)
	Insert(ctx context.Context, term *domain.DeliveryTerm) error
}

type Handler struct {
	orders orderReader
	terms  TermStore
}

func NewHandler(orders orderReader, terms TermStore) *Handler {
	return &Handler{orders: orders, terms: terms}
}

// Process creates the delivery term for orderID unless one exists already.
// A duplicate is a success: the returned error is nil and the outcome is
// OutcomeDuplicate.
func (h *Handler) Process(ctx context.Context, orderID int64, correlationID string) (Outcome, error) {
	if orderID <= 0 {
		return 0, fmt.Errorf("Process: %d: %w", orderID, domain.ErrInvalidOrderID)
	}

	logger := logging.FromContext(ctx).With("order_id", orderID)
	if correlationID != "" {
		logger = logger.With("correlation_id", correlationID)
	}

	exists, err := h.terms.ExistsForOrder(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("Process: check existing: %w", err)
	}
	if exists {
		logDuplicate(logger, "delivery term already exists")
		return OutcomeDuplicate, nil
	}

	order, err := h.orders.GetByID(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("Process: load order: %w", err)
	}

	term := domain.NewDeliveryTerm(order)
	err = h.terms.Insert(ctx, term)
	if errors.Is(err, domain.ErrDuplicateDeliveryTerm) {
		// A concurrent delivery won between the check and the insert.
		exists, verr := h.terms.ExistsForOrder(ctx, orderID)
		if verr != nil {
			return 0, fmt.Errorf("Process: verify after conflict: %w", verr)
		}
		if !exists {
			return 0, fmt.Errorf("Process: %w", ErrRaceUnresolved)
		}
		logDuplicate(logger, "delivery term created concurrently")
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return 0, fmt.Errorf("Process: insert: %w", err)
	}

	logger.Info("delivery term created",
		"base_date", term.BaseDate,
		"delivery_days", term.DeliveryDays,
	)
	return OutcomeCreated, nil
}

func logDuplicate(logger *slog.Logger, msg string) {
	logger.Warn(msg+", skipping", "outcome", OutcomeDuplicate.String())
}
