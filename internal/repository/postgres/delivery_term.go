package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nsridhar76/go-orderrelay/internal/domain"
)

const deliveryTermOrderKey = "delivery_terms_order_id_key"

type DeliveryTermRepository struct {
	pool *pgxpool.Pool
}

func NewDeliveryTermRepository(pool *pgxpool.Pool) *DeliveryTermRepository {
	return &DeliveryTermRepository{pool: pool}
}

func (r *DeliveryTermRepository) ExistsForOrder(ctx context.Context, orderID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM delivery_terms WHERE order_id = $1)`, orderID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ExistsForOrder: %w", err)
	}
	return exists, nil
}

// Insert writes a new delivery term. A second term for the same order fails
// with domain.ErrDuplicateDeliveryTerm.
func (r *DeliveryTermRepository) Insert(ctx context.Context, term *domain.DeliveryTerm) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO delivery_terms (order_id, base_date, delivery_days)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		term.OrderID, term.BaseDate, term.DeliveryDays,
	).Scan(&term.ID, &term.CreatedAt)
	if isUniqueViolation(err, deliveryTermOrderKey) {
		return fmt.Errorf("Insert: order %d: %w", term.OrderID, domain.ErrDuplicateDeliveryTerm)
	}
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	return nil
}

func (r *DeliveryTermRepository) GetByOrderID(ctx context.Context, orderID int64) (*domain.DeliveryTerm, error) {
	var t domain.DeliveryTerm
	err := r.pool.QueryRow(ctx,
		`SELECT id, order_id, base_date, delivery_days, created_at
		FROM delivery_terms WHERE order_id = $1`, orderID,
	).Scan(&t.ID, &t.OrderID, &t.BaseDate, &t.DeliveryDays, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("GetByOrderID: %w", domain.ErrDeliveryTermNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetByOrderID: %w", err)
	}
	t.BaseDate = t.BaseDate.UTC()
	return &t, nil
}
