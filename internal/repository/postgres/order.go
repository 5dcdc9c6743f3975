package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nsridhar76/go-orderrelay/internal/domain"
)

const orderColumns = `id, customer_id, total, status, created_at, approved_at`

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO orders (customer_id, total, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		o.CustomerID, o.Total, o.Status,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return o, nil
}

// Approve moves a pending order to approved and returns the updated row.
func (r *OrderRepository) Approve(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`UPDATE orders SET status = $1, approved_at = now()
		WHERE id = $2 AND status = $3
		RETURNING `+orderColumns,
		domain.OrderStatusApproved, id, domain.OrderStatusPending,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, fmt.Errorf("Approve: %w", getErr)
		}
		return nil, fmt.Errorf("Approve: %w", domain.ErrOrderNotPending)
	}
	if err != nil {
		return nil, fmt.Errorf("Approve: %w", err)
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	if err := row.Scan(&o.ID, &o.CustomerID, &o.Total, &o.Status, &o.CreatedAt, &o.ApprovedAt); err != nil {
		return nil, err
	}
	return &o, nil
}
