package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nsridhar76/go-orderrelay/internal/domain"
)

func SeedOrder(t *testing.T, pool *pgxpool.Pool, customerID string, total float64, createdAt time.Time) *domain.Order {
	t.Helper()

	o := &domain.Order{
		CustomerID: customerID,
		Total:      total,
		Status:     domain.OrderStatusPending,
		CreatedAt:  createdAt,
	}
	err := pool.QueryRow(context.Background(),
		`INSERT INTO orders (customer_id, total, status, created_at)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		o.CustomerID, o.Total, o.Status, o.CreatedAt,
	).Scan(&o.ID)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

func CountDeliveryTerms(t *testing.T, pool *pgxpool.Pool, orderID int64) int {
	t.Helper()

	var n int
	err := pool.QueryRow(context.Background(),
		`SELECT count(*) FROM delivery_terms WHERE order_id = $1`, orderID,
	).Scan(&n)
	if err != nil {
		t.Fatalf("count delivery terms: %v", err)
	}
	return n
}
