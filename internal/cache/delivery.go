// Package cache keeps a Redis record of orders that already have a delivery
// term, so redelivered events skip the database existence check.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nsridhar76/go-orderrelay/internal/delivery"
	"github.com/nsridhar76/go-orderrelay/internal/domain"
	"github.com/nsridhar76/go-orderrelay/internal/logging"
	"github.com/nsridhar76/go-orderrelay/internal/metrics"
)

const keyPrefix = "delivery-term:"

// DefaultTTL applies when NewGuard is given a non-positive ttl.
const DefaultTTL = 24 * time.Hour

// Guard decorates a delivery.TermStore. Only positive answers are cached, so
// a stale entry can never hide a missing term. A lost insert race is not
// cached either; the caller verifies it against the wrapped store. Redis
// failures fall through to the wrapped store.
type Guard struct {
	next    delivery.TermStore
	client  *redis.Client
	ttl     time.Duration
	metrics *metrics.Relay
}

var _ delivery.TermStore = (*Guard)(nil)

func NewGuard(next delivery.TermStore, client *redis.Client, ttl time.Duration, m *metrics.Relay) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{next: next, client: client, ttl: ttl, metrics: m}
}

// NewClient parses a redis:// URL and pings the server.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache.NewClient: parse: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache.NewClient: ping: %w", err)
	}
	return client, nil
}

func key(orderID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, orderID)
}

func (g *Guard) ExistsForOrder(ctx context.Context, orderID int64) (bool, error) {
	err := g.client.Get(ctx, key(orderID)).Err()
	switch {
	case err == nil:
		g.lookup("hit")
		return true, nil
	case errors.Is(err, redis.Nil):
		g.lookup("miss")
	default:
		g.lookup("error")
		logging.FromContext(ctx).Warn("delivery cache lookup failed", "order_id", orderID, "error", err)
	}

	exists, err := g.next.ExistsForOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if exists {
		g.remember(ctx, orderID)
	}
	return exists, nil
}

func (g *Guard) Insert(ctx context.Context, term *domain.DeliveryTerm) error {
	if err := g.next.Insert(ctx, term); err != nil {
		return err
	}
	g.remember(ctx, term.OrderID)
	return nil
}

func (g *Guard) remember(ctx context.Context, orderID int64) {
	if err := g.client.Set(ctx, key(orderID), "1", g.ttl).Err(); err != nil {
		logging.FromContext(ctx).Warn("delivery cache write failed", "order_id", orderID, "error", err)
	}
}

func (g *Guard) lookup(result string) {
	if g.metrics != nil {
		g.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}
