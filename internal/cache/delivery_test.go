package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsridhar76/go-orderrelay/internal/domain"
	"github.com/nsridhar76/go-orderrelay/internal/metrics"
)

type stubTerms struct {
	exists    map[int64]bool
	checks    int
	insertErr error
}

func (s *stubTerms) ExistsForOrder(_ context.Context, orderID int64) (bool, error) {
	s.checks++
	return s.exists[orderID], nil
}

func (s *stubTerms) Insert(_ context.Context, term *domain.DeliveryTerm) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.exists[term.OrderID] = true
	return nil
}

func setup(t *testing.T) (*miniredis.Miniredis, *stubTerms, *Guard, *metrics.Relay) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	terms := &stubTerms{exists: map[int64]bool{}}
	m := metrics.New()
	return mr, terms, NewGuard(terms, client, time.Hour, m), m
}

func TestGuard_MissFallsThroughAndCachesPositive(t *testing.T) {
	mr, terms, g, m := setup(t)
	ctx := context.Background()
	terms.exists[7] = true

	exists, err := g.ExistsForOrder(ctx, 7)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 1, terms.checks)
	assert.True(t, mr.Exists("delivery-term:7"))
	assert.Equal(t, time.Hour, mr.TTL("delivery-term:7"))

	exists, err = g.ExistsForOrder(ctx, 7)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 1, terms.checks, "second lookup is served from redis")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
}

func TestGuard_NegativeNotCached(t *testing.T) {
	mr, terms, g, _ := setup(t)
	ctx := context.Background()

	exists, err := g.ExistsForOrder(ctx, 3)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.False(t, mr.Exists("delivery-term:3"))

	_, _ = g.ExistsForOrder(ctx, 3)
	assert.Equal(t, 2, terms.checks)
}

func TestGuard_InsertCachesOnSuccess(t *testing.T) {
	mr, _, g, _ := setup(t)

	err := g.Insert(context.Background(), &domain.DeliveryTerm{OrderID: 11})
	require.NoError(t, err)
	assert.True(t, mr.Exists("delivery-term:11"))
}

func TestGuard_InsertConflictNotCached(t *testing.T) {
	mr, terms, g, _ := setup(t)
	terms.insertErr = domain.ErrDuplicateDeliveryTerm

	err := g.Insert(context.Background(), &domain.DeliveryTerm{OrderID: 12})
	assert.ErrorIs(t, err, domain.ErrDuplicateDeliveryTerm)
	assert.False(t, mr.Exists("delivery-term:12"))
}

func TestGuard_InsertErrorPassesThrough(t *testing.T) {
	_, terms, g, _ := setup(t)
	boom := errors.New("boom")
	terms.insertErr = boom

	err := g.Insert(context.Background(), &domain.DeliveryTerm{OrderID: 13})
	assert.ErrorIs(t, err, boom)
}

func TestGuard_RedisFailureBypassesCache(t *testing.T) {
	mr, terms, g, m := setup(t)
	terms.exists[5] = true
	mr.SetError("ERR server unavailable")

	exists, err := g.ExistsForOrder(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 1, terms.checks)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("error")))
}

func TestGuard_ExpiredEntryFallsThrough(t *testing.T) {
	mr, terms, g, _ := setup(t)
	ctx := context.Background()
	terms.exists[9] = true

	_, _ = g.ExistsForOrder(ctx, 9)
	mr.FastForward(2 * time.Hour)
	_, _ = g.ExistsForOrder(ctx, 9)
	assert.Equal(t, 2, terms.checks)
}

func TestNewGuard_DefaultTTL(t *testing.T) {
	g := NewGuard(&stubTerms{}, nil, 0, nil)
	assert.Equal(t, DefaultTTL, g.ttl)
}
