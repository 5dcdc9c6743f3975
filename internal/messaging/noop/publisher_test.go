package noop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nsridhar76/go-orderrelay/internal/domain"
	"github.com/nsridhar76/go-orderrelay/internal/messaging"
)

func TestPublisher_AlwaysSucceeds(t *testing.T) {
	var p messaging.OrderPublisher = Publisher[*domain.Order]{}
	ctx := context.Background()

	assert.True(t, p.Publish(ctx, &domain.Order{ID: 1}, messaging.Trace{}))
	assert.True(t, p.Publish(ctx, nil, messaging.Trace{CorrelationID: "c"}))
}

