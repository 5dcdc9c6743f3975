// Package metrics exposes the Prometheus collectors for the relay: publish
// results, retries, breaker state, consumer outcomes and cache hits.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orderrelay"

// Relay holds all collectors, registered on a private registry so tests can
// build as many instances as they like.
type Relay struct {
	registry *prometheus.Registry

	Published       *prometheus.CounterVec
	PublishRetries  *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec
	ConsumerResults *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
}

func New() *Relay {
	registry := prometheus.NewRegistry()

	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "producer",
		Name:      "messages_total",
		Help:      "Messages handed to the producer, by topic and result.",
	}, []string{"topic", "result"})

	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "producer",
		Name:      "retries_total",
		Help:      "Transport retry attempts, by topic.",
	}, []string{"topic"})

	breaker := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "producer",
		Name:      "breaker_state",
		Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
	}, []string{"breaker"})

	consumer := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "messages_total",
		Help:      "Consumed messages, by topic and outcome.",
	}, []string{"topic", "outcome"})

	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Processed-order cache lookups, by result.",
	}, []string{"result"})

	registry.MustRegister(published, retries, breaker, consumer, cache)

	return &Relay{
		registry:        registry,
		Published:       published,
		PublishRetries:  retries,
		BreakerState:    breaker,
		ConsumerResults: consumer,
		CacheLookups:    cache,
	}
}

func (m *Relay) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
