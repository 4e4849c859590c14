// Package metrics exposes Prometheus collectors for the state layer.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the state layer metrics.
type Collector struct {
	registry *prometheus.Registry

	updateContexts    *prometheus.CounterVec
	signerFetches     *prometheus.CounterVec
	signerEmissions   prometheus.Counter
	subscriptions     *prometheus.CounterVec
	watchedAddresses  prometheus.Gauge
	metadataFetches   *prometheus.CounterVec
	metadataCacheSize prometheus.Gauge
	indexerMessages   *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "dexstate"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.updateContexts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "updates",
			Name:      "contexts_total",
			Help:      "Update contexts accepted or dropped by the request queue",
		},
		[]string{"result"},
	)
	c.signerFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signers",
			Name:      "fetches_total",
			Help:      "Per-signer fetches issued for local update requests",
		},
		[]string{"kind", "result"},
	)
	c.signerEmissions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signers",
			Name:      "emissions_total",
			Help:      "Signer list snapshots published",
		},
	)
	c.subscriptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balances",
			Name:      "subscription_changes_total",
			Help:      "Chain balance subscription lifecycle events",
		},
		[]string{"event"},
	)
	c.watchedAddresses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "balances",
			Name:      "watched_addresses",
			Help:      "Addresses covered by the active balance subscription",
		},
	)
	c.metadataFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "metadata_fetches_total",
			Help:      "Batched token metadata queries for cache misses",
		},
		[]string{"result"},
	)
	c.metadataCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "metadata_cache_entries",
			Help:      "Entries in the token metadata cache",
		},
	)
	c.indexerMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "messages_total",
			Help:      "graphql-ws messages received by type",
		},
		[]string{"type"},
	)

	c.registry.MustRegister(
		c.updateContexts,
		c.signerFetches,
		c.signerEmissions,
		c.subscriptions,
		c.watchedAddresses,
		c.metadataFetches,
		c.metadataCacheSize,
		c.indexerMessages,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler returns an http.Handler serving the collector's metrics.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// UpdateContext records an accepted or dropped update context.
func (c *Collector) UpdateContext(accepted bool) {
	if c == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "dropped"
	}
	c.updateContexts.WithLabelValues(result).Inc()
}

// SignerFetch records one per-signer fetch.
func (c *Collector) SignerFetch(kind string, err error) {
	if c == nil {
		return
	}
	c.signerFetches.WithLabelValues(kind, resultLabel(err)).Inc()
}

// SignersEmitted records a published signer list.
func (c *Collector) SignersEmitted() {
	if c == nil {
		return
	}
	c.signerEmissions.Inc()
}

// Subscription records a balance subscription event
// ("subscribe", "unsubscribe", "failed") and the watched set size.
func (c *Collector) Subscription(event string, watched int) {
	if c == nil {
		return
	}
	c.subscriptions.WithLabelValues(event).Inc()
	c.watchedAddresses.Set(float64(watched))
}

// MetadataFetch records a batched metadata query.
func (c *Collector) MetadataFetch(err error) {
	if c == nil {
		return
	}
	c.metadataFetches.WithLabelValues(resultLabel(err)).Inc()
}

// MetadataCacheSize sets the current metadata cache size.
func (c *Collector) MetadataCacheSize(n int) {
	if c == nil {
		return
	}
	c.metadataCacheSize.Set(float64(n))
}

// IndexerMessage records a received graphql-ws message.
func (c *Collector) IndexerMessage(msgType string) {
	if c == nil {
		return
	}
	c.indexerMessages.WithLabelValues(msgType).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
