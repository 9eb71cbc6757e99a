// Package metrics exposes the settlement engine's Prometheus collectors.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/settled/internal/domain"
)

// Metrics groups the collectors registered by the engine.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	openOrders *prometheus.GaugeVec
	postings   prometheus.Counter
	published  *prometheus.CounterVec
}

// New registers the collectors on a fresh registry under namespace.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Settlement operations by type and result.",
		}, []string{"op", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent applying a settlement operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
		openOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_orders",
			Help:      "Resting orders per market.",
		}, []string{"market"}),
		postings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_postings_total",
			Help:      "Ledger postings committed.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Outbox events handed to the broker.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.operations, m.latency, m.openOrders, m.postings, m.published,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveOp records one operation and its outcome.
func (m *Metrics) ObserveOp(op string, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, Result(err)).Inc()
	m.latency.WithLabelValues(op).Observe(took.Seconds())
}

// SetOpenOrders updates the resting order gauge of a market.
func (m *Metrics) SetOpenOrders(marketID uint64, n int) {
	if m == nil {
		return
	}
	m.openOrders.WithLabelValues(strconv.FormatUint(marketID, 10)).Set(float64(n))
}

// AddPostings counts committed ledger postings.
func (m *Metrics) AddPostings(n int) {
	if m == nil {
		return
	}
	m.postings.Add(float64(n))
}

// ObservePublish counts broker deliveries.
func (m *Metrics) ObservePublish(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.published.WithLabelValues("error").Inc()
		return
	}
	m.published.WithLabelValues("ok").Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Result maps an operation error onto a short label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientBalance), errors.Is(err, domain.ErrInsufficientShares):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrMarketNotFound), errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrOutcomeNotFound), errors.Is(err, domain.ErrRoundNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidMarketParameters), errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrDustLoss):
		return "invalid"
	}
	return "rejected"
}
