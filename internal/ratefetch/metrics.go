// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ratefetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the fetcher collectors. Every series is labelled with the
// fetcher name, so one Metrics value can be shared by all fetchers.
type Metrics struct {
	// Dispatched counts network calls issued, retries included.
	Dispatched *prometheus.CounterVec

	// RateLimited counts rate-limit (429) responses received.
	RateLimited *prometheus.CounterVec

	// RetriesExhausted counts requests rejected with ErrRateLimitExceeded.
	RetriesExhausted *prometheus.CounterVec

	// TransportErrors counts requests rejected by the transport.
	TransportErrors *prometheus.CounterVec

	// Coalesced counts callers served by a request another caller started.
	Coalesced *prometheus.CounterVec

	// QueueDepth is the number of requests waiting in the queue.
	QueueDepth *prometheus.GaugeVec

	// QueueWait observes seconds from enqueue to the final dispatch.
	QueueWait *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := []string{"fetcher"}

	return &Metrics{
		Dispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "litfetch",
			Subsystem: "fetch",
			Name:      "dispatched_total",
			Help:      "Network calls issued by the rate-limited fetcher.",
		}, labels),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "litfetch",
			Subsystem: "fetch",
			Name:      "rate_limited_total",
			Help:      "Rate-limit responses received from upstream.",
		}, labels),
		RetriesExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "litfetch",
			Subsystem: "fetch",
			Name:      "retries_exhausted_total",
			Help:      "Requests rejected after exhausting rate-limit retries.",
		}, labels),
		TransportErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "litfetch",
			Subsystem: "fetch",
			Name:      "transport_errors_total",
			Help:      "Requests rejected by a transport failure.",
		}, labels),
		Coalesced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "litfetch",
			Subsystem: "fetch",
			Name:      "coalesced_total",
			Help:      "Callers that received the result of a shared in-flight request.",
		}, labels),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "litfetch",
			Subsystem: "fetch",
			Name:      "queue_depth",
			Help:      "Requests waiting to be dispatched.",
		}, labels),
		QueueWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "litfetch",
			Subsystem: "fetch",
			Name:      "queue_wait_seconds",
			Help:      "Time from enqueue to final dispatch.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.35, 1, 2.5, 5, 10, 30},
		}, labels),
	}
}
