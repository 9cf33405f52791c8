package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts upstream responses by operation and outcome.
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xspider_upstream_requests_total",
		Help: "Upstream requests by operation and classified outcome",
	}, []string{"operation", "outcome"})

	// requestDuration tracks round-trip latency including the body read.
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xspider_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	}, []string{"operation"})

	// retriesTotal counts retries by the reason that triggered them.
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xspider_upstream_retries_total",
		Help: "Upstream retries by reason",
	}, []string{"reason"})
)
