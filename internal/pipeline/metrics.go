package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var stepDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "xspider_pipeline_step_duration_seconds",
		Help:    "Wall time of pipeline steps.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	},
	[]string{"step", "result"},
)
