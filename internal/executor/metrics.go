package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataview_jobs_total",
			Help: "Finished statement jobs by kind and final state.",
		},
		[]string{"kind", "state"},
	)

	jobHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataview_job_seconds",
			Help:    "Wall time of statement jobs, excluding time spent queued.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"kind"},
	)

	queueGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dataview_jobs_queued",
		Help: "Statement jobs waiting for their connection.",
	})
)

func instrument(kind Kind) func() time.Duration {
	timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		jobHistogram.WithLabelValues(kind.String()).Observe(v)
	}))
	return timer.ObserveDuration
}
