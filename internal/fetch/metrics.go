package fetch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataview_page_fetch_seconds",
			Help:    "Time to execute a statement and fill one page.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"strategy", "backend"},
	)

	rowsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataview_fetched_rows_total",
			Help: "Rows read while filling pages, split by whether they were kept or skipped.",
		},
		[]string{"strategy", "disposition"},
	)
)

func instrument(strategy Strategy, backend string) func() time.Duration {
	timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		fetchHistogram.WithLabelValues(strategy.String(), backend).Observe(v)
	}))
	return timer.ObserveDuration
}

func countRows(strategy Strategy, kept, skipped int) {
	rowsCounter.WithLabelValues(strategy.String(), "kept").Add(float64(kept))
	rowsCounter.WithLabelValues(strategy.String(), "skipped").Add(float64(skipped))
}
