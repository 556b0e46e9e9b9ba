package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "morada"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code class.",
		},
		[]string{"endpoint", "code"},
	)

	bookingOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_operations_total",
			Help:      "Lifecycle operations by kind and result.",
		},
		[]string{"operation", "result"},
	)

	reconcileRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_records_total",
			Help:      "External records processed by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent reconciling one batch.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	indexedRanges = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_ranges",
			Help:      "Active booking ranges held by the interval index.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingOps, reconcileRecords, reconcileDuration, indexedRanges)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string, status int) {
	httpRequests.WithLabelValues(endpoint, codeClass(status)).Inc()
}

// IncBookingOp counts a lifecycle call; result is "ok" or a short error kind.
func IncBookingOp(operation, result string) {
	bookingOps.WithLabelValues(operation, result).Inc()
}

func IncReconcileRecord(channel, outcome string) {
	reconcileRecords.WithLabelValues(channel, outcome).Inc()
}

func ObserveReconcile(channel string, elapsed time.Duration) {
	reconcileDuration.WithLabelValues(channel).Observe(elapsed.Seconds())
}

func SetIndexedRanges(n int) {
	indexedRanges.Set(float64(n))
}

func codeClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
