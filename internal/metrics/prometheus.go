package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps the prometheus collectors for the dispatch runtime.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec

	activeRequests       prometheus.Gauge
	pendingCalls         prometheus.Gauge
	registeredOperations prometheus.Gauge
	uptime               prometheus.GaugeFunc

	recordsDroppedTotal      prometheus.Counter
	notificationsFailedTotal prometheus.Counter
}

// Default histogram buckets for invocation duration (in milliseconds)
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem. Before it
// runs, all recording helpers are no-ops.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of operation invocations",
			},
			[]string{"operation", "status"},
		),

		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_milliseconds",
				Help:      "Duration of operation invocations in milliseconds",
				Buckets:   buckets,
			},
			[]string{"operation", "status"},
		),

		activeRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_requests",
				Help:      "Number of currently active invocation requests",
			},
		),

		pendingCalls: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_calls",
				Help:      "Number of tracked begin/end calls awaiting pickup",
			},
		),

		registeredOperations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registered_operations",
				Help:      "Number of operations registered on this node",
			},
		),

		recordsDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocation_records_dropped_total",
				Help:      "Invocation records dropped because the batcher buffer was full",
			},
		),

		notificationsFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_failed_total",
				Help:      "Completion notifications that could not be published",
			},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the daemon started",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.invocationsTotal,
		pm.invocationDuration,
		pm.activeRequests,
		pm.pendingCalls,
		pm.registeredOperations,
		pm.uptime,
		pm.recordsDroppedTotal,
		pm.notificationsFailedTotal,
	)

	promMetrics = pm
}

// RecordPrometheusInvocation records one finished invocation.
func RecordPrometheusInvocation(operation, status string, durationMs int64) {
	if promMetrics == nil {
		return
	}
	promMetrics.invocationsTotal.WithLabelValues(operation, status).Inc()
	promMetrics.invocationDuration.WithLabelValues(operation, status).Observe(float64(durationMs))
}

// IncActiveRequests increments the active requests gauge.
func IncActiveRequests() {
	if promMetrics == nil {
		return
	}
	promMetrics.activeRequests.Inc()
}

// DecActiveRequests decrements the active requests gauge.
func DecActiveRequests() {
	if promMetrics == nil {
		return
	}
	promMetrics.activeRequests.Dec()
}

// SetPendingCalls sets the tracked pending call gauge.
func SetPendingCalls(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.pendingCalls.Set(float64(n))
}

// SetRegisteredOperations sets the registered operation gauge.
func SetRegisteredOperations(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.registeredOperations.Set(float64(n))
}

// RecordDroppedRecord counts an invocation record lost to backpressure.
func RecordDroppedRecord() {
	if promMetrics == nil {
		return
	}
	promMetrics.recordsDroppedTotal.Inc()
}

// RecordNotificationFailure counts a failed completion notification.
func RecordNotificationFailure() {
	if promMetrics == nil {
		return
	}
	promMetrics.notificationsFailedTotal.Inc()
}

// PrometheusHandler returns an HTTP handler for metrics scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the registry for custom collectors.
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
