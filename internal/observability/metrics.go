// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Adapter metrics
	AdapterOps       *prometheus.CounterVec
	AdapterOpErrors  *prometheus.CounterVec
	AdapterOpLatency *prometheus.HistogramVec
	MovementsFetched *prometheus.CounterVec
	PositionsFetched *prometheus.CounterVec

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec

	// Metadata metrics
	MetadataBuilds    *prometheus.CounterVec
	MetadataCacheHits prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulSnapshot prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "lending_adapters"
	}

	return &Metrics{
		AdapterOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "operations_total",
			Help:      "Total number of adapter operations by product and operation",
		}, []string{"product", "operation"}),
		AdapterOpErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "operation_errors_total",
			Help:      "Total number of failed adapter operations by product and operation",
		}, []string{"product", "operation"}),
		AdapterOpLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "operation_latency_seconds",
			Help:      "Adapter operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"product", "operation"}),
		MovementsFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "movements_fetched_total",
			Help:      "Total number of movements fetched by product and kind",
		}, []string{"product", "kind"}),
		PositionsFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "positions_fetched_total",
			Help:      "Total number of non-zero positions fetched by product",
		}, []string{"product"}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "Ethereum RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		MetadataBuilds: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "builds_total",
			Help:      "Total number of metadata builds by product",
		}, []string{"product"}),
		MetadataCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "cache_hits_total",
			Help:      "Total number of metadata builds served from the file cache",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulSnapshot: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_snapshot_timestamp",
			Help:      "Unix timestamp of last successful snapshot run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordAdapterOp records one adapter operation with its outcome.
func RecordAdapterOp(product, operation string, seconds float64, err error) {
	DefaultMetrics.AdapterOps.WithLabelValues(product, operation).Inc()
	DefaultMetrics.AdapterOpLatency.WithLabelValues(product, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.AdapterOpErrors.WithLabelValues(product, operation).Inc()
	}
}

// RecordMovements records fetched movements by kind.
func RecordMovements(product, kind string, count int) {
	DefaultMetrics.MovementsFetched.WithLabelValues(product, kind).Add(float64(count))
}

// RecordPositions records fetched non-zero positions.
func RecordPositions(product string, count int) {
	DefaultMetrics.PositionsFetched.WithLabelValues(product).Add(float64(count))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordMetadataBuild records a metadata build, cached or not.
func RecordMetadataBuild(product string, fromCache bool) {
	DefaultMetrics.MetadataBuilds.WithLabelValues(product).Inc()
	if fromCache {
		DefaultMetrics.MetadataCacheHits.Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
