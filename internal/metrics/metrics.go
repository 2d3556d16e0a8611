// Package metrics holds the Prometheus counters/timers (spec.md §4.8) shared
// across the core components, plus the trip-switch latch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments the authorization core reports.
// One instance is constructed at startup and threaded through every
// component, matching the teacher's per-subsystem Metrics struct shape.
type Metrics struct {
	Registry *prometheus.Registry

	EventsAppended   prometheus.Counter
	EventsFlushed    *prometheus.CounterVec
	FlushDuration    prometheus.Histogram
	BulkBatches      *prometheus.CounterVec
	StoreOperations  *prometheus.CounterVec
	StoreDuration    *prometheus.HistogramVec
	RouterDispatches *prometheus.CounterVec
	CacheEvictions   prometheus.Counter
	TripSwitchState  prometheus.Gauge

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all metrics for the authorization core against
// a fresh registry. Each call owns an independent registry (rather than
// registering into the global default) so that constructing more than one
// Metrics instance in a process — as the test suite does, one per test —
// never trips promauto's duplicate-registration panic.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		Registry: registry,
		EventsAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "accessfabric_events_appended_total",
			Help: "Total number of events appended to the write buffer.",
		}),
		EventsFlushed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accessfabric_events_flushed_total",
			Help: "Total number of events flushed to the bulk processor, by outcome.",
		}, []string{"outcome"}),
		FlushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "accessfabric_flush_duration_seconds",
			Help:    "Duration of buffer flush operations.",
			Buckets: prometheus.DefBuckets,
		}),
		BulkBatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accessfabric_bulk_batches_total",
			Help: "Total number of bulk event batches processed, by outcome.",
		}, []string{"outcome"}),
		StoreOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accessfabric_store_operations_total",
			Help: "Total number of event store operations, by kind, action, and outcome.",
		}, []string{"kind", "action", "outcome"}),
		StoreDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accessfabric_store_operation_duration_seconds",
			Help:    "Latency of event store operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "action"}),
		RouterDispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accessfabric_router_dispatches_total",
			Help: "Total number of router dispatches, by target (source, target, both) and outcome.",
		}, []string{"target", "outcome"}),
		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "accessfabric_cache_evictions_total",
			Help: "Total number of events evicted from the event cache.",
		}),
		TripSwitchState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "accessfabric_trip_switch_state",
			Help: "1 if the trip-switch is actuated (writes failing fast), 0 otherwise.",
		}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accessfabric_http_requests_total",
			Help: "Total number of HTTP requests handled, by route and status class.",
		}, []string{"route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accessfabric_http_request_duration_seconds",
			Help:    "Latency of HTTP requests, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}
