package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/flight-listing-service/internal/overload"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Listing queries by sort order. Watch for: traffic volume, rate() for QPS.
	FlightQueriesTotal *prometheus.CounterVec

	// Ingestion attempts by outcome (success, warning, unauthorized, invalid, error).
	IngestTotal *prometheus.CounterVec

	// Records written by the last successful ingestion.
	IngestedRecords prometheus.Gauge

	// SQLite operations by op and status. Watch for: storage_unavailable (pool/file problems).
	StorageOperationsTotal *prometheus.CounterVec

	// SQLite latency per operation. Watch for: replace p99 growth as the dataset grows.
	StorageOperationDuration *prometheus.HistogramVec

	// Remote object store calls by backend, op and status.
	RemoteOperationsTotal *prometheus.CounterVec

	// Remote object store latency. Watch for: p95 > 2s (upstream degradation).
	RemoteOperationDuration *prometheus.HistogramVec

	// Cold-start outcomes (warm, restored, fresh, local_only).
	ColdStartTotal *prometheus.CounterVec

	// Time spent materializing the local database before serving.
	ColdStartDuration prometheus.Histogram

	// Post-write flushes by status. Any error means the remote copy is stale.
	RemoteFlushTotal *prometheus.CounterVec

	// Flush latency (whole-file upload).
	RemoteFlushDuration prometheus.Histogram

	// Circuit breaker state per component: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions per component.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	FlightQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightQueriesTotal",
			Help: "Total number of flight listing queries",
		},
		[]string{"sortBy"},
	)
	IngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestTotal",
			Help: "Total number of ingestion attempts by outcome",
		},
		[]string{"status"},
	)
	IngestedRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingestedRecords",
			Help: "Number of records written by the last successful ingestion",
		},
	)
	StorageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storageOperationsTotal",
			Help: "Total number of SQLite operations",
		},
		[]string{"op", "status"},
	)
	StorageOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storageOperationDurationSeconds",
			Help:    "SQLite operation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"op"},
	)
	RemoteOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remoteOperationsTotal",
			Help: "Total number of remote object store calls",
		},
		[]string{"backend", "op", "status"},
	)
	RemoteOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remoteOperationDurationSeconds",
			Help:    "Remote object store latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"backend", "op"},
	)
	ColdStartTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldStartTotal",
			Help: "Cold-start recovery runs by outcome",
		},
		[]string{"outcome"},
	)
	ColdStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coldStartDurationSeconds",
			Help:    "Time spent materializing the local database at startup",
			Buckets: []float64{.01, .1, .5, 1, 2.5, 5, 10, 30},
		},
	)
	RemoteFlushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remoteFlushTotal",
			Help: "Post-write flushes of the local database by status",
		},
		[]string{"status"},
	)
	RemoteFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "remoteFlushDurationSeconds",
			Help:    "Whole-file upload latency in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		FlightQueriesTotal, IngestTotal, IngestedRecords,
		StorageOperationsTotal, StorageOperationDuration,
		RemoteOperationsTotal, RemoteOperationDuration,
		ColdStartTotal, ColdStartDuration,
		RemoteFlushTotal, RemoteFlushDuration,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with cfg.OverloadWindow. Uses same window as lifecycle.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(overload.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(overload.DenialCount(window)) },
			),
		)
	})
}

// SetCircuitBreakerState sets the state gauge for component. state follows
// circuitbreaker.State numbering.
func SetCircuitBreakerState(component string, state int) {
	CircuitBreakerState.WithLabelValues(component).Set(float64(state))
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toState int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	SetCircuitBreakerState(component, toState)
}

// RecordFlightQuery records a listing query for the given sort order.
func RecordFlightQuery(sortBy string) {
	FlightQueriesTotal.WithLabelValues(sortBy).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
