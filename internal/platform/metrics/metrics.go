package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// result: hit, miss, shared
	RoutingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_cache_lookups_total",
			Help: "Cached route lookups by result",
		},
		[]string{"result"},
	)

	// outcome: success, http_error, malformed, no_route, rejected
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_provider_requests_total",
			Help: "Routing provider calls by outcome",
		},
		[]string{"outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "routing_provider_circuit_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	RoutesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimizer_routes_created_total",
			Help: "Routes persisted by the optimizer by route type",
		},
		[]string{"type"},
	)

	// reason: no_route, persistence, sequencing, other
	GroupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimizer_group_failures_total",
			Help: "Carpool groups that produced no route",
		},
		[]string{"reason"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "operation_duration_seconds",
			Help:    "Duration of timed operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "status"},
	)
)
