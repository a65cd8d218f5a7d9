// Package metrics exposes Prometheus instrumentation for the licensing
// service. All metrics are low-cardinality: contract names and operation
// names only, never token ids or addresses.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/technosupport/ts-licensing/internal/events"
)

var (
	// OperationsTotal counts domain operations by contract, operation and
	// result (ok / rejected / error).
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensing_operations_total",
			Help: "Domain operations by contract, operation and result",
		},
		[]string{"contract", "op", "result"},
	)

	// EventsTotal counts emitted domain events by type.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensing_events_total",
			Help: "Domain events emitted by type",
		},
		[]string{"type"},
	)

	// ExecutionLatency tracks subscription execution latency.
	ExecutionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "licensing_execution_latency_ms",
			Help:    "Subscription execute latency in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// HTTPRequestsTotal counts API requests by route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensing_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "licensing_http_request_duration_ms",
			Help:    "HTTP request duration in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"method", "route"},
	)
)

func RecordOperation(contract, op, result string) {
	OperationsTotal.WithLabelValues(contract, op, result).Inc()
}

func RecordExecution(d time.Duration) {
	ExecutionLatency.Observe(float64(d.Milliseconds()))
}

func RecordHTTP(method, route string, status int, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(float64(d.Milliseconds()))
}

// Handler serves the scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EventSink counts every emitted domain event. Registered on the hub next
// to the NATS publisher.
type EventSink struct{}

func (EventSink) HandleEvent(e events.Event) {
	EventsTotal.WithLabelValues(string(e.Type)).Inc()
}
