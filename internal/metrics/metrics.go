package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// SolveRuns counts finished solve runs by outcome and stop reason.
	SolveRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cvrp_solve_runs_total", Help: "Finished solve runs by status and stop reason."},
		[]string{"status", "stop_reason"},
	)
	// SolveDuration is the wall time of a solve run in seconds.
	SolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "cvrp_solve_duration_seconds", Help: "Solve run duration in seconds.", Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900}},
	)
	// SolveGap is the percentage gap to the reference cost when one was supplied.
	SolveGap = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "cvrp_solve_gap_percent", Help: "Gap to the reference solution in percent.", Buckets: []float64{0, 0.5, 1, 2, 5, 10, 20, 50}},
	)
	// SolveIterations counts annealing iterations across all runs.
	SolveIterations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cvrp_anneal_iterations_total", Help: "Simulated annealing iterations."},
	)
	// ActiveSolves is the number of runs currently holding a worker slot.
	ActiveSolves = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "cvrp_active_solves", Help: "Solve runs in progress."},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(SolveRuns, SolveDuration, SolveGap, SolveIterations, ActiveSolves)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
