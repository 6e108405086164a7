package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cvrpsolver/internal/metrics"
)

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() http.Handler {
	metrics.RegisterDefault()
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, instrument(pattern, h))
	}

	// Solving
	handle("/v1/solve", s.SolveHandler)
	handle("/v1/runs", s.RunsHandler)
	handle("/v1/runs/", s.RunByIDHandler) // includes /solution, /webhooks, /events/stream
	handle("/v1/optimizer/config", s.OptimizerConfigHandler)

	// Streaming
	mux.HandleFunc("/v1/ws", s.WSHandler)

	// Admin
	handle("/v1/admin/solve-metrics", s.SolveMetricsHandler)

	// Health
	handle("/healthz", s.HealthHandler)
	handle("/readyz", s.ReadyHandler)
	handle("/debug", s.DebugJSON)

	// Docs
	handle("/openapi.yaml", s.OpenAPIHandler)
	handle("/docs", s.DocsHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return logMiddleware(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrument records request count and latency labelled by route pattern.
func instrument(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		code := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, pattern, code).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, pattern, code).Observe(time.Since(start).Seconds())
	})
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[API] %s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}
