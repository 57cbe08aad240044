// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"

	// labelMotor partitions plan metrics by the flow that produced them.
	labelMotor = "motor"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// planRequestsTotal counts completed plan requests, partitioned by motor
	// and outcome: "ok", "timeout", "exhausted", or "error".
	planRequestsTotal *prometheus.CounterVec

	// planDurationSeconds records the wall-clock duration of each plan
	// request across all generate-validate-repair attempts.
	planDurationSeconds *prometheus.HistogramVec

	// planInflight tracks plan requests currently inside a motor, partitioned
	// by motor.
	planInflight *prometheus.GaugeVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		planRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nutria",
			Subsystem: "plan",
			Name:      "requests_total",
			Help:      "Total number of plan requests completed, partitioned by motor and outcome.",
		}, []string{labelMotor, "outcome"}),

		planDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nutria",
			Subsystem: "plan",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of plan requests across all repair attempts.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{labelMotor}),

		planInflight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nutria",
			Subsystem: "plan",
			Name:      "inflight",
			Help:      "Number of plan requests currently being generated, partitioned by motor.",
		}, []string{labelMotor}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nutria",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nutria",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument wraps next with per-request counter and latency recording under
// the given logical handler name.
func (s *Server) instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)

		s.metrics.httpRequestsTotal.
			WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.
			WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}
