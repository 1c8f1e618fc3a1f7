// Package telemetry exposes the Prometheus collectors for pipeline runs and
// the dashboard HTTP server.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_runs_total",
			Help: "Total number of pipeline runs, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	rowsProcessed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracker_rows",
			Help: "Rows seen by the last run, labeled by stage.",
		},
		[]string{"stage"},
	)

	unresolvedGeocodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_unresolved_geocodes",
			Help: "Rows of the last export without coordinates.",
		},
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_stage_duration_seconds",
			Help:    "Histogram of pipeline stage durations, labeled by stage.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"stage"},
	)

	lastPublishTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_last_publish_timestamp_seconds",
			Help: "Unix time of the last successful publication.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun counts a finished run.
func ObserveRun(outcome string) {
	runsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRows records the row count seen at a stage.
func ObserveRows(stage string, n int) {
	rowsProcessed.WithLabelValues(stage).Set(float64(n))
}

// ObserveUnresolved records how many exported rows lack coordinates.
func ObserveUnresolved(n int) {
	unresolvedGeocodes.Set(float64(n))
}

// ObserveStage records how long a stage took.
func ObserveStage(stage string, d time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// ObservePublish stamps the time of a successful publication.
func ObservePublish(at time.Time) {
	lastPublishTimestamp.Set(float64(at.Unix()))
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			routePattern = rctx.RoutePattern()
		}
		if routePattern == "" {
			routePattern = "unknown"
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
