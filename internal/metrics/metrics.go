// Package metrics exposes the prometheus counters/histograms the HTTP
// surface and scheduler instrument themselves with, grounded on the
// teacher's pkg/metrics usage pattern of package-level collectors registered
// once against the default registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPRequests counts every request the engine's router served, labeled by
// method, route, and response status.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "digitaltwin_http_requests_total",
	Help: "Total HTTP requests served by the engine, labeled by method/route/status.",
}, []string{"method", "route", "status"})

// HTTPRequestDuration observes request latency, labeled by method and route.
var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "digitaltwin_http_request_duration_seconds",
	Help:    "HTTP request latency in seconds, labeled by method/route.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route"})

// JobsDispatched counts scheduler job dispatches, labeled by queue and
// outcome ("success"/"error").
var JobsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "digitaltwin_jobs_dispatched_total",
	Help: "Total jobs dispatched by the scheduler, labeled by queue/outcome.",
}, []string{"queue", "outcome"})

// JobDuration observes job execution latency, labeled by queue.
var JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "digitaltwin_job_duration_seconds",
	Help:    "Scheduler job execution latency in seconds, labeled by queue.",
	Buckets: prometheus.DefBuckets,
}, []string{"queue"})

// ObserveHTTP records one request's outcome against the counter/histogram
// pair above.
func ObserveHTTP(method, route string, status int, started time.Time) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(started).Seconds())
}

// ObserveJob records one job dispatch's outcome against the counter/
// histogram pair above.
func ObserveJob(queueName string, err error, started time.Time) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	JobsDispatched.WithLabelValues(queueName, outcome).Inc()
	JobDuration.WithLabelValues(queueName).Observe(time.Since(started).Seconds())
}
