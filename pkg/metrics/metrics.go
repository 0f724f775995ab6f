// Package metrics holds the process's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry served on /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	HTTPRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "camcapprod_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camcapprod_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	BackendOps = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "camcapprod_backend_operations_total",
		Help: "Storage backend calls by backend, operation and result.",
	}, []string{"backend", "op", "result"})

	MergeOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "camcapprod_merge_total",
		Help: "Merged reads by outcome (remote, local_only, degraded, failed).",
	}, []string{"outcome"})

	Transitions = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "camcapprod_sop_transitions_total",
		Help: "SOP workflow actions by action and result.",
	}, []string{"action", "result"})

	CaptureDecisions = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "camcapprod_capture_frames_total",
		Help: "Captured frames by gate decision.",
	}, []string{"decision"})

	BackendReachable = factory.NewGauge(prometheus.GaugeOpts{
		Name: "camcapprod_backend_reachable",
		Help: "1 when the active remote backend answered the last probe.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Result labels an operation outcome.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
