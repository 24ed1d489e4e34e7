// Package metrics exposes the process's Prometheus collectors. Scheduler
// stages record against these package-level vars directly, rather than
// threading a metrics handle through every call; the registry is global for
// the lifetime of the process, same as the default client_golang registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "janus_jobs_running",
			Help: "Number of flash jobs currently admitted and running",
		},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "janus_jobs_total",
			Help: "Total number of flash jobs that reached a terminal state",
		},
		[]string{"outcome"}, // done, failed, cancelled
	)

	BytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "janus_bytes_written_total",
			Help: "Total bytes written to target devices across all jobs",
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "janus_stage_duration_seconds",
			Help:    "Wall-clock duration of one stage run, by stage and outcome",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16), // 1s .. 32768s (~9h)
		},
		[]string{"stage", "outcome"},
	)

	PreflightRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "janus_preflight_rejections_total",
			Help: "Total number of batch targets rejected by the safety gate before admission",
		},
	)
)

// Handler serves the text-format exposition of the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
