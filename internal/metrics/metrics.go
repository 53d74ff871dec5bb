// Package metrics exposes Prometheus instrumentation shared by the gateway
// and the worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsSubmitted counts accepted download submissions.
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dl_jobs_submitted_total",
		Help: "Number of download jobs accepted for dispatch.",
	})

	// JobsCompleted counts jobs that reached the completed state.
	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dl_jobs_completed_total",
		Help: "Number of download jobs finished successfully.",
	})

	// JobsFailed counts jobs that reached the failed state.
	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dl_jobs_failed_total",
		Help: "Number of download jobs that ended in failure.",
	})

	// ActiveStreams tracks currently open progress stream connections.
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dl_active_progress_streams",
		Help: "Number of open progress stream connections.",
	})

	// DownloadDuration observes wall-clock transfer time per job.
	DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dl_download_duration_seconds",
		Help:    "Duration of download jobs from pickup to terminal state.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
