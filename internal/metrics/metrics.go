// Package metrics exposes Prometheus instruments for the job pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lapse_jobs_submitted_total",
		Help: "Total number of jobs accepted, by kind",
	}, []string{"kind"})

	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lapse_jobs_processed_total",
		Help: "Total number of jobs reaching a terminal state, by kind and status",
	}, []string{"kind", "status"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lapse_job_duration_seconds",
		Help:    "Wall time from claim to terminal state",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"kind"})

	FFmpegInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lapse_ffmpeg_invocations_total",
		Help: "Total number of ffmpeg invocations, by result",
	}, []string{"result"})

	FramesRenderedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lapse_frames_rendered_total",
		Help: "Total number of stills encoded into timelapses",
	})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lapse_active_jobs",
		Help: "Number of jobs currently executing (0 or 1)",
	})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lapse_queue_depth",
		Help: "Jobs per kind and status at the last status poll",
	}, []string{"kind", "status"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
