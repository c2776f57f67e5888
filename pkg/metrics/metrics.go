package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job record lifecycle metrics
	JobsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobflow_jobs_created_total",
			Help: "Total number of job records created",
		},
	)

	JobsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobflow_jobs_deleted_total",
			Help: "Total number of job records deleted",
		},
	)

	JobUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobflow_job_updates_total",
			Help: "Total number of job record updates",
		},
	)

	// Recovery sweep metrics
	RecoverySweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobflow_recovery_sweep_duration_seconds",
			Help:    "Time taken for a recovery sweep to reach a fixed point",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecoverySweepPasses = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobflow_recovery_sweep_passes",
			Help:    "Number of passes a recovery sweep took to reach a fixed point",
			Buckets: []float64{1, 2, 3, 4, 5, 10},
		},
	)

	RecoveryJobsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobflow_recovery_orphans_deleted_total",
			Help: "Total number of orphaned job records deleted by the recovery sweep",
		},
	)

	// Worker chain metrics
	WorkerChainLength = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobflow_worker_chain_length",
			Help:    "Number of commands a single worker invocation executed: the job's own plus one per folded successor",
			Buckets: []float64{1, 2, 3, 5, 10, 25, 50, 100},
		},
	)

	WorkerFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobflow_worker_failures_total",
			Help: "Total number of worker invocations that ended in the FAILED state",
		},
	)

	WorkerRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobflow_worker_run_duration_seconds",
			Help:    "Wall-clock time of one worker invocation, from LOADED to terminal state",
			Buckets: prometheus.DefBuckets,
		},
	)

	// File namespace metrics
	FileBytesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobflow_file_bytes_written_total",
			Help: "Total bytes written to the file namespaces, by namespace",
		},
		[]string{"namespace"}, // "shared" or "per_job"
	)

	ConcurrentFileModificationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobflow_concurrent_file_modifications_total",
			Help: "Total number of ConcurrentFileModification errors surfaced to callers",
		},
	)
)

func init() {
	prometheus.MustRegister(
		JobsCreatedTotal,
		JobsDeletedTotal,
		JobUpdatesTotal,
		RecoverySweepDuration,
		RecoverySweepPasses,
		RecoveryJobsDeleted,
		WorkerChainLength,
		WorkerFailuresTotal,
		WorkerRunDuration,
		FileBytesWrittenTotal,
		ConcurrentFileModificationsTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to the histogram in vec
// selected by labels.
func (t *Timer) ObserveDurationVec(vec *prometheus.HistogramVec, labels ...string) {
	vec.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
