package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session lifecycle
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readtrack_session_transitions_total",
			Help: "Reading session transitions by kind (start, update, end, batch, auto_close)",
		},
		[]string{"transition"},
	)

	SessionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readtrack_session_errors_total",
			Help: "Failed lifecycle operations by operation and error kind",
		},
		[]string{"operation", "kind"},
	)

	StartConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readtrack_start_conflict_retries_total",
			Help: "Start operations retried after losing the active-session race",
		},
	)

	// Active-session cache
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readtrack_active_cache_requests_total",
			Help: "Active-session cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readtrack_active_cache_evictions_total",
			Help: "Evictions of closed sessions that failed and were deferred, or later succeeded on retry",
		},
		[]string{"result"},
	)

	// Write-back queue
	WriteBackPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "readtrack_writeback_pending",
			Help: "Position updates waiting in the write-back queue",
		},
	)

	WriteBackFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readtrack_writeback_flushed_total",
			Help: "Position updates written to the store by the write-back drain",
		},
	)

	WriteBackFlushErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readtrack_writeback_flush_errors_total",
			Help: "Failed write-back flushes",
		},
	)

	WriteBackFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "readtrack_writeback_flush_duration_seconds",
			Help:    "Duration of write-back flushes",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Orphan reaper
	ReaperClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readtrack_reaper_closed_sessions_total",
			Help: "Sessions force-closed by the reaper per policy",
		},
		[]string{"policy"},
	)

	// Scheduler
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readtrack_job_runs_total",
			Help: "Periodic job executions by job and status (ok, error, panic)",
		},
		[]string{"job", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "readtrack_job_duration_seconds",
			Help:    "Duration of periodic job executions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
