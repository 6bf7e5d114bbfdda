package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Import metrics
var (
	// ImportRunsTotal tracks import runs by outcome
	ImportRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_runs_total",
			Help: "Total number of import runs by outcome",
		},
		[]string{"outcome"},
	)

	// ImportRunDuration tracks import run duration
	ImportRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "import_run_duration_seconds",
			Help:    "Import run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	// ImportRowsTotal tracks vulnerability rows by disposition
	ImportRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_rows_total",
			Help: "Total number of imported vulnerability rows by disposition",
		},
		[]string{"disposition"},
	)

	// ImportAssetsTotal tracks assets touched by an import
	ImportAssetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_assets_total",
			Help: "Total number of assets touched by imports",
		},
		[]string{"disposition"},
	)

	// RemediationsTotal tracks CVEs that disappeared from an asset feed
	RemediationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "remediations_total",
			Help: "Total number of remediated vulnerabilities detected by imports",
		},
	)

	// RemediationPublishFailures tracks dropped remediation events
	RemediationPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "remediation_publish_failures_total",
			Help: "Total number of remediation events that could not be published",
		},
	)
)

// Exception metrics
var (
	// ExceptionTransitionsTotal tracks exception request lifecycle transitions
	ExceptionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exception_transitions_total",
			Help: "Total number of exception request transitions by action",
		},
		[]string{"action"},
	)

	// ExceptionSweepRunsTotal tracks expiry sweep runs by outcome
	ExceptionSweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exception_sweep_runs_total",
			Help: "Total number of exception expiry sweep runs by outcome",
		},
		[]string{"outcome"},
	)

	// ExceptionSweepExpiredTotal tracks requests flipped to expired by sweeps
	ExceptionSweepExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exception_sweep_expired_total",
			Help: "Total number of exception requests expired by sweeps",
		},
	)
)

// Configuration metrics
var (
	// ConfigUpdatesTotal tracks reminder configuration updates
	ConfigUpdatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "config_updates_total",
			Help: "Total number of reminder configuration updates",
		},
	)

	// ConfigCacheReads tracks configuration reads by source
	ConfigCacheReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "config_cache_reads_total",
			Help: "Total number of configuration reads by source",
		},
		[]string{"source"},
	)
)
