// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	// status is "ok" or the failure code
	ValuationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valuations_total",
			Help: "Valuation method runs by outcome",
		},
		[]string{"method", "status"},
	)

	ValuationConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "valuation_confidence",
			Help:    "Confidence of successful valuations",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
		[]string{"method"},
	)

	RepositoryCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_cache_lookups_total",
			Help: "Property and comparables cache lookups by result",
		},
		[]string{"kind", "result"},
	)
)
