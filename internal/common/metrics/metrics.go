// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WizardStepMoves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizard_step_moves_total",
			Help: "Wizard step changes by direction and landing step",
		},
		[]string{"direction", "step"},
	)

	WizardValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizard_validation_failures_total",
			Help: "Advance or submit attempts blocked by field validation",
		},
		[]string{"step"},
	)

	DraftSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizard_draft_saves_total",
			Help: "Draft saves by operation (create, update) and outcome",
		},
		[]string{"operation", "outcome"},
	)

	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizard_submissions_total",
			Help: "Final submissions by outcome",
		},
		[]string{"outcome"},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "application_status_transitions_total",
			Help: "Status transitions recorded, by new status classification",
		},
		[]string{"classification"},
	)

	PersistenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "application_store_duration_seconds",
			Help:    "Duration of application store calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "API request duration by route pattern and status code",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

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
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeBlocked = "blocked"
)
