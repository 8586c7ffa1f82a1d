package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы шагов и сессий для меток outcome/result.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSwallowed = "swallowed"
	OutcomeRetried   = "retried"

	OutcomePaused    = "paused"
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"

	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

var (
	// StepsTotal считает попытки шагов по исходу.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tollgate_steps_total",
		Help: "Step attempts by variant, step and outcome",
	}, []string{"variant", "step", "outcome"})

	// StepDuration измеряет длительность шагов (включая повторы).
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tollgate_step_duration_seconds",
		Help:    "Step duration including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"variant", "step"})

	// SessionsTotal считает сегменты сессий по фазе и исходу.
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tollgate_sessions_total",
		Help: "Session segments by variant, phase and outcome",
	}, []string{"variant", "phase", "outcome"})

	// GuardMatches считает найденные записи по уверенности.
	GuardMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tollgate_guard_matches_total",
		Help: "Existing records matched by the duplicate guard",
	}, []string{"confidence"})

	// GuardMutations считает временные изменения статусов.
	GuardMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tollgate_guard_mutations_total",
		Help: "Temporary record status mutations by result",
	}, []string{"result"})

	// Restorations считает восстановления исходных статусов.
	Restorations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tollgate_restorations_total",
		Help: "Undo entry restorations by result",
	}, []string{"result"})

	// HTTPRequests считает запросы к API.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tollgate_api_http_requests_total",
		Help: "Total HTTP requests handled by tollgate-api",
	}, []string{"method", "status"})
)
