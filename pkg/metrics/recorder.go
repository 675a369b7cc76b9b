// Package metrics provides the Prometheus recorder for run, task, and
// provider instrumentation plus a query service for PromQL summaries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records orchestration metrics. All methods are nil-safe so
// components can run without metrics in tests.
type Recorder struct {
	runsStarted       *prometheus.CounterVec
	runsFinished      *prometheus.CounterVec
	tasksFinished     *prometheus.CounterVec
	providerRequests  *prometheus.CounterVec
	providerRateLimit *prometheus.CounterVec
	eventsDropped     prometheus.Counter

	runDuration      prometheus.Histogram
	taskDuration     prometheus.Histogram
	approvalWait     prometheus.Histogram
	activeRuns       prometheus.Gauge
	queuedRuns       prometheus.Gauge
	pendingApprovals prometheus.Gauge
}

// NewRecorder creates a recorder registering on the default registry.
func NewRecorder() *Recorder {
	return &Recorder{
		runsStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automaker_runs_started_total",
				Help: "Total feature runs started by project and mode",
			},
			[]string{"project", "mode"},
		),
		runsFinished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automaker_runs_finished_total",
				Help: "Total feature runs finished by project and outcome",
			},
			[]string{"project", "outcome"},
		),
		tasksFinished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automaker_tasks_finished_total",
				Help: "Total tasks finished by outcome",
			},
			[]string{"outcome"},
		),
		providerRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automaker_provider_requests_total",
				Help: "Total provider executions by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		providerRateLimit: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automaker_provider_rate_limits_total",
				Help: "Total rate-limit classified provider errors",
			},
			[]string{"provider"},
		),
		eventsDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "automaker_events_dropped_total",
				Help: "Events dropped because a subscriber buffer was full",
			},
		),
		runDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "automaker_run_duration_seconds",
				Help:    "End-to-end feature run duration",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14),
			},
		),
		taskDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "automaker_task_duration_seconds",
				Help:    "Single task execution duration",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		approvalWait: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "automaker_approval_wait_seconds",
				Help:    "Time runs spent waiting for plan approval",
				Buckets: prometheus.ExponentialBuckets(1, 2, 16),
			},
		),
		activeRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "automaker_active_runs",
				Help: "Currently active feature runs",
			},
		),
		queuedRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "automaker_queued_runs",
				Help: "Feature runs queued behind the concurrency ceiling",
			},
		),
		pendingApprovals: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "automaker_pending_approvals",
				Help: "Plan approvals currently awaiting a decision",
			},
		),
	}
}

// RunStarted records a run admission.
func (r *Recorder) RunStarted(project, mode string) {
	if r == nil {
		return
	}
	r.runsStarted.WithLabelValues(project, mode).Inc()
}

// RunFinished records a run's terminal outcome and duration.
func (r *Recorder) RunFinished(project, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.runsFinished.WithLabelValues(project, outcome).Inc()
	r.runDuration.Observe(duration.Seconds())
}

// TaskFinished records one task's terminal outcome and duration.
func (r *Recorder) TaskFinished(outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.tasksFinished.WithLabelValues(outcome).Inc()
	r.taskDuration.Observe(duration.Seconds())
}

// ProviderRequest records one provider execution.
func (r *Recorder) ProviderRequest(provider, outcome string) {
	if r == nil {
		return
	}
	r.providerRequests.WithLabelValues(provider, outcome).Inc()
}

// ProviderRateLimited records a rate-limit classified provider error.
func (r *Recorder) ProviderRateLimited(provider string) {
	if r == nil {
		return
	}
	r.providerRateLimit.WithLabelValues(provider).Inc()
}

// EventDropped implements events.DropCounter.
func (r *Recorder) EventDropped() {
	if r == nil {
		return
	}
	r.eventsDropped.Inc()
}

// ApprovalWaited records how long a run waited at the approval gate.
func (r *Recorder) ApprovalWaited(d time.Duration) {
	if r == nil {
		return
	}
	r.approvalWait.Observe(d.Seconds())
}

// SetActiveRuns updates the active-run gauge.
func (r *Recorder) SetActiveRuns(n int) {
	if r == nil {
		return
	}
	r.activeRuns.Set(float64(n))
}

// SetQueuedRuns updates the queued-run gauge.
func (r *Recorder) SetQueuedRuns(n int) {
	if r == nil {
		return
	}
	r.queuedRuns.Set(float64(n))
}

// SetPendingApprovals updates the pending-approval gauge.
func (r *Recorder) SetPendingApprovals(n int) {
	if r == nil {
		return
	}
	r.pendingApprovals.Set(float64(n))
}
