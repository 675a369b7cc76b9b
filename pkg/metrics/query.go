package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// RunSummary aggregates run and task metrics over a query window.
type RunSummary struct {
	Window          time.Duration `json:"-"`
	RunsCompleted   int64         `json:"runs_completed"`
	RunsFailed      int64         `json:"runs_failed"`
	TasksCompleted  int64         `json:"tasks_completed"`
	TaskP95Seconds  float64       `json:"task_p95_seconds"`
	RateLimitEvents int64         `json:"rate_limit_events"`
}

// QueryService answers PromQL summary queries for the status command.
// It requires a Prometheus server scraping the automaker /metrics
// endpoint; without one the status command simply omits summaries.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a query service against the given Prometheus
// base URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// scalar runs a query and returns the first vector sample, 0 when empty.
func (q *QueryService) scalar(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("query %q failed: %w", query, err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}

// GetRunSummary aggregates run throughput, task throughput, p95 task
// duration, and rate-limit events over the window.
func (q *QueryService) GetRunSummary(ctx context.Context, window time.Duration) (*RunSummary, error) {
	w := model.Duration(window).String()
	summary := &RunSummary{Window: window}

	completed, err := q.scalar(ctx, fmt.Sprintf(`sum(increase(automaker_runs_finished_total{outcome="completed"}[%s]))`, w))
	if err != nil {
		return nil, err
	}
	summary.RunsCompleted = int64(completed)

	failed, err := q.scalar(ctx, fmt.Sprintf(`sum(increase(automaker_runs_finished_total{outcome="failed"}[%s]))`, w))
	if err != nil {
		return nil, err
	}
	summary.RunsFailed = int64(failed)

	tasks, err := q.scalar(ctx, fmt.Sprintf(`sum(increase(automaker_tasks_finished_total{outcome="completed"}[%s]))`, w))
	if err != nil {
		return nil, err
	}
	summary.TasksCompleted = int64(tasks)

	p95, err := q.scalar(ctx, fmt.Sprintf(`histogram_quantile(0.95, sum(rate(automaker_task_duration_seconds_bucket[%s])) by (le))`, w))
	if err != nil {
		return nil, err
	}
	summary.TaskP95Seconds = p95

	rateLimits, err := q.scalar(ctx, fmt.Sprintf(`sum(increase(automaker_provider_rate_limits_total[%s]))`, w))
	if err != nil {
		return nil, err
	}
	summary.RateLimitEvents = int64(rateLimits)

	return summary, nil
}
