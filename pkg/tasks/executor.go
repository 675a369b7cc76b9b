package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/ahmedshikashaker/automaker/pkg/events"
	"github.com/ahmedshikashaker/automaker/pkg/logx"
	"github.com/ahmedshikashaker/automaker/pkg/metrics"
	"github.com/ahmedshikashaker/automaker/pkg/provider"
	"github.com/ahmedshikashaker/automaker/pkg/provider/llmerrors"
	"github.com/ahmedshikashaker/automaker/pkg/utils"
)

// outputSummaryLimit bounds the per-task output carried in events.
const outputSummaryLimit = 500

// Executor drives an approved plan's tasks strictly sequentially against
// a provider, emitting exactly one started and one terminal event per
// task. A failure halts the remaining sequence; a cancellation between
// tasks yields a cancelled outcome, never a failed one.
type Executor struct {
	provider provider.Provider
	bus      *events.Bus
	metrics  *metrics.Recorder
	tokens   *utils.TokenCounter
	logger   *logx.Logger
}

// NewExecutor creates a task executor. bus, metrics, and tokens may be
// nil in tests.
func NewExecutor(p provider.Provider, bus *events.Bus, rec *metrics.Recorder, tokens *utils.TokenCounter) *Executor {
	return &Executor{
		provider: p,
		bus:      bus,
		metrics:  rec,
		tokens:   tokens,
		logger:   logx.NewLogger("task-executor"),
	}
}

// ExecuteTasks runs tasks in array order. Callers are responsible for any
// phase ordering already being reflected in that order.
func (e *Executor) ExecuteTasks(ctx context.Context, taskList []ParsedTask, in ExecutionInput) (*ExecutionResult, error) {
	result := &ExecutionResult{
		Status:  ExecutionCompleted,
		Outputs: make(map[string]string),
	}

	for i := range taskList {
		// Cancellation is observed between tasks; a cancelled run is a
		// distinct outcome, not a failure.
		if ctx.Err() != nil {
			result.Status = ExecutionCancelled
			e.logger.Info("feature %s cancelled after %d of %d tasks", in.FeatureID, result.Completed, len(taskList))
			return result, nil
		}

		task := &taskList[i]
		task.Status = StatusInProgress
		started := time.Now()

		e.emit(events.TypeTaskStarted, in, map[string]any{
			"taskId":     task.ID,
			"taskIndex":  i,
			"tasksTotal": len(taskList),
		})
		e.logger.Info("feature %s starting task %s (%d/%d)", in.FeatureID, task.ID, i+1, len(taskList))

		output, err := e.runTask(ctx, taskList, i, in)
		if err != nil {
			if llmerrors.IsCanceled(err) {
				task.Status = StatusPending
				result.Status = ExecutionCancelled
				e.logger.Info("feature %s cancelled during task %s", in.FeatureID, task.ID)
				return result, nil
			}

			task.Status = StatusFailed
			result.Status = ExecutionFailed
			result.FailedTaskID = task.ID
			e.metrics.TaskFinished("failed", time.Since(started))
			e.emit(events.TypeTaskFailed, in, map[string]any{
				"taskId":     task.ID,
				"taskIndex":  i,
				"tasksTotal": len(taskList),
				"error":      provider.UserFacingError(err),
			})
			e.logger.Error("feature %s task %s failed: %v", in.FeatureID, task.ID, err)
			return result, fmt.Errorf("task %s failed: %w", task.ID, err)
		}

		task.Status = StatusCompleted
		result.Completed++
		result.Outputs[task.ID] = summarize(output)
		e.metrics.TaskFinished("completed", time.Since(started))
		e.emit(events.TypeTaskComplete, in, map[string]any{
			"taskId":     task.ID,
			"taskIndex":  i,
			"tasksTotal": len(taskList),
			"output":     result.Outputs[task.ID],
		})

		if task.Phase != "" && phaseEnds(taskList, i) {
			e.emit(events.TypePhaseComplete, in, map[string]any{
				"phase":  task.Phase,
				"taskId": task.ID,
			})
			e.logger.Info("feature %s phase %q complete", in.FeatureID, task.Phase)
		}
	}

	e.logger.Info("feature %s completed all %d tasks", in.FeatureID, len(taskList))
	return result, nil
}

// runTask executes one task's provider call through the stream
// normalizer and returns the accumulated output text.
func (e *Executor) runTask(ctx context.Context, taskList []ParsedTask, index int, in ExecutionInput) (string, error) {
	planContent := e.tokens.TruncateToLimit(in.PlanContent, planContextTokenLimit)
	prompt := BuildTaskPrompt(taskList, index, planContent, in.Feedback)
	e.logger.Debug("task %s prompt is %d tokens", taskList[index].ID, PromptTokens(e.tokens, prompt))

	stream, err := e.provider.ExecuteQuery(ctx, provider.QueryOptions{
		Prompt:       prompt,
		Model:        in.Model,
		Cwd:          in.WorkDir,
		SystemPrompt: in.SystemPrompt,
		MaxTurns:     in.MaxTurns,
	})
	if err != nil {
		e.recordProviderOutcome(err)
		return "", err
	}

	res, err := provider.ProcessStream(ctx, stream, provider.Handlers{})
	e.recordProviderOutcome(err)
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", llmerrors.NewError(llmerrors.ErrorTypeUnknown, fmt.Sprintf("provider reported failure: %s", summarize(res.Result)))
	}
	return res.Text, nil
}

func (e *Executor) recordProviderOutcome(err error) {
	switch {
	case err == nil:
		e.metrics.ProviderRequest(e.provider.Name(), "success")
	case llmerrors.IsCanceled(err):
		e.metrics.ProviderRequest(e.provider.Name(), "cancelled")
	default:
		e.metrics.ProviderRequest(e.provider.Name(), "error")
		if llmerrors.Is(err, llmerrors.ErrorTypeRateLimit) {
			e.metrics.ProviderRateLimited(e.provider.Name())
		}
	}
}

// phaseEnds reports whether taskList[i] is the last task of its phase.
func phaseEnds(taskList []ParsedTask, i int) bool {
	if i == len(taskList)-1 {
		return true
	}
	return taskList[i+1].Phase != taskList[i].Phase
}

func summarize(text string) string {
	if len(text) <= outputSummaryLimit {
		return text
	}
	return text[:outputSummaryLimit] + "..."
}

func (e *Executor) emit(t events.Type, in ExecutionInput, payload map[string]any) {
	if e.bus == nil {
		return
	}
	e.bus.Emit(events.New(t, in.FeatureID, in.ProjectPath, payload))
}
