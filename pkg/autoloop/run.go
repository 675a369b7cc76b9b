package autoloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmedshikashaker/automaker/pkg/events"
	"github.com/ahmedshikashaker/automaker/pkg/persistence"
	"github.com/ahmedshikashaker/automaker/pkg/provider"
	"github.com/ahmedshikashaker/automaker/pkg/provider/llmerrors"
	"github.com/ahmedshikashaker/automaker/pkg/tasks"
	"github.com/ahmedshikashaker/automaker/pkg/utils"
)

// planPromptTokenLimit is the soft budget for planning prompts. Crossing
// it logs a warning rather than failing the run.
const planPromptTokenLimit = 32000

// outcome is a run's terminal disposition.
type outcome string

const (
	outcomeCompleted outcome = "completed"
	outcomeFailed    outcome = "failed"
	outcomeCancelled outcome = "cancelled"
	outcomeRejected  outcome = "rejected"
)

// runFeature drives one feature end to end. Nothing escapes past here
// uncaught: every terminal path cleans the registry, persists the
// outcome, and emits exactly one terminal event.
func (c *Controller) runFeature(ctx context.Context, rf *RunningFeature) {
	if instructions, err := utils.LoadUserInstructions(rf.req.ProjectPath); err != nil {
		c.logger.Warn("feature %s: failed to load project instructions: %v", rf.req.FeatureID, err)
	} else if instructions != "" {
		if rf.req.SystemPrompt != "" {
			rf.req.SystemPrompt += "\n\n" + instructions
		} else {
			rf.req.SystemPrompt = instructions
		}
	}

	req := rf.req
	c.logger.Info("feature %s starting (mode=%s, model=%s)", req.FeatureID, req.Mode, req.Model)
	c.persistStatus(req.FeatureID, persistence.FeatureStatusRunning, "")
	c.emit(events.TypeFeatureStarted, req.FeatureID, req.ProjectPath, map[string]any{
		"mode":  string(req.Mode),
		"model": req.Model,
	})

	res, err := c.executePipeline(ctx, rf)
	c.finishRun(rf, res, err)
}

// executePipeline is the per-run pipeline: resolve worktree, plan,
// approve, execute.
func (c *Controller) executePipeline(ctx context.Context, rf *RunningFeature) (outcome, error) {
	req := rf.req

	resolution := c.resolver.ResolveWorkDir(ctx, req.ProjectPath, req.BranchName, c.opts.UseWorktrees)
	rf.WorktreePath = resolution.WorktreePath
	workDir := resolution.WorkDir

	prov, err := c.providers.Get(req.Model)
	if err != nil {
		return outcomeFailed, err
	}

	var result outcome
	if req.Mode == ModeDirect {
		result, err = c.runDirect(ctx, rf, prov, workDir)
	} else {
		result, err = c.runPlanned(ctx, rf, prov, workDir)
	}
	if err != nil || result != outcomeCompleted {
		return result, err
	}

	if c.opts.AutoCommit && c.resolver.HasChanges(ctx, workDir) {
		sha, commitErr := c.resolver.CommitAll(ctx, workDir, fmt.Sprintf("feat: %s", req.FeatureID))
		if commitErr != nil {
			// Commit failure does not fail a completed run; the work is
			// on disk either way.
			c.logger.Warn("feature %s auto-commit failed: %v", req.FeatureID, commitErr)
		} else {
			c.logger.Info("feature %s auto-committed as %s", req.FeatureID, sha)
		}
	}
	return outcomeCompleted, nil
}

// runDirect executes the prompt end to end with no task breakdown.
func (c *Controller) runDirect(ctx context.Context, rf *RunningFeature, prov provider.Provider, workDir string) (outcome, error) {
	req := rf.req
	stream, err := prov.ExecuteQuery(ctx, provider.QueryOptions{
		Prompt:       req.Prompt,
		Model:        req.Model,
		Cwd:          workDir,
		SystemPrompt: req.SystemPrompt,
		MaxTurns:     req.MaxTurns,
	})
	if err != nil {
		return classifyOutcome(err)
	}

	res, err := provider.ProcessStream(ctx, stream, provider.Handlers{})
	if err != nil {
		return classifyOutcome(err)
	}
	if !res.Success {
		return outcomeFailed, fmt.Errorf("provider reported failure: %s", res.Result)
	}
	return outcomeCompleted, nil
}

// runPlanned generates a plan, routes it through the approval gate (or
// auto-approves in auto mode), and executes the parsed tasks. Rejection
// with feedback loops back to planning with a version bump.
func (c *Controller) runPlanned(ctx context.Context, rf *RunningFeature, prov provider.Provider, workDir string) (outcome, error) {
	req := rf.req
	version := 1
	feedback := ""

	var planContent string
	var taskList []tasks.ParsedTask

	for {
		if ctx.Err() != nil {
			return outcomeCancelled, nil
		}

		c.persistPlan(&persistence.PlanRecord{
			FeatureID: req.FeatureID,
			Status:    persistence.PlanStatusGenerating,
			Version:   version,
		})
		c.emit(events.TypePlanGenerating, req.FeatureID, req.ProjectPath, map[string]any{"version": version})

		content, err := c.generatePlan(ctx, req, prov, workDir, feedback)
		if err != nil {
			return classifyOutcome(err)
		}
		planContent = content
		taskList = tasks.ParseTasksFromSpec(planContent)

		c.persistPlan(&persistence.PlanRecord{
			FeatureID:  req.FeatureID,
			Status:     persistence.PlanStatusGenerated,
			Content:    planContent,
			Version:    version,
			TasksTotal: len(taskList),
		})
		c.persistTasks(req.FeatureID, taskList)
		c.emit(events.TypePlanGenerated, req.FeatureID, req.ProjectPath, map[string]any{
			"version":    version,
			"tasksTotal": len(taskList),
		})

		if req.Mode == ModeAuto {
			c.emit(events.TypePlanAutoApproved, req.FeatureID, req.ProjectPath, map[string]any{"version": version})
			c.persistPlanStatus(req.FeatureID, persistence.PlanStatusApproved, false)
			break
		}

		c.persistStatus(req.FeatureID, persistence.FeatureStatusAwaitingApproval, "")
		c.metrics.SetPendingApprovals(c.gate.PendingCount() + 1)
		waitStart := time.Now()
		decision, err := c.gate.WaitForApproval(ctx, req.FeatureID, req.ProjectPath)
		c.metrics.ApprovalWaited(time.Since(waitStart))
		c.metrics.SetPendingApprovals(c.gate.PendingCount())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return outcomeCancelled, nil
			}
			return outcomeFailed, err
		}
		c.persistStatus(req.FeatureID, persistence.FeatureStatusRunning, "")

		switch {
		case decision.Cancelled:
			return outcomeCancelled, nil
		case decision.Approved:
			if decision.EditedPlan != "" {
				planContent = decision.EditedPlan
				taskList = tasks.ParseTasksFromSpec(planContent)
				c.persistTasks(req.FeatureID, taskList)
			}
			feedback = decision.Feedback
			c.persistPlan(&persistence.PlanRecord{
				FeatureID:      req.FeatureID,
				Status:         persistence.PlanStatusApproved,
				Content:        planContent,
				Version:        version,
				ReviewedByUser: true,
				TasksTotal:     len(taskList),
			})
		case decision.Feedback != "":
			// Revision requested: regenerate with feedback.
			feedback = decision.Feedback
			version++
			continue
		default:
			c.persistPlanStatus(req.FeatureID, persistence.PlanStatusRejected, true)
			return outcomeRejected, nil
		}
		break
	}

	if len(taskList) == 0 {
		// A plan with no parsable tasks reduces to a single-shot run of
		// the plan itself.
		c.logger.Warn("feature %s plan has no parsable tasks, executing plan as one prompt", req.FeatureID)
		single := rf.req
		single.Prompt = planContent
		direct := *rf
		direct.req = single
		return c.runDirect(ctx, &direct, prov, workDir)
	}

	executor := tasks.NewExecutor(prov, c.bus, c.metrics, c.tokens)
	execResult, err := executor.ExecuteTasks(ctx, taskList, tasks.ExecutionInput{
		FeatureID:    req.FeatureID,
		ProjectPath:  req.ProjectPath,
		WorkDir:      workDir,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		PlanContent:  planContent,
		Feedback:     feedback,
		MaxTurns:     req.MaxTurns,
	})
	c.persistTaskProgress(req.FeatureID, taskList)

	switch {
	case execResult != nil && execResult.Status == tasks.ExecutionCancelled:
		return outcomeCancelled, nil
	case err != nil:
		return outcomeFailed, err
	default:
		return outcomeCompleted, nil
	}
}

// generatePlan runs the planning prompt through the stream normalizer
// and returns the generated plan text.
func (c *Controller) generatePlan(ctx context.Context, req RunRequest, prov provider.Provider, workDir, feedback string) (string, error) {
	prompt := BuildPlanningPrompt(req.Prompt, feedback)
	c.logger.Debug("feature %s planning prompt is %d tokens", req.FeatureID, c.tokens.CountTokens(prompt))
	if !c.tokens.WithinLimit(prompt, planPromptTokenLimit) {
		c.logger.Warn("feature %s planning prompt exceeds %d tokens", req.FeatureID, planPromptTokenLimit)
	}

	stream, err := prov.ExecuteQuery(ctx, provider.QueryOptions{
		Prompt:       prompt,
		Model:        req.Model,
		Cwd:          workDir,
		SystemPrompt: req.SystemPrompt,
		MaxTurns:     req.MaxTurns,
	})
	if err != nil {
		return "", err
	}
	return provider.CollectStreamText(ctx, stream)
}

// finishRun is the single exit path for a run: registry cleanup, gate
// cleanup, persistence, metrics, terminal event.
func (c *Controller) finishRun(rf *RunningFeature, result outcome, err error) {
	req := rf.req
	duration := time.Since(rf.StartTime)

	// A failed run may still hold a pending approval if the failure
	// raced a resolve; never orphan it.
	c.gate.Cancel(req.FeatureID)
	c.removeRunning(req.FeatureID)

	detail := ""
	if err != nil {
		detail = provider.UserFacingError(err)
	}

	switch result {
	case outcomeCompleted:
		c.persistStatus(req.FeatureID, persistence.FeatureStatusCompleted, "")
		c.emit(events.TypeFeatureComplete, req.FeatureID, req.ProjectPath, map[string]any{
			"durationSeconds": duration.Seconds(),
		})
		c.logger.Info("feature %s completed in %s", req.FeatureID, duration.Round(time.Second))
	case outcomeCancelled:
		c.persistStatus(req.FeatureID, persistence.FeatureStatusCancelled, "")
		c.emit(events.TypeFeatureCancelled, req.FeatureID, req.ProjectPath, nil)
		c.logger.Info("feature %s cancelled after %s", req.FeatureID, duration.Round(time.Second))
	case outcomeRejected:
		c.persistStatus(req.FeatureID, persistence.FeatureStatusRejected, "plan rejected")
		c.emit(events.TypeFeatureError, req.FeatureID, req.ProjectPath, map[string]any{
			"error":    "plan rejected",
			"rejected": true,
		})
		c.logger.Info("feature %s plan rejected", req.FeatureID)
	default:
		c.persistStatus(req.FeatureID, persistence.FeatureStatusFailed, detail)
		payload := map[string]any{"error": detail}
		classified := llmerrors.Classify(err)
		if classified != nil {
			payload["errorType"] = classified.Type.String()
			payload["isRateLimit"] = classified.IsRateLimit()
			if classified.RetryAfter > 0 {
				payload["retryAfterSeconds"] = classified.RetryAfter.Seconds()
			}
		}
		c.emit(events.TypeFeatureError, req.FeatureID, req.ProjectPath, payload)
		c.logger.Error("feature %s failed: %s", req.FeatureID, detail)
	}

	c.metrics.RunFinished(req.ProjectPath, string(result), duration)
	if c.store != nil {
		if perr := c.store.RecordRunOutcome(req.FeatureID, string(result), duration, detail); perr != nil {
			c.logger.Warn("failed to record outcome for feature %s: %v", req.FeatureID, perr)
		}
	}
}

// classifyOutcome maps an error to a terminal disposition: cancellation
// is never reported through the failure channel.
func classifyOutcome(err error) (outcome, error) {
	if llmerrors.IsCanceled(err) {
		return outcomeCancelled, nil
	}
	return outcomeFailed, err
}

func (c *Controller) persistStatus(featureID, status, errorMessage string) {
	if c.store == nil {
		return
	}
	if err := c.store.UpdateFeatureStatus(featureID, status, errorMessage); err != nil {
		c.logger.Warn("failed to persist status %s for feature %s: %v", status, featureID, err)
	}
}

func (c *Controller) persistPlan(p *persistence.PlanRecord) {
	if c.store == nil {
		return
	}
	if err := c.store.UpsertPlan(p); err != nil {
		c.logger.Warn("failed to persist plan for feature %s: %v", p.FeatureID, err)
	}
}

func (c *Controller) persistPlanStatus(featureID, status string, reviewed bool) {
	if c.store == nil {
		return
	}
	plan, err := c.store.GetPlan(featureID)
	if err != nil || plan == nil {
		return
	}
	plan.Status = status
	plan.ReviewedByUser = plan.ReviewedByUser || reviewed
	if err := c.store.UpsertPlan(plan); err != nil {
		c.logger.Warn("failed to persist plan status for feature %s: %v", featureID, err)
	}
}

func (c *Controller) persistTasks(featureID string, taskList []tasks.ParsedTask) {
	if c.store == nil {
		return
	}
	if err := c.store.ReplaceTasks(featureID, taskList); err != nil {
		c.logger.Warn("failed to persist tasks for feature %s: %v", featureID, err)
	}
}

func (c *Controller) persistTaskProgress(featureID string, taskList []tasks.ParsedTask) {
	if c.store == nil {
		return
	}
	for _, t := range taskList {
		if t.Status == tasks.StatusPending {
			continue
		}
		if err := c.store.UpdateTaskStatus(featureID, t.ID, t.Status); err != nil {
			c.logger.Debug("failed to persist task %s status: %v", t.ID, err)
		}
	}
}
