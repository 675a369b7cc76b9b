// Package autoloop implements the run scheduler: it owns the registry of
// in-flight feature runs, enforces the per-project concurrency ceiling,
// and drives each run through worktree resolution, planning, the
// approval gate, and task execution.
package autoloop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahmedshikashaker/automaker/pkg/approval"
	"github.com/ahmedshikashaker/automaker/pkg/events"
	"github.com/ahmedshikashaker/automaker/pkg/logx"
	"github.com/ahmedshikashaker/automaker/pkg/metrics"
	"github.com/ahmedshikashaker/automaker/pkg/persistence"
	"github.com/ahmedshikashaker/automaker/pkg/provider"
	"github.com/ahmedshikashaker/automaker/pkg/utils"
	"github.com/ahmedshikashaker/automaker/pkg/worktree"
)

// Mode selects the pipeline shape for a run.
type Mode string

const (
	// ModePlan generates a plan, waits for human approval, then executes
	// the approved tasks.
	ModePlan Mode = "plan"
	// ModeAuto generates a plan, auto-approves it, then executes tasks.
	ModeAuto Mode = "auto"
	// ModeDirect skips planning and runs the prompt end to end.
	ModeDirect Mode = "direct"
)

// RunRequest is one feature submission.
type RunRequest struct {
	FeatureID    string
	ProjectPath  string
	Prompt       string
	BranchName   string
	Model        string
	SystemPrompt string
	Mode         Mode
	MaxTurns     int
}

// RunningFeature is one in-flight run. Owned exclusively by the
// controller: created at admission, removed at termination.
type RunningFeature struct {
	FeatureID    string
	ProjectPath  string
	WorktreePath string
	BranchName   string
	IsAutoMode   bool
	StartTime    time.Time

	cancel context.CancelFunc
	req    RunRequest
}

// RunningFeatureInfo is the read-only status view of a running feature.
type RunningFeatureInfo struct {
	FeatureID    string    `json:"featureId"`
	ProjectPath  string    `json:"projectPath"`
	WorktreePath string    `json:"worktreePath,omitempty"`
	BranchName   string    `json:"branchName,omitempty"`
	IsAutoMode   bool      `json:"isAutoMode"`
	StartTime    time.Time `json:"startTime"`
}

// Status is the controller's externally visible state.
type Status struct {
	Running      []RunningFeatureInfo `json:"running"`
	IsRunning    bool                 `json:"isRunning"`
	RunningCount int                  `json:"runningCount"`
	QueuedCount  int                  `json:"queuedCount"`
}

// Options carries run-policy knobs from config.
type Options struct {
	UseWorktrees bool
	AutoCommit   bool
	DefaultModel string
	MaxTurns     int
}

// Controller schedules feature runs. The running map and queue are the
// only shared mutable state; every mutation goes through
// controller-owned operations under mu.
type Controller struct {
	mu             sync.Mutex
	running        map[string]*RunningFeature
	queue          []RunRequest
	maxConcurrency int
	projectPath    string
	active         bool

	resolver  *worktree.Resolver
	providers *provider.Registry
	gate      *approval.Gate
	bus       *events.Bus
	store     *persistence.Store
	metrics   *metrics.Recorder
	tokens    *utils.TokenCounter
	opts      Options
	logger    *logx.Logger

	// baseCtx parents every run context so kernel shutdown reaches
	// in-flight provider calls.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewController wires a controller. store, metrics, tokens, and bus may
// be nil in tests.
func NewController(
	resolver *worktree.Resolver,
	providers *provider.Registry,
	gate *approval.Gate,
	bus *events.Bus,
	store *persistence.Store,
	rec *metrics.Recorder,
	tokens *utils.TokenCounter,
	opts Options,
) *Controller {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Controller{
		running:    make(map[string]*RunningFeature),
		resolver:   resolver,
		providers:  providers,
		gate:       gate,
		bus:        bus,
		store:      store,
		metrics:    rec,
		tokens:     tokens,
		opts:       opts,
		logger:     logx.NewLogger("autoloop"),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
}

// StartAutoLoop begins admitting runs for projectPath, up to
// maxConcurrency concurrently active.
func (c *Controller) StartAutoLoop(projectPath string, maxConcurrency int) error {
	if projectPath == "" {
		return fmt.Errorf("projectPath is required")
	}
	if maxConcurrency < 1 {
		return fmt.Errorf("maxConcurrency must be at least 1, got %d", maxConcurrency)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return fmt.Errorf("auto loop already running for %s", c.projectPath)
	}
	c.active = true
	c.projectPath = projectPath
	c.maxConcurrency = maxConcurrency

	c.logger.Info("auto loop started for %s (maxConcurrency=%d)", projectPath, maxConcurrency)
	c.emit(events.TypeAutoLoopStarted, "", projectPath, map[string]any{"maxConcurrency": maxConcurrency})
	return nil
}

// Submit validates and admits a run, queuing it when the registry is at
// the ceiling. Configuration errors are rejected here and never reach
// the registry.
func (c *Controller) Submit(req RunRequest) error {
	if err := validateRequest(&req, c.opts); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return fmt.Errorf("auto loop is not running")
	}
	if _, exists := c.running[req.FeatureID]; exists {
		return fmt.Errorf("feature %s is already running", req.FeatureID)
	}
	for i := range c.queue {
		if c.queue[i].FeatureID == req.FeatureID {
			return fmt.Errorf("feature %s is already queued", req.FeatureID)
		}
	}

	if len(c.running) >= c.maxConcurrency {
		c.queue = append(c.queue, req)
		c.metrics.SetQueuedRuns(len(c.queue))
		c.logger.Info("feature %s queued (%d running, %d queued)", req.FeatureID, len(c.running), len(c.queue))
		c.emit(events.TypeFeatureQueued, req.FeatureID, req.ProjectPath, map[string]any{"position": len(c.queue)})
		return nil
	}

	c.startLocked(req)
	return nil
}

// validateRequest checks required fields and applies defaults.
func validateRequest(req *RunRequest, opts Options) error {
	if req.FeatureID == "" {
		return fmt.Errorf("featureId is required")
	}
	if req.ProjectPath == "" {
		return fmt.Errorf("projectPath is required")
	}
	if req.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	if req.Mode == "" {
		req.Mode = ModePlan
	}
	switch req.Mode {
	case ModePlan, ModeAuto, ModeDirect:
	default:
		return fmt.Errorf("unknown mode %q", req.Mode)
	}
	if req.Model == "" {
		req.Model = opts.DefaultModel
	}
	if req.Model == "" {
		return fmt.Errorf("model is required (no default configured)")
	}
	if req.MaxTurns == 0 {
		req.MaxTurns = opts.MaxTurns
	}
	if req.BranchName == "" && opts.UseWorktrees {
		req.BranchName = utils.BranchNameForFeature(req.FeatureID)
	}
	return nil
}

// startLocked admits a run. Caller holds mu.
func (c *Controller) startLocked(req RunRequest) {
	ctx, cancel := context.WithCancel(c.baseCtx)
	rf := &RunningFeature{
		FeatureID:   req.FeatureID,
		ProjectPath: req.ProjectPath,
		BranchName:  req.BranchName,
		IsAutoMode:  req.Mode == ModeAuto,
		StartTime:   time.Now(),
		cancel:      cancel,
		req:         req,
	}
	c.running[req.FeatureID] = rf
	c.metrics.SetActiveRuns(len(c.running))
	c.metrics.RunStarted(req.ProjectPath, string(req.Mode))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.runFeature(ctx, rf)
	}()
}

// StopAutoLoop cancels every running feature and its pending approval,
// clears the registry and the queue, and returns how many runs were
// active.
func (c *Controller) StopAutoLoop() int {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return 0
	}
	c.active = false
	projectPath := c.projectPath

	count := len(c.running)
	ids := make([]string, 0, count)
	for id, rf := range c.running {
		ids = append(ids, id)
		rf.cancel()
	}
	c.running = make(map[string]*RunningFeature)
	c.queue = nil
	c.metrics.SetActiveRuns(0)
	c.metrics.SetQueuedRuns(0)
	c.mu.Unlock()

	// Gate cancellation happens outside mu; the woken runs re-enter
	// removeRunning, which must not deadlock.
	for _, id := range ids {
		c.gate.Cancel(id)
	}

	c.logger.Info("auto loop stopped, %d runs cancelled", count)
	c.emit(events.TypeAutoLoopStopped, "", projectPath, map[string]any{"cancelled": count})
	return count
}

// CancelFeature cancels one run: pending approval, context, registry
// entry. Returns false when the feature is neither running nor queued.
func (c *Controller) CancelFeature(featureID string) bool {
	c.mu.Lock()
	rf, isRunning := c.running[featureID]
	if isRunning {
		delete(c.running, featureID)
		c.metrics.SetActiveRuns(len(c.running))
	} else {
		for i := range c.queue {
			if c.queue[i].FeatureID == featureID {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				c.metrics.SetQueuedRuns(len(c.queue))
				c.mu.Unlock()
				c.logger.Info("feature %s removed from queue", featureID)
				return true
			}
		}
	}
	c.mu.Unlock()

	if !isRunning {
		return false
	}

	rf.cancel()
	c.gate.Cancel(featureID)
	c.logger.Info("feature %s cancelled", featureID)
	return true
}

// GetStatus returns a snapshot of the registry and queue.
func (c *Controller) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := Status{
		IsRunning:    c.active,
		RunningCount: len(c.running),
		QueuedCount:  len(c.queue),
		Running:      make([]RunningFeatureInfo, 0, len(c.running)),
	}
	for _, rf := range c.running {
		status.Running = append(status.Running, RunningFeatureInfo{
			FeatureID:    rf.FeatureID,
			ProjectPath:  rf.ProjectPath,
			WorktreePath: rf.WorktreePath,
			BranchName:   rf.BranchName,
			IsAutoMode:   rf.IsAutoMode,
			StartTime:    rf.StartTime,
		})
	}
	return status
}

// Shutdown stops the loop and waits for run goroutines to drain, bounded
// by ctx.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.StopAutoLoop()
	c.baseCancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out waiting for runs: %w", ctx.Err())
	}
}

// removeRunning clears a terminated run from the registry and admits the
// next queued request if a slot freed up. It is a no-op when StopAutoLoop
// or CancelFeature already removed the entry.
func (c *Controller) removeRunning(featureID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.running[featureID]; ok {
		delete(c.running, featureID)
	}
	c.metrics.SetActiveRuns(len(c.running))

	if c.active && len(c.queue) > 0 && len(c.running) < c.maxConcurrency {
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.metrics.SetQueuedRuns(len(c.queue))
		c.logger.Info("admitting queued feature %s", next.FeatureID)
		c.startLocked(next)
	}
}

func (c *Controller) emit(t events.Type, featureID, projectPath string, payload map[string]any) {
	if c.bus == nil {
		return
	}
	c.bus.Emit(events.New(t, featureID, projectPath, payload))
}
