// Package approval implements the plan approval gate: a per-feature
// suspension point where a run blocks until a human resolves or cancels
// the generated plan. Each pending entry is a single-assignment future
// backed by a capacity-1 reply channel; delivery and map removal happen
// atomically under the gate mutex, which enforces resolve-exactly-once.
package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ahmedshikashaker/automaker/pkg/events"
	"github.com/ahmedshikashaker/automaker/pkg/logx"
)

// Result is delivered to the goroutine suspended on the gate. Cancelled
// distinguishes gate cancellation from rejection: a cancelled wait is an
// abort, not a rejection-with-feedback.
type Result struct {
	Approved   bool   `json:"approved"`
	EditedPlan string `json:"editedPlan,omitempty"`
	Feedback   string `json:"feedback,omitempty"`
	Cancelled  bool   `json:"cancelled,omitempty"`
}

// ResolveResult is returned to the caller of Resolve (typically the HTTP
// approval route).
type ResolveResult struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	ProjectPath string `json:"projectPath,omitempty"`
}

// pending is one awaiting approval. reply has capacity 1 so delivery
// never blocks the resolver.
type pending struct {
	featureID   string
	projectPath string
	since       time.Time
	reply       chan Result
}

// Gate holds pending approvals keyed by feature ID. At most one pending
// entry exists per feature ID at any time.
type Gate struct {
	mu      sync.Mutex
	pending map[string]*pending
	bus     *events.Bus
	logger  *logx.Logger
}

// NewGate creates an approval gate publishing transitions on bus.
func NewGate(bus *events.Bus) *Gate {
	return &Gate{
		pending: make(map[string]*pending),
		bus:     bus,
		logger:  logx.NewLogger("approval-gate"),
	}
}

// WaitForApproval registers a pending entry for featureID, emits
// plan_approval_required, and blocks until Resolve or Cancel delivers a
// result, or ctx is done. Context cancellation removes the entry and
// returns ctx.Err(). There is no built-in timeout: the run's context is
// the only escape hatch.
func (g *Gate) WaitForApproval(ctx context.Context, featureID, projectPath string) (Result, error) {
	p := &pending{
		featureID:   featureID,
		projectPath: projectPath,
		since:       time.Now(),
		reply:       make(chan Result, 1),
	}

	g.mu.Lock()
	if _, exists := g.pending[featureID]; exists {
		g.mu.Unlock()
		return Result{}, fmt.Errorf("approval already pending for feature %s", featureID)
	}
	g.pending[featureID] = p
	g.mu.Unlock()

	g.emit(events.TypePlanApprovalRequired, featureID, projectPath, nil)
	g.logger.Info("feature %s awaiting plan approval", featureID)

	select {
	case res := <-p.reply:
		return res, nil
	case <-ctx.Done():
		// The run died while waiting. Remove the entry unless a
		// concurrent Resolve already claimed it.
		g.mu.Lock()
		if cur, ok := g.pending[featureID]; ok && cur == p {
			delete(g.pending, featureID)
		}
		g.mu.Unlock()
		return Result{}, ctx.Err()
	}
}

// Resolve delivers an approval outcome to the waiting run. An unknown
// featureID returns Success=false with zero side effects; a second
// Resolve after a successful one fails the same way because the entry is
// gone.
func (g *Gate) Resolve(featureID string, approved bool, editedPlan, feedback string) ResolveResult {
	g.mu.Lock()
	p, ok := g.pending[featureID]
	if !ok {
		g.mu.Unlock()
		return ResolveResult{Success: false, Error: fmt.Sprintf("no pending approval for feature %s", featureID)}
	}
	delete(g.pending, featureID)
	p.reply <- Result{Approved: approved, EditedPlan: editedPlan, Feedback: feedback}
	g.mu.Unlock()

	payload := map[string]any{"waitSeconds": time.Since(p.since).Seconds()}
	if approved {
		g.emit(events.TypePlanApproved, featureID, p.projectPath, payload)
		g.logger.Info("feature %s plan approved", featureID)
	} else if feedback != "" {
		payload["feedback"] = feedback
		g.emit(events.TypePlanRevisionRequest, featureID, p.projectPath, payload)
		g.logger.Info("feature %s plan rejected with feedback, revision requested", featureID)
	} else {
		g.emit(events.TypePlanRejected, featureID, p.projectPath, payload)
		g.logger.Info("feature %s plan rejected", featureID)
	}

	return ResolveResult{Success: true, ProjectPath: p.projectPath}
}

// Cancel aborts a pending approval. The waiting run receives a result
// with Cancelled=true, which it must treat as an abort, not a rejection.
// Cancelling an absent entry is a silent no-op.
func (g *Gate) Cancel(featureID string) {
	g.mu.Lock()
	p, ok := g.pending[featureID]
	if !ok {
		g.mu.Unlock()
		return
	}
	delete(g.pending, featureID)
	p.reply <- Result{Cancelled: true}
	g.mu.Unlock()

	g.emit(events.TypePlanApprovalCanceled, featureID, p.projectPath, nil)
	g.logger.Info("feature %s pending approval cancelled", featureID)
}

// HasPending reports whether an approval is pending for featureID.
func (g *Gate) HasPending(featureID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[featureID]
	return ok
}

// GetProjectPath returns the project path recorded for a pending
// approval.
func (g *Gate) GetProjectPath(featureID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pending[featureID]
	if !ok {
		return "", false
	}
	return p.projectPath, true
}

// GetAllPending returns the feature IDs with pending approvals, sorted
// for stable status output.
func (g *Gate) GetAllPending() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(g.pending))
	for id := range g.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PendingCount returns the number of pending approvals.
func (g *Gate) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// emit publishes without ever blocking gate transitions; the bus is
// non-blocking by contract and may be nil in tests.
func (g *Gate) emit(t events.Type, featureID, projectPath string, payload map[string]any) {
	if g.bus == nil {
		return
	}
	g.bus.Emit(events.New(t, featureID, projectPath, payload))
}
