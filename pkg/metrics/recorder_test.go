package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder

	// Every method must be a no-op on a nil recorder.
	r.RunStarted("/p", "plan")
	r.RunFinished("/p", "completed", time.Second)
	r.TaskFinished("completed", time.Second)
	r.ProviderRequest("fake", "success")
	r.ProviderRateLimited("fake")
	r.EventDropped()
	r.ApprovalWaited(time.Second)
	r.SetActiveRuns(1)
	r.SetQueuedRuns(2)
	r.SetPendingApprovals(3)
}

// One recorder for the whole test binary; promauto registers on the
// default registry and rejects duplicates.
func TestRecorder(t *testing.T) {
	r := NewRecorder()

	r.RunStarted("/p", "plan")
	r.RunStarted("/p", "plan")
	if got := testutil.ToFloat64(r.runsStarted.WithLabelValues("/p", "plan")); got != 2 {
		t.Errorf("Expected 2 runs started, got %v", got)
	}

	r.RunFinished("/p", "completed", 3*time.Second)
	if got := testutil.ToFloat64(r.runsFinished.WithLabelValues("/p", "completed")); got != 1 {
		t.Errorf("Expected 1 run finished, got %v", got)
	}

	r.TaskFinished("failed", time.Second)
	if got := testutil.ToFloat64(r.tasksFinished.WithLabelValues("failed")); got != 1 {
		t.Errorf("Expected 1 failed task, got %v", got)
	}

	r.ProviderRequest("fake", "success")
	r.ProviderRateLimited("fake")
	if got := testutil.ToFloat64(r.providerRateLimit.WithLabelValues("fake")); got != 1 {
		t.Errorf("Expected 1 rate limit, got %v", got)
	}

	r.EventDropped()
	if got := testutil.ToFloat64(r.eventsDropped); got != 1 {
		t.Errorf("Expected 1 dropped event, got %v", got)
	}

	r.SetActiveRuns(4)
	if got := testutil.ToFloat64(r.activeRuns); got != 4 {
		t.Errorf("Expected 4 active runs, got %v", got)
	}
	r.SetQueuedRuns(2)
	if got := testutil.ToFloat64(r.queuedRuns); got != 2 {
		t.Errorf("Expected 2 queued runs, got %v", got)
	}
	r.SetPendingApprovals(1)
	if got := testutil.ToFloat64(r.pendingApprovals); got != 1 {
		t.Errorf("Expected 1 pending approval, got %v", got)
	}
}
