package persistence

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ahmedshikashaker/automaker/pkg/tasks"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testFeature(id string) *FeatureRecord {
	return &FeatureRecord{
		ID:          id,
		ProjectPath: "/tmp/project",
		Prompt:      "add retry logic to the uploader",
		BranchName:  "feature/" + id,
		Mode:        "plan",
		Status:      FeatureStatusQueued,
	}
}

func TestFeatureRoundTrip(t *testing.T) {
	s := openTestStore(t)

	f := testFeature("feat-1")
	f.IsAutoMode = true
	if err := s.UpsertFeature(f); err != nil {
		t.Fatalf("Failed to upsert feature: %v", err)
	}
	if f.CreatedAt.IsZero() {
		t.Error("Expected UpsertFeature to stamp CreatedAt")
	}

	got, err := s.GetFeature("feat-1")
	if err != nil {
		t.Fatalf("Failed to get feature: %v", err)
	}
	if got.ID != "feat-1" || got.Prompt != f.Prompt || got.BranchName != "feature/feat-1" {
		t.Errorf("Round-trip mismatch: %+v", got)
	}
	if !got.IsAutoMode {
		t.Error("Expected is_auto_mode to survive the round trip")
	}
	if got.Status != FeatureStatusQueued {
		t.Errorf("Expected status %s, got %s", FeatureStatusQueued, got.Status)
	}
	if got.StartedAt != nil || got.FinishedAt != nil {
		t.Error("Expected nil started_at/finished_at for a queued feature")
	}
}

func TestUpsertFeatureReplaces(t *testing.T) {
	s := openTestStore(t)

	f := testFeature("feat-1")
	if err := s.UpsertFeature(f); err != nil {
		t.Fatalf("Failed to upsert feature: %v", err)
	}

	f.Prompt = "updated prompt"
	f.Status = FeatureStatusRunning
	if err := s.UpsertFeature(f); err != nil {
		t.Fatalf("Failed to re-upsert feature: %v", err)
	}

	got, err := s.GetFeature("feat-1")
	if err != nil {
		t.Fatalf("Failed to get feature: %v", err)
	}
	if got.Prompt != "updated prompt" {
		t.Errorf("Expected updated prompt, got %q", got.Prompt)
	}
	if got.Status != FeatureStatusRunning {
		t.Errorf("Expected status %s, got %s", FeatureStatusRunning, got.Status)
	}
}

func TestGetFeatureNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetFeature("no-such-feature")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestUpdateFeatureStatusStampsTimes(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertFeature(testFeature("feat-1")); err != nil {
		t.Fatalf("Failed to upsert feature: %v", err)
	}

	if err := s.UpdateFeatureStatus("feat-1", FeatureStatusRunning, ""); err != nil {
		t.Fatalf("Failed to mark running: %v", err)
	}
	got, err := s.GetFeature("feat-1")
	if err != nil {
		t.Fatalf("Failed to get feature: %v", err)
	}
	if got.StartedAt == nil {
		t.Fatal("Expected started_at to be stamped on transition to running")
	}
	if got.FinishedAt != nil {
		t.Error("Expected finished_at to remain nil while running")
	}

	if err := s.UpdateFeatureStatus("feat-1", FeatureStatusFailed, "provider exploded"); err != nil {
		t.Fatalf("Failed to mark failed: %v", err)
	}
	got, err = s.GetFeature("feat-1")
	if err != nil {
		t.Fatalf("Failed to get feature: %v", err)
	}
	if got.FinishedAt == nil {
		t.Fatal("Expected finished_at to be stamped on a terminal status")
	}
	if got.ErrorMessage != "provider exploded" {
		t.Errorf("Expected error message to be recorded, got %q", got.ErrorMessage)
	}
}

func TestUpdateFeatureStatusNotFound(t *testing.T) {
	s := openTestStore(t)

	err := s.UpdateFeatureStatus("ghost", FeatureStatusRunning, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestListFeaturesFilterAndOrder(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"feat-a", "feat-b", "feat-c"} {
		f := testFeature(id)
		f.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.UpsertFeature(f); err != nil {
			t.Fatalf("Failed to upsert %s: %v", id, err)
		}
	}
	if err := s.UpdateFeatureStatus("feat-b", FeatureStatusCompleted, ""); err != nil {
		t.Fatalf("Failed to complete feat-b: %v", err)
	}

	all, err := s.ListFeatures("")
	if err != nil {
		t.Fatalf("Failed to list features: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 features, got %d", len(all))
	}
	if all[0].ID != "feat-c" || all[2].ID != "feat-a" {
		t.Errorf("Expected newest-first ordering, got %s..%s", all[0].ID, all[2].ID)
	}

	queued, err := s.ListFeatures(FeatureStatusQueued)
	if err != nil {
		t.Fatalf("Failed to list queued features: %v", err)
	}
	if len(queued) != 2 {
		t.Errorf("Expected 2 queued features, got %d", len(queued))
	}
	for _, f := range queued {
		if f.ID == "feat-b" {
			t.Error("Expected completed feature to be filtered out")
		}
	}
}

func TestGetPlanAbsentReturnsNil(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertFeature(testFeature("feat-1")); err != nil {
		t.Fatalf("Failed to upsert feature: %v", err)
	}
	p, err := s.GetPlan("feat-1")
	if err != nil {
		t.Fatalf("Expected no error for absent plan, got: %v", err)
	}
	if p != nil {
		t.Errorf("Expected nil plan when none stored, got %+v", p)
	}
}

func TestPlanAndTasksRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertFeature(testFeature("feat-1")); err != nil {
		t.Fatalf("Failed to upsert feature: %v", err)
	}
	if err := s.UpsertPlan(&PlanRecord{
		FeatureID:      "feat-1",
		Status:         PlanStatusGenerated,
		Content:        "# Plan\n\ndo the thing",
		Version:        2,
		ReviewedByUser: true,
	}); err != nil {
		t.Fatalf("Failed to upsert plan: %v", err)
	}

	taskList := []tasks.ParsedTask{
		{ID: "T001", Description: "Create config file", FilePath: "config.go", Phase: "Setup", Status: tasks.StatusPending},
		{ID: "T002", Description: "Wire the handler", Phase: "Implementation", Status: tasks.StatusPending},
		{ID: "T003", Description: "Add tests", FilePath: "handler_test.go", Phase: "Implementation", Status: tasks.StatusPending},
	}
	if err := s.ReplaceTasks("feat-1", taskList); err != nil {
		t.Fatalf("Failed to replace tasks: %v", err)
	}

	p, err := s.GetPlan("feat-1")
	if err != nil {
		t.Fatalf("Failed to get plan: %v", err)
	}
	if p == nil {
		t.Fatal("Expected plan, got nil")
	}
	if p.Status != PlanStatusGenerated || p.Version != 2 || !p.ReviewedByUser {
		t.Errorf("Plan round-trip mismatch: %+v", p)
	}
	if p.TasksTotal != 3 || p.TasksCompleted != 0 {
		t.Errorf("Expected counters 0/3, got %d/%d", p.TasksCompleted, p.TasksTotal)
	}
	if len(p.Tasks) != 3 {
		t.Fatalf("Expected 3 tasks, got %d", len(p.Tasks))
	}
	for i, want := range []string{"T001", "T002", "T003"} {
		if p.Tasks[i].ID != want {
			t.Errorf("Task %d: expected %s, got %s", i, want, p.Tasks[i].ID)
		}
	}
	if p.Tasks[1].FilePath != "" {
		t.Errorf("Expected empty file path for T002, got %q", p.Tasks[1].FilePath)
	}
	if p.Tasks[0].Phase != "Setup" {
		t.Errorf("Expected phase Setup, got %q", p.Tasks[0].Phase)
	}
}

func TestReplaceTasksResetsCounters(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertFeature(testFeature("feat-1")); err != nil {
		t.Fatalf("Failed to upsert feature: %v", err)
	}
	if err := s.UpsertPlan(&PlanRecord{FeatureID: "feat-1", Status: PlanStatusApproved}); err != nil {
		t.Fatalf("Failed to upsert plan: %v", err)
	}
	if err := s.ReplaceTasks("feat-1", []tasks.ParsedTask{
		{ID: "T001", Description: "one", Status: tasks.StatusPending},
		{ID: "T002", Description: "two", Status: tasks.StatusPending},
	}); err != nil {
		t.Fatalf("Failed to replace tasks: %v", err)
	}
	if err := s.UpdateTaskStatus("feat-1", "T001", tasks.StatusCompleted); err != nil {
		t.Fatalf("Failed to complete T001: %v", err)
	}

	// Replacing the list starts progress over.
	if err := s.ReplaceTasks("feat-1", []tasks.ParsedTask{
		{ID: "T001", Description: "rewritten", Status: tasks.StatusPending},
	}); err != nil {
		t.Fatalf("Failed to replace tasks again: %v", err)
	}

	p, err := s.GetPlan("feat-1")
	if err != nil {
		t.Fatalf("Failed to get plan: %v", err)
	}
	if p.TasksTotal != 1 || p.TasksCompleted != 0 {
		t.Errorf("Expected counters reset to 0/1, got %d/%d", p.TasksCompleted, p.TasksTotal)
	}
	if p.CurrentTaskID != "" {
		t.Errorf("Expected current task cleared, got %q", p.CurrentTaskID)
	}
}

func TestUpdateTaskStatusProgress(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertFeature(testFeature("feat-1")); err != nil {
		t.Fatalf("Failed to upsert feature: %v", err)
	}
	if err := s.UpsertPlan(&PlanRecord{FeatureID: "feat-1", Status: PlanStatusApproved}); err != nil {
		t.Fatalf("Failed to upsert plan: %v", err)
	}
	if err := s.ReplaceTasks("feat-1", []tasks.ParsedTask{
		{ID: "T001", Description: "one", Status: tasks.StatusPending},
		{ID: "T002", Description: "two", Status: tasks.StatusPending},
	}); err != nil {
		t.Fatalf("Failed to replace tasks: %v", err)
	}

	if err := s.UpdateTaskStatus("feat-1", "T001", tasks.StatusInProgress); err != nil {
		t.Fatalf("Failed to start T001: %v", err)
	}
	p, err := s.GetPlan("feat-1")
	if err != nil {
		t.Fatalf("Failed to get plan: %v", err)
	}
	if p.CurrentTaskID != "T001" {
		t.Errorf("Expected current task T001, got %q", p.CurrentTaskID)
	}
	if p.TasksCompleted != 0 {
		t.Errorf("Expected 0 completed, got %d", p.TasksCompleted)
	}

	if err := s.UpdateTaskStatus("feat-1", "T001", tasks.StatusCompleted); err != nil {
		t.Fatalf("Failed to complete T001: %v", err)
	}
	p, err = s.GetPlan("feat-1")
	if err != nil {
		t.Fatalf("Failed to get plan: %v", err)
	}
	if p.TasksCompleted != 1 {
		t.Errorf("Expected 1 completed, got %d", p.TasksCompleted)
	}
	if p.CurrentTaskID != "" {
		t.Errorf("Expected current task cleared after completion, got %q", p.CurrentTaskID)
	}
	if p.Tasks[0].Status != tasks.StatusCompleted {
		t.Errorf("Expected T001 completed, got %s", p.Tasks[0].Status)
	}
}

func TestUpdateTaskStatusNotFound(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertFeature(testFeature("feat-1")); err != nil {
		t.Fatalf("Failed to upsert feature: %v", err)
	}
	err := s.UpdateTaskStatus("feat-1", "T404", tasks.StatusCompleted)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestRunOutcomeHistory(t *testing.T) {
	s := openTestStore(t)

	for i, outcome := range []string{"completed", "failed", "completed"} {
		id := testFeature("feat-1").ID
		if err := s.RecordRunOutcome(id, outcome, time.Duration(i+1)*time.Second, "detail"); err != nil {
			t.Fatalf("Failed to record outcome: %v", err)
		}
		// Distinct recorded_at values keep the ordering deterministic.
		time.Sleep(2 * time.Millisecond)
	}

	out, err := s.ListRunOutcomes(10)
	if err != nil {
		t.Fatalf("Failed to list outcomes: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("Expected 3 outcomes, got %d", len(out))
	}
	if out[0].DurationMS != 3000 {
		t.Errorf("Expected newest outcome first (3000ms), got %dms", out[0].DurationMS)
	}
	if out[1].Outcome != "failed" {
		t.Errorf("Expected failed outcome in the middle, got %s", out[1].Outcome)
	}

	limited, err := s.ListRunOutcomes(2)
	if err != nil {
		t.Fatalf("Failed to list with limit: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected 2 outcomes with limit, got %d", len(limited))
	}
}

func TestOpenIsIdempotentOnSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if err := s.UpsertFeature(testFeature("feat-1")); err != nil {
		t.Fatalf("Failed to upsert feature: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}

	// Reopening an existing database keeps data and skips migrations.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s2.Close()
	got, err := s2.GetFeature("feat-1")
	if err != nil {
		t.Fatalf("Failed to get feature after reopen: %v", err)
	}
	if got.ID != "feat-1" {
		t.Errorf("Expected feat-1 after reopen, got %s", got.ID)
	}
}
