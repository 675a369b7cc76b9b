package tasks

import (
	"testing"
)

const planWithFence = `# Plan: add rate limiting

Some prose the model wrote about the approach.

` + "```tasks" + `
## Setup
- [ ] T001: Add limiter config struct | File: pkg/config/limiter.go
- [ ] T002: Wire config defaults

## Implementation
- [x] T003: Implement token bucket | File: pkg/limiter/bucket.go
- [ ] T004: Add middleware
` + "```" + `

Closing prose that mentions - [ ] T999: not a real task outside the fence.
`

func TestParseTasksFromSpecFencedBlock(t *testing.T) {
	parsed := ParseTasksFromSpec(planWithFence)

	if len(parsed) != 4 {
		t.Fatalf("Expected 4 tasks, got %d: %+v", len(parsed), parsed)
	}

	wantIDs := []string{"T001", "T002", "T003", "T004"}
	for i, want := range wantIDs {
		if parsed[i].ID != want {
			t.Errorf("Task %d: expected ID %s, got %s", i, want, parsed[i].ID)
		}
	}

	if parsed[0].FilePath != "pkg/config/limiter.go" {
		t.Errorf("Expected file path on T001, got %q", parsed[0].FilePath)
	}
	if parsed[1].FilePath != "" {
		t.Errorf("Expected no file path on T002, got %q", parsed[1].FilePath)
	}

	if parsed[0].Phase != "Setup" || parsed[1].Phase != "Setup" {
		t.Errorf("Expected Setup phase on first two tasks, got %q and %q", parsed[0].Phase, parsed[1].Phase)
	}
	if parsed[2].Phase != "Implementation" || parsed[3].Phase != "Implementation" {
		t.Errorf("Expected Implementation phase on last two tasks, got %q and %q", parsed[2].Phase, parsed[3].Phase)
	}

	// Checked boxes still parse as pending: execution state belongs to
	// the executor, not the plan text.
	for _, task := range parsed {
		if task.Status != StatusPending {
			t.Errorf("Task %s: expected pending status, got %s", task.ID, task.Status)
		}
	}
}

func TestParseTasksFromSpecIgnoresTextOutsideFence(t *testing.T) {
	parsed := ParseTasksFromSpec(planWithFence)
	for _, task := range parsed {
		if task.ID == "T999" {
			t.Error("Task outside the tasks fence should not be parsed")
		}
	}
}

func TestParseTasksFromSpecFallbackWholeContent(t *testing.T) {
	content := `No fence here.
- [ ] T001: First task
- [ ] T002: Second task | File: main.go
## Not a phase in fallback mode
- [ ] T003: Third task
`
	parsed := ParseTasksFromSpec(content)

	if len(parsed) != 3 {
		t.Fatalf("Expected 3 tasks from fallback scan, got %d", len(parsed))
	}
	for _, task := range parsed {
		if task.Phase != "" {
			t.Errorf("Fallback parsing should not assign phases, got %q on %s", task.Phase, task.ID)
		}
	}
	if parsed[1].FilePath != "main.go" {
		t.Errorf("Expected file path main.go, got %q", parsed[1].FilePath)
	}
}

func TestParseTasksFromSpecUnterminatedFence(t *testing.T) {
	content := "```tasks\n- [ ] T001: Only task\n"
	parsed := ParseTasksFromSpec(content)

	if len(parsed) != 1 || parsed[0].ID != "T001" {
		t.Fatalf("Expected the unterminated fence to still parse, got %+v", parsed)
	}
}

func TestParseTasksFromSpecDropsMalformedLines(t *testing.T) {
	content := "```tasks\n" + `- [ ] T001: Good task
- [ ] no id here
- [ ] T2: wrong id width
- T003: missing checkbox
- [ ] T004: Another good task
` + "```"

	parsed := ParseTasksFromSpec(content)

	if len(parsed) != 2 {
		t.Fatalf("Expected 2 well-formed tasks, got %d: %+v", len(parsed), parsed)
	}
	if parsed[0].ID != "T001" || parsed[1].ID != "T004" {
		t.Errorf("Expected T001 and T004, got %s and %s", parsed[0].ID, parsed[1].ID)
	}
}

func TestParseTasksFromSpecEmpty(t *testing.T) {
	if parsed := ParseTasksFromSpec(""); parsed != nil {
		t.Errorf("Expected nil for empty content, got %+v", parsed)
	}
	if parsed := ParseTasksFromSpec("just prose, no tasks at all"); parsed != nil {
		t.Errorf("Expected nil for plan without tasks, got %+v", parsed)
	}
}
