// Package tasks extracts an ordered task list from generated plan text
// and drives task-by-task execution against a provider, reporting
// progress on the event bus.
package tasks

// Status tracks a task through execution.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ParsedTask is one task extracted from a plan. The executor mutates only
// Status; everything else is read-only after parsing.
type ParsedTask struct {
	// ID matches the T### pattern, unique within one plan and
	// monotonically increasing by convention (not enforced).
	ID string `json:"id"`

	// Description is the task text after the ID prefix.
	Description string `json:"description"`

	// FilePath is the optional "| File: path" suffix.
	FilePath string `json:"filePath,omitempty"`

	// Phase is the "## ..." header the task appeared under, if any.
	Phase string `json:"phase,omitempty"`

	Status Status `json:"status"`
}

// ExecutionStatus is the overall outcome of an ExecuteTasks call.
type ExecutionStatus string

const (
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	// ExecutionCancelled is a distinct outcome: a cancelled run is never
	// reported as failed.
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// ExecutionInput carries the per-run parameters for task execution.
type ExecutionInput struct {
	FeatureID    string
	ProjectPath  string
	WorkDir      string
	Model        string
	SystemPrompt string
	PlanContent  string
	Feedback     string
	MaxTurns     int
}

// ExecutionResult summarizes a finished (or halted) task sequence.
type ExecutionResult struct {
	Status       ExecutionStatus
	Completed    int
	FailedTaskID string
	// Outputs maps task ID to a bounded output summary.
	Outputs map[string]string
}
