package persistence

import (
	"time"

	"github.com/ahmedshikashaker/automaker/pkg/tasks"
)

// Feature status constants.
const (
	FeatureStatusQueued           = "queued"
	FeatureStatusRunning          = "running"
	FeatureStatusAwaitingApproval = "awaiting_approval"
	FeatureStatusCompleted        = "completed"
	FeatureStatusFailed           = "failed"
	FeatureStatusCancelled        = "cancelled"
	FeatureStatusRejected         = "rejected"
)

// Plan status constants, following the plan lifecycle
// pending -> generating -> generated -> approved | rejected.
const (
	PlanStatusPending    = "pending"
	PlanStatusGenerating = "generating"
	PlanStatusGenerated  = "generated"
	PlanStatusApproved   = "approved"
	PlanStatusRejected   = "rejected"
)

// FeatureRecord is one feature run's persisted state.
type FeatureRecord struct {
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ID           string     `json:"id"`
	ProjectPath  string     `json:"project_path"`
	Prompt       string     `json:"prompt"`
	BranchName   string     `json:"branch_name,omitempty"`
	Mode         string     `json:"mode"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	IsAutoMode   bool       `json:"is_auto_mode"`
}

// PlanRecord is the persisted plan for a feature. Tasks live in their own
// table; GetPlan joins them back in.
type PlanRecord struct {
	UpdatedAt      time.Time          `json:"updated_at"`
	FeatureID      string             `json:"feature_id"`
	Status         string             `json:"status"`
	Content        string             `json:"content,omitempty"`
	CurrentTaskID  string             `json:"current_task_id,omitempty"`
	Tasks          []tasks.ParsedTask `json:"tasks,omitempty"`
	Version        int                `json:"version"`
	TasksCompleted int                `json:"tasks_completed"`
	TasksTotal     int                `json:"tasks_total"`
	ReviewedByUser bool               `json:"reviewed_by_user"`
}

// RunOutcome is one terminal run result kept for history.
type RunOutcome struct {
	RecordedAt time.Time `json:"recorded_at"`
	ID         string    `json:"id"`
	FeatureID  string    `json:"feature_id"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}
