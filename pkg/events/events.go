// Package events provides the fire-and-forget event bus carrying run
// lifecycle notifications to observers (HTTP SSE, the JSONL event log,
// metrics). The orchestration core only publishes; it never reads its
// own events back.
package events

import "time"

// Type identifies an event kind.
type Type string

// Event type constants. For a single feature the core emits them in this
// order: approval-required, then one approval outcome, then task
// started/complete pairs in task order, then phase completions, then one
// terminal feature event.
const (
	TypeAutoLoopStarted Type = "auto_loop_started"
	TypeAutoLoopStopped Type = "auto_loop_stopped"

	TypeFeatureQueued    Type = "feature_queued"
	TypeFeatureStarted   Type = "feature_started"
	TypeFeatureComplete  Type = "feature_complete"
	TypeFeatureError     Type = "feature_error"
	TypeFeatureCancelled Type = "feature_cancelled"

	TypePlanGenerating       Type = "plan_generating"
	TypePlanGenerated        Type = "plan_generated"
	TypePlanApprovalRequired Type = "plan_approval_required"
	TypePlanApproved         Type = "plan_approved"
	TypePlanRejected         Type = "plan_rejected"
	TypePlanAutoApproved     Type = "plan_auto_approved"
	TypePlanApprovalCanceled Type = "plan_approval_cancelled"
	TypePlanRevisionRequest  Type = "plan_revision_requested"

	TypeTaskStarted   Type = "task_started"
	TypeTaskComplete  Type = "task_complete"
	TypeTaskFailed    Type = "task_failed"
	TypePhaseComplete Type = "phase_complete"
)

// Event is a single bus notification.
type Event struct {
	Type        Type           `json:"type"`
	FeatureID   string         `json:"feature_id,omitempty"`
	ProjectPath string         `json:"project_path,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Time        time.Time      `json:"time"`
}

// New builds an event stamped with the current time.
func New(t Type, featureID, projectPath string, payload map[string]any) Event {
	return Event{
		Type:        t,
		FeatureID:   featureID,
		ProjectPath: projectPath,
		Payload:     payload,
		Time:        time.Now().UTC(),
	}
}
