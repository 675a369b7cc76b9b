package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahmedshikashaker/automaker/pkg/tasks"
)

// UpsertFeature inserts or replaces a feature record.
func (s *Store) UpsertFeature(f *FeatureRecord) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO features (id, project_path, prompt, branch_name, mode, status, is_auto_mode, error_message, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_path = excluded.project_path,
			prompt = excluded.prompt,
			branch_name = excluded.branch_name,
			mode = excluded.mode,
			status = excluded.status,
			is_auto_mode = excluded.is_auto_mode,
			error_message = excluded.error_message,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		f.ID, f.ProjectPath, f.Prompt, f.BranchName, f.Mode, f.Status,
		boolToInt(f.IsAutoMode), f.ErrorMessage, f.CreatedAt, f.StartedAt, f.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert feature %s: %w", f.ID, err)
	}
	return nil
}

// UpdateFeatureStatus transitions a feature's status, stamping
// started_at/finished_at as appropriate and recording an error message
// for failures.
func (s *Store) UpdateFeatureStatus(featureID, status, errorMessage string) error {
	now := time.Now().UTC()
	var result sql.Result
	var err error

	switch status {
	case FeatureStatusRunning:
		result, err = s.db.Exec(
			`UPDATE features SET status = ?, started_at = ?, error_message = '' WHERE id = ?`,
			status, now, featureID)
	case FeatureStatusCompleted, FeatureStatusFailed, FeatureStatusCancelled, FeatureStatusRejected:
		result, err = s.db.Exec(
			`UPDATE features SET status = ?, finished_at = ?, error_message = ? WHERE id = ?`,
			status, now, errorMessage, featureID)
	default:
		result, err = s.db.Exec(
			`UPDATE features SET status = ?, error_message = ? WHERE id = ?`,
			status, errorMessage, featureID)
	}
	if err != nil {
		return fmt.Errorf("failed to update feature %s status: %w", featureID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of feature %s: %w", featureID, err)
	}
	if rows == 0 {
		return fmt.Errorf("feature %s: %w", featureID, ErrNotFound)
	}
	return nil
}

// GetFeature loads one feature record.
func (s *Store) GetFeature(featureID string) (*FeatureRecord, error) {
	f := &FeatureRecord{}
	var isAuto int
	err := s.db.QueryRow(`
		SELECT id, project_path, prompt, branch_name, mode, status, is_auto_mode, error_message, created_at, started_at, finished_at
		FROM features WHERE id = ?`, featureID).
		Scan(&f.ID, &f.ProjectPath, &f.Prompt, &f.BranchName, &f.Mode, &f.Status,
			&isAuto, &f.ErrorMessage, &f.CreatedAt, &f.StartedAt, &f.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("feature %s: %w", featureID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load feature %s: %w", featureID, err)
	}
	f.IsAutoMode = isAuto != 0
	return f, nil
}

// ListFeatures returns features, newest first, optionally filtered by
// status (empty means all).
func (s *Store) ListFeatures(status string) ([]*FeatureRecord, error) {
	query := `
		SELECT id, project_path, prompt, branch_name, mode, status, is_auto_mode, error_message, created_at, started_at, finished_at
		FROM features`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	defer rows.Close()

	var out []*FeatureRecord
	for rows.Next() {
		f := &FeatureRecord{}
		var isAuto int
		if err := rows.Scan(&f.ID, &f.ProjectPath, &f.Prompt, &f.BranchName, &f.Mode, &f.Status,
			&isAuto, &f.ErrorMessage, &f.CreatedAt, &f.StartedAt, &f.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feature row: %w", err)
		}
		f.IsAutoMode = isAuto != 0
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpsertPlan inserts or replaces a feature's plan record (tasks excluded;
// use ReplaceTasks).
func (s *Store) UpsertPlan(p *PlanRecord) error {
	p.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO plans (feature_id, status, content, version, reviewed_by_user, tasks_completed, tasks_total, current_task_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feature_id) DO UPDATE SET
			status = excluded.status,
			content = excluded.content,
			version = excluded.version,
			reviewed_by_user = excluded.reviewed_by_user,
			tasks_completed = excluded.tasks_completed,
			tasks_total = excluded.tasks_total,
			current_task_id = excluded.current_task_id,
			updated_at = excluded.updated_at`,
		p.FeatureID, p.Status, p.Content, p.Version, boolToInt(p.ReviewedByUser),
		p.TasksCompleted, p.TasksTotal, p.CurrentTaskID, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert plan for feature %s: %w", p.FeatureID, err)
	}
	return nil
}

// GetPlan loads a feature's plan with its tasks in position order.
// Returns nil (no error) when no plan exists yet.
func (s *Store) GetPlan(featureID string) (*PlanRecord, error) {
	p := &PlanRecord{}
	var reviewed int
	err := s.db.QueryRow(`
		SELECT feature_id, status, content, version, reviewed_by_user, tasks_completed, tasks_total, current_task_id, updated_at
		FROM plans WHERE feature_id = ?`, featureID).
		Scan(&p.FeatureID, &p.Status, &p.Content, &p.Version, &reviewed,
			&p.TasksCompleted, &p.TasksTotal, &p.CurrentTaskID, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan for feature %s: %w", featureID, err)
	}
	p.ReviewedByUser = reviewed != 0

	rows, err := s.db.Query(`
		SELECT task_id, description, file_path, phase, status
		FROM tasks WHERE feature_id = ? ORDER BY position`, featureID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks for feature %s: %w", featureID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var t tasks.ParsedTask
		var status string
		if err := rows.Scan(&t.ID, &t.Description, &t.FilePath, &t.Phase, &status); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		t.Status = tasks.Status(status)
		p.Tasks = append(p.Tasks, t)
	}
	return p, rows.Err()
}

// ReplaceTasks swaps a feature's task rows for the given list, preserving
// array order as position.
func (s *Store) ReplaceTasks(featureID string, taskList []tasks.ParsedTask) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM tasks WHERE feature_id = ?`, featureID); err != nil {
		return fmt.Errorf("failed to clear tasks for feature %s: %w", featureID, err)
	}
	for i, t := range taskList {
		if _, err := tx.Exec(`
			INSERT INTO tasks (feature_id, position, task_id, description, file_path, phase, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			featureID, i, t.ID, t.Description, t.FilePath, t.Phase, string(t.Status)); err != nil {
			return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
		}
	}

	if _, err := tx.Exec(`UPDATE plans SET tasks_total = ?, tasks_completed = 0, current_task_id = '' WHERE feature_id = ?`,
		len(taskList), featureID); err != nil {
		return fmt.Errorf("failed to update plan counters for feature %s: %w", featureID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task replacement: %w", err)
	}
	return nil
}

// UpdateTaskStatus updates one task's status and the plan's progress
// counters.
func (s *Store) UpdateTaskStatus(featureID, taskID string, status tasks.Status) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`UPDATE tasks SET status = ? WHERE feature_id = ? AND task_id = ?`,
		string(status), featureID, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", taskID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of task %s: %w", taskID, err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s for feature %s: %w", taskID, featureID, ErrNotFound)
	}

	current := ""
	if status == tasks.StatusInProgress {
		current = taskID
	}
	if _, err := tx.Exec(`
		UPDATE plans SET
			tasks_completed = (SELECT COUNT(*) FROM tasks WHERE feature_id = ? AND status = 'completed'),
			current_task_id = ?
		WHERE feature_id = ?`, featureID, current, featureID); err != nil {
		return fmt.Errorf("failed to update plan progress for feature %s: %w", featureID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task status update: %w", err)
	}
	return nil
}

// RecordRunOutcome appends a terminal outcome row for history.
func (s *Store) RecordRunOutcome(featureID, outcome string, duration time.Duration, detail string) error {
	_, err := s.db.Exec(`
		INSERT INTO run_events (id, feature_id, outcome, duration_ms, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), featureID, outcome, duration.Milliseconds(), detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record run outcome for feature %s: %w", featureID, err)
	}
	return nil
}

// ListRunOutcomes returns the most recent terminal outcomes, newest
// first, bounded by limit.
func (s *Store) ListRunOutcomes(limit int) ([]*RunOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, feature_id, outcome, duration_ms, detail, recorded_at
		FROM run_events ORDER BY recorded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list run outcomes: %w", err)
	}
	defer rows.Close()

	var out []*RunOutcome
	for rows.Next() {
		o := &RunOutcome{}
		if err := rows.Scan(&o.ID, &o.FeatureID, &o.Outcome, &o.DurationMS, &o.Detail, &o.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
