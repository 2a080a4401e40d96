package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertWorkflowSteps persists a job's step chain in index order.
func (t *Tx) InsertWorkflowSteps(ctx context.Context, steps []*WorkflowStep) error {
	query := `INSERT INTO workflow_steps (job_id, step_index, service_id, operation, aggregated, work_item_count, all_items_created, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, step := range steps {
		if step.JobID == 0 {
			return NewValidationError("Workflow step record is invalid: job_id is required")
		}
		if step.ServiceID == "" {
			return NewValidationError("Workflow step record is invalid: service_id is required")
		}
		now := time.Now().UTC()
		stamp := formatTime(now)
		id, err := t.insertID(ctx, query,
			step.JobID, step.StepIndex, step.ServiceID, step.Operation,
			boolToInt(step.Aggregated), step.WorkItemCount, boolToInt(step.AllItemsCreated),
			stamp, stamp)
		if err != nil {
			return fmt.Errorf("insert workflow step %d/%d: %w", step.JobID, step.StepIndex, err)
		}
		step.ID = id
		step.CreatedAt = now
		step.UpdatedAt = now
	}
	return nil
}

// StepsForJob returns a job's workflow steps ordered by step index.
func (t *Tx) StepsForJob(ctx context.Context, jobID int64) ([]*WorkflowStep, error) {
	query := "SELECT " + stepColumns + " FROM workflow_steps WHERE job_id = ? ORDER BY step_index"
	var rows []stepRow
	if err := t.tx.SelectContext(ctx, &rows, t.rebind(query), jobID); err != nil {
		return nil, fmt.Errorf("load workflow steps for job %d: %w", jobID, err)
	}
	steps := make([]*WorkflowStep, 0, len(rows))
	for _, row := range rows {
		steps = append(steps, row.toStep())
	}
	return steps, nil
}

// StepByIndex loads one workflow step of a job.
func (t *Tx) StepByIndex(ctx context.Context, jobID int64, stepIndex int, forUpdate bool) (*WorkflowStep, error) {
	query := "SELECT " + stepColumns + " FROM workflow_steps WHERE job_id = ? AND step_index = ?"
	if forUpdate {
		query += t.forUpdate()
	}
	var row stepRow
	if err := t.tx.GetContext(ctx, &row, t.rebind(query), jobID, stepIndex); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load workflow step %d/%d: %w", jobID, stepIndex, err)
	}
	return row.toStep(), nil
}

// GrowWorkItemCount raises a step's expected item count, never lowering it.
func (t *Tx) GrowWorkItemCount(ctx context.Context, jobID int64, stepIndex, count int) error {
	query := `UPDATE workflow_steps
		SET work_item_count = CASE WHEN work_item_count < ? THEN ? ELSE work_item_count END,
			updated_at = ?
		WHERE job_id = ? AND step_index = ?`
	result, err := t.tx.ExecContext(ctx, t.rebind(query),
		count, count, formatTime(time.Now().UTC()), jobID, stepIndex)
	if err != nil {
		return fmt.Errorf("grow work item count for step %d/%d: %w", jobID, stepIndex, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("grow work item count for step %d/%d: %w", jobID, stepIndex, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllItemsCreated flips a step's completion flag exactly once. It reports
// true only for the caller that performed the flip, so fan-in work that must
// happen once can key off the return value.
func (t *Tx) MarkAllItemsCreated(ctx context.Context, jobID int64, stepIndex int) (bool, error) {
	query := `UPDATE workflow_steps SET all_items_created = 1, updated_at = ?
		WHERE job_id = ? AND step_index = ? AND all_items_created = 0`
	result, err := t.tx.ExecContext(ctx, t.rebind(query),
		formatTime(time.Now().UTC()), jobID, stepIndex)
	if err != nil {
		return false, fmt.Errorf("mark step %d/%d complete: %w", jobID, stepIndex, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark step %d/%d complete: %w", jobID, stepIndex, err)
	}
	return affected == 1, nil
}
