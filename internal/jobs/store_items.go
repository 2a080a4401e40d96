package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// WorkItemFilter narrows work item listings. Zero-value fields are ignored.
type WorkItemFilter struct {
	Statuses  []WorkItemStatus
	StepIndex *int
}

// StepTally counts a step's work items by status.
type StepTally struct {
	Ready      int
	Running    int
	Successful int
	Failed     int
	Canceled   int
}

// Total returns the number of items the tally covers.
func (s StepTally) Total() int {
	return s.Ready + s.Running + s.Successful + s.Failed + s.Canceled
}

// Terminal returns the number of items that have finished.
func (s StepTally) Terminal() int {
	return s.Successful + s.Failed + s.Canceled
}

// Pending returns the number of items still waiting or in flight.
func (s StepTally) Pending() int {
	return s.Ready + s.Running
}

// InsertWorkItems persists a batch of work items.
func (t *Tx) InsertWorkItems(ctx context.Context, items []*WorkItem) error {
	query := `INSERT INTO work_items (job_id, step_index, service_id, status, page_cursor, input_location, results, message, retry_count, claimed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, item := range items {
		if item.JobID == 0 {
			return NewValidationError("Work item record is invalid: job_id is required")
		}
		if item.ServiceID == "" {
			return NewValidationError("Work item record is invalid: service_id is required")
		}
		if item.Status == "" {
			item.Status = WorkReady
		}
		if _, ok := ParseWorkItemStatus(string(item.Status)); !ok {
			return NewValidationError("Work item record is invalid: unknown status %q", item.Status)
		}
		results, err := encodeStringList(item.Results)
		if err != nil {
			return fmt.Errorf("encode work item results: %w", err)
		}
		now := time.Now().UTC()
		stamp := formatTime(now)
		id, err := t.insertID(ctx, query,
			item.JobID, item.StepIndex, item.ServiceID, string(item.Status),
			item.Cursor, item.InputLocation, results, item.Message,
			item.RetryCount, nullableTime(item.ClaimedAt), stamp, stamp)
		if err != nil {
			return fmt.Errorf("insert work item for job %d step %d: %w", item.JobID, item.StepIndex, err)
		}
		item.ID = id
		item.CreatedAt = now
		item.UpdatedAt = now
	}
	return nil
}

// WorkItemByID loads one work item.
func (t *Tx) WorkItemByID(ctx context.Context, id int64, forUpdate bool) (*WorkItem, error) {
	query := "SELECT " + itemColumns + " FROM work_items WHERE id = ?"
	if forUpdate {
		query += t.forUpdate()
	}
	var row itemRow
	if err := t.tx.GetContext(ctx, &row, t.rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load work item %d: %w", id, err)
	}
	return row.toWorkItem()
}

// UpdateWorkItem writes the item's mutable fields back and bumps updated_at.
func (t *Tx) UpdateWorkItem(ctx context.Context, item *WorkItem) error {
	if item.ID == 0 {
		return NewValidationError("Work item record is invalid: id is required for update")
	}
	results, err := encodeStringList(item.Results)
	if err != nil {
		return fmt.Errorf("encode work item results: %w", err)
	}
	now := time.Now().UTC()
	query := `UPDATE work_items SET status = ?, results = ?, message = ?, retry_count = ?, claimed_at = ?, updated_at = ? WHERE id = ?`
	result, err := t.tx.ExecContext(ctx, t.rebind(query),
		string(item.Status), results, item.Message, item.RetryCount,
		nullableTime(item.ClaimedAt), formatTime(now), item.ID)
	if err != nil {
		return fmt.Errorf("update work item %d: %w", item.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update work item %d: %w", item.ID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	item.UpdatedAt = now
	return nil
}

func buildWorkItemFilter(jobID int64, filter WorkItemFilter) (string, []any) {
	clauses := []string{"job_id = ?"}
	args := []any{jobID}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	if filter.StepIndex != nil {
		clauses = append(clauses, "step_index = ?")
		args = append(args, *filter.StepIndex)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListWorkItems returns one page of a job's work items in id order, plus the
// total match count.
func (t *Tx) ListWorkItems(ctx context.Context, jobID int64, filter WorkItemFilter, page Page) ([]*WorkItem, int, error) {
	if page.Limit <= 0 {
		return nil, 0, NewValidationError("Work item listing is invalid: limit must be positive, got %d", page.Limit)
	}
	where, args := buildWorkItemFilter(jobID, filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM work_items" + where
	if err := t.tx.GetContext(ctx, &total, t.rebind(countQuery), args...); err != nil {
		return nil, 0, fmt.Errorf("count work items: %w", err)
	}

	query := "SELECT " + itemColumns + " FROM work_items" + where + " ORDER BY id LIMIT ? OFFSET ?"
	listArgs := append(append([]any{}, args...), page.Limit, page.Offset)
	var rows []itemRow
	if err := t.tx.SelectContext(ctx, &rows, t.rebind(query), listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list work items: %w", err)
	}
	items := make([]*WorkItem, 0, len(rows))
	for _, row := range rows {
		item, err := row.toWorkItem()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, nil
}

// StepItemTally counts one step's work items grouped by status.
func (t *Tx) StepItemTally(ctx context.Context, jobID int64, stepIndex int) (StepTally, error) {
	type countRow struct {
		Status string `db:"status"`
		Total  int    `db:"total"`
	}
	query := `SELECT status, COUNT(*) AS total FROM work_items WHERE job_id = ? AND step_index = ? GROUP BY status`
	var rows []countRow
	if err := t.tx.SelectContext(ctx, &rows, t.rebind(query), jobID, stepIndex); err != nil {
		return StepTally{}, fmt.Errorf("tally work items for step %d/%d: %w", jobID, stepIndex, err)
	}
	var tally StepTally
	for _, row := range rows {
		switch WorkItemStatus(row.Status) {
		case WorkReady:
			tally.Ready = row.Total
		case WorkRunning:
			tally.Running = row.Total
		case WorkSuccessful:
			tally.Successful = row.Total
		case WorkFailed:
			tally.Failed = row.Total
		case WorkCanceled:
			tally.Canceled = row.Total
		}
	}
	return tally, nil
}

// SuccessfulResults returns the result locations of a step's successful
// items in id order. Fan-in steps aggregate these into a single input.
func (t *Tx) SuccessfulResults(ctx context.Context, jobID int64, stepIndex int) ([]string, error) {
	query := `SELECT results FROM work_items WHERE job_id = ? AND step_index = ? AND status = ? ORDER BY id`
	var encoded []string
	if err := t.tx.SelectContext(ctx, &encoded, t.rebind(query), jobID, stepIndex, string(WorkSuccessful)); err != nil {
		return nil, fmt.Errorf("load results for step %d/%d: %w", jobID, stepIndex, err)
	}
	var all []string
	for _, blob := range encoded {
		results, err := decodeStringList(blob)
		if err != nil {
			return nil, fmt.Errorf("decode work item results: %w", err)
		}
		all = append(all, results...)
	}
	return all, nil
}

// CancelActiveItems marks every ready or running item of a job canceled and
// reports how many rows changed.
func (t *Tx) CancelActiveItems(ctx context.Context, jobID int64) (int64, error) {
	query := `UPDATE work_items SET status = ?, claimed_at = NULL, updated_at = ? WHERE job_id = ? AND status IN (?, ?)`
	result, err := t.tx.ExecContext(ctx, t.rebind(query),
		string(WorkCanceled), formatTime(time.Now().UTC()), jobID,
		string(WorkReady), string(WorkRunning))
	if err != nil {
		return 0, fmt.Errorf("cancel work items for job %d: %w", jobID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cancel work items for job %d: %w", jobID, err)
	}
	return affected, nil
}

// ReadyCount reports how many items a service could claim right now. The
// join mirrors claim eligibility, so paused and terminal jobs do not count.
func (t *Tx) ReadyCount(ctx context.Context, serviceID string) (int, error) {
	query := `SELECT COUNT(*) FROM work_items w
		JOIN jobs j ON j.id = w.job_id
		WHERE w.service_id = ? AND w.status = ? AND j.status IN (` + makePlaceholders(len(activeJobStatuses)) + `)`
	args := []any{serviceID, string(WorkReady)}
	for _, status := range activeJobStatuses {
		args = append(args, string(status))
	}
	var count int
	if err := t.tx.GetContext(ctx, &count, t.rebind(query), args...); err != nil {
		return 0, fmt.Errorf("count ready work for %s: %w", serviceID, err)
	}
	return count, nil
}

// ExpiredRunningItems returns items claimed before the cutoff, oldest claim
// first, capped at limit.
func (t *Tx) ExpiredRunningItems(ctx context.Context, cutoff time.Time, limit int) ([]*WorkItem, error) {
	if limit <= 0 {
		limit = 100
	}
	query := "SELECT " + itemColumns + ` FROM work_items
		WHERE status = ? AND claimed_at IS NOT NULL AND claimed_at < ?
		ORDER BY claimed_at LIMIT ?`
	var rows []itemRow
	if err := t.tx.SelectContext(ctx, &rows, t.rebind(query), string(WorkRunning), formatTime(cutoff), limit); err != nil {
		return nil, fmt.Errorf("load expired work items: %w", err)
	}
	items := make([]*WorkItem, 0, len(rows))
	for _, row := range rows {
		item, err := row.toWorkItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
