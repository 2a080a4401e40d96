package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobFilter narrows job listings. Zero-value fields are ignored.
type JobFilter struct {
	Statuses        []JobStatus
	ExcludeStatuses []JobStatus
	Username        string
	CreatedSince    *time.Time
	CreatedUntil    *time.Time
	UpdatedSince    *time.Time
	UpdatedUntil    *time.Time
}

// Page selects a window of a listing. Limit must be positive.
type Page struct {
	Limit  int
	Offset int
}

// insertID runs an INSERT and reports the generated row id.
func (t *Tx) insertID(ctx context.Context, query string, args ...any) (int64, error) {
	if t.driver == DriverPostgres {
		var id int64
		row := t.tx.QueryRowContext(ctx, t.rebind(query+" RETURNING id"), args...)
		if err := row.Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	result, err := t.tx.ExecContext(ctx, t.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// InsertJob persists a new job and fills in its id and timestamps.
func (t *Tx) InsertJob(ctx context.Context, job *Job) error {
	if job.RequestID == "" {
		return NewValidationError("Job record is invalid: request_id is required")
	}
	if job.Username == "" {
		return NewValidationError("Job record is invalid: username is required")
	}
	if job.Status == "" {
		job.Status = JobAccepted
	}
	if _, ok := ParseJobStatus(string(job.Status)); !ok {
		return NewValidationError("Job record is invalid: unknown status %q", job.Status)
	}
	labels, err := encodeStringList(job.Labels)
	if err != nil {
		return fmt.Errorf("encode job labels: %w", err)
	}
	now := time.Now().UTC()
	stamp := formatTime(now)
	query := `INSERT INTO jobs (request_id, username, status, message, progress, request, labels, sync_only, ignore_errors, destination_url, preview_threshold, num_input_granules, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := t.insertID(ctx, query,
		job.RequestID, job.Username, string(job.Status), job.Message, job.Progress,
		job.Request, labels, boolToInt(job.SyncOnly), boolToInt(job.IgnoreErrors),
		job.DestinationURL, job.PreviewThreshold, job.NumInputGranules, stamp, stamp)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	job.ID = id
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

// JobByRequestID loads a job by its public request id.
func (t *Tx) JobByRequestID(ctx context.Context, requestID string, forUpdate bool) (*Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE request_id = ?"
	if forUpdate {
		query += t.forUpdate()
	}
	var row jobRow
	if err := t.tx.GetContext(ctx, &row, t.rebind(query), requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load job %s: %w", requestID, err)
	}
	return row.toJob()
}

// JobByID loads a job by its internal id.
func (t *Tx) JobByID(ctx context.Context, id int64, forUpdate bool) (*Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE id = ?"
	if forUpdate {
		query += t.forUpdate()
	}
	var row jobRow
	if err := t.tx.GetContext(ctx, &row, t.rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load job %d: %w", id, err)
	}
	return row.toJob()
}

// UpdateJob writes the job's mutable fields back and bumps updated_at.
func (t *Tx) UpdateJob(ctx context.Context, job *Job) error {
	if job.ID == 0 {
		return NewValidationError("Job record is invalid: id is required for update")
	}
	labels, err := encodeStringList(job.Labels)
	if err != nil {
		return fmt.Errorf("encode job labels: %w", err)
	}
	now := time.Now().UTC()
	query := `UPDATE jobs SET status = ?, message = ?, progress = ?, labels = ?, updated_at = ? WHERE id = ?`
	result, err := t.tx.ExecContext(ctx, t.rebind(query),
		string(job.Status), job.Message, job.Progress, labels, formatTime(now), job.ID)
	if err != nil {
		return fmt.Errorf("update job %d: %w", job.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %d: %w", job.ID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	job.UpdatedAt = now
	return nil
}

func buildJobFilter(filter JobFilter) (string, []any) {
	var clauses []string
	var args []any
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	if len(filter.ExcludeStatuses) > 0 {
		clauses = append(clauses, "status NOT IN ("+makePlaceholders(len(filter.ExcludeStatuses))+")")
		for _, status := range filter.ExcludeStatuses {
			args = append(args, string(status))
		}
	}
	if filter.Username != "" {
		clauses = append(clauses, "username = ?")
		args = append(args, filter.Username)
	}
	if filter.CreatedSince != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, formatTime(*filter.CreatedSince))
	}
	if filter.CreatedUntil != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, formatTime(*filter.CreatedUntil))
	}
	if filter.UpdatedSince != nil {
		clauses = append(clauses, "updated_at >= ?")
		args = append(args, formatTime(*filter.UpdatedSince))
	}
	if filter.UpdatedUntil != nil {
		clauses = append(clauses, "updated_at <= ?")
		args = append(args, formatTime(*filter.UpdatedUntil))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListJobs returns one page of jobs, newest first, plus the total match count.
func (t *Tx) ListJobs(ctx context.Context, filter JobFilter, page Page) ([]*Job, int, error) {
	if page.Limit <= 0 {
		return nil, 0, NewValidationError("Job listing is invalid: limit must be positive, got %d", page.Limit)
	}
	where, args := buildJobFilter(filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM jobs" + where
	if err := t.tx.GetContext(ctx, &total, t.rebind(countQuery), args...); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	query := "SELECT " + jobColumns + " FROM jobs" + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	listArgs := append(append([]any{}, args...), page.Limit, page.Offset)
	var rows []jobRow
	if err := t.tx.SelectContext(ctx, &rows, t.rebind(query), listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	listed := make([]*Job, 0, len(rows))
	for _, row := range rows {
		job, err := row.toJob()
		if err != nil {
			return nil, 0, err
		}
		listed = append(listed, job)
	}
	return listed, total, nil
}

// CountJobsByStatus tallies jobs per status across the whole table.
func (t *Tx) CountJobsByStatus(ctx context.Context) (map[JobStatus]int, error) {
	type countRow struct {
		Status string `db:"status"`
		Total  int    `db:"total"`
	}
	var rows []countRow
	query := "SELECT status, COUNT(*) AS total FROM jobs GROUP BY status"
	if err := t.tx.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	counts := make(map[JobStatus]int, len(rows))
	for _, row := range rows {
		counts[JobStatus(row.Status)] = row.Total
	}
	return counts, nil
}
