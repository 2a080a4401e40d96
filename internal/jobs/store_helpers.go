package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, request_id, username, status, message, progress, request, labels, sync_only, ignore_errors, destination_url, preview_threshold, num_input_granules, created_at, updated_at"

const stepColumns = "id, job_id, step_index, service_id, operation, aggregated, work_item_count, all_items_created, created_at, updated_at"

const itemColumns = "id, job_id, step_index, service_id, status, page_cursor, input_location, results, message, retry_count, claimed_at, created_at, updated_at"

const linkColumns = "id, job_id, href, rel, type, title, bbox, temporal_start, temporal_end, created_at"

type jobRow struct {
	ID               int64   `db:"id"`
	RequestID        string  `db:"request_id"`
	Username         string  `db:"username"`
	Status           string  `db:"status"`
	Message          string  `db:"message"`
	Progress         float64 `db:"progress"`
	Request          string  `db:"request"`
	Labels           string  `db:"labels"`
	SyncOnly         int     `db:"sync_only"`
	IgnoreErrors     int     `db:"ignore_errors"`
	DestinationURL   string  `db:"destination_url"`
	PreviewThreshold int     `db:"preview_threshold"`
	NumInputGranules int     `db:"num_input_granules"`
	CreatedAt        string  `db:"created_at"`
	UpdatedAt        string  `db:"updated_at"`
}

func (r jobRow) toJob() (*Job, error) {
	labels, err := decodeStringList(r.Labels)
	if err != nil {
		return nil, fmt.Errorf("decode job labels: %w", err)
	}
	job := &Job{
		ID:               r.ID,
		RequestID:        r.RequestID,
		Username:         r.Username,
		Status:           JobStatus(r.Status),
		Message:          r.Message,
		Progress:         r.Progress,
		Request:          r.Request,
		Labels:           labels,
		SyncOnly:         r.SyncOnly != 0,
		IgnoreErrors:     r.IgnoreErrors != 0,
		DestinationURL:   r.DestinationURL,
		PreviewThreshold: r.PreviewThreshold,
		NumInputGranules: r.NumInputGranules,
	}
	if created, err := parseTimeString(r.CreatedAt); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(r.UpdatedAt); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

type stepRow struct {
	ID              int64  `db:"id"`
	JobID           int64  `db:"job_id"`
	StepIndex       int    `db:"step_index"`
	ServiceID       string `db:"service_id"`
	Operation       string `db:"operation"`
	Aggregated      int    `db:"aggregated"`
	WorkItemCount   int    `db:"work_item_count"`
	AllItemsCreated int    `db:"all_items_created"`
	CreatedAt       string `db:"created_at"`
	UpdatedAt       string `db:"updated_at"`
}

func (r stepRow) toStep() *WorkflowStep {
	step := &WorkflowStep{
		ID:              r.ID,
		JobID:           r.JobID,
		StepIndex:       r.StepIndex,
		ServiceID:       r.ServiceID,
		Operation:       r.Operation,
		Aggregated:      r.Aggregated != 0,
		WorkItemCount:   r.WorkItemCount,
		AllItemsCreated: r.AllItemsCreated != 0,
	}
	if created, err := parseTimeString(r.CreatedAt); err == nil {
		step.CreatedAt = created
	}
	if updated, err := parseTimeString(r.UpdatedAt); err == nil {
		step.UpdatedAt = updated
	}
	return step
}

type itemRow struct {
	ID            int64          `db:"id"`
	JobID         int64          `db:"job_id"`
	StepIndex     int            `db:"step_index"`
	ServiceID     string         `db:"service_id"`
	Status        string         `db:"status"`
	PageCursor    string         `db:"page_cursor"`
	InputLocation string         `db:"input_location"`
	Results       string         `db:"results"`
	Message       string         `db:"message"`
	RetryCount    int            `db:"retry_count"`
	ClaimedAt     sql.NullString `db:"claimed_at"`
	CreatedAt     string         `db:"created_at"`
	UpdatedAt     string         `db:"updated_at"`
}

func (r itemRow) toWorkItem() (*WorkItem, error) {
	results, err := decodeStringList(r.Results)
	if err != nil {
		return nil, fmt.Errorf("decode work item results: %w", err)
	}
	item := &WorkItem{
		ID:            r.ID,
		JobID:         r.JobID,
		StepIndex:     r.StepIndex,
		ServiceID:     r.ServiceID,
		Status:        WorkItemStatus(r.Status),
		Cursor:        r.PageCursor,
		InputLocation: r.InputLocation,
		Results:       results,
		Message:       r.Message,
		RetryCount:    r.RetryCount,
	}
	if r.ClaimedAt.Valid {
		if claimed, err := parseTimeString(r.ClaimedAt.String); err == nil {
			item.ClaimedAt = &claimed
		}
	}
	if created, err := parseTimeString(r.CreatedAt); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(r.UpdatedAt); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

type linkRow struct {
	ID            int64          `db:"id"`
	JobID         int64          `db:"job_id"`
	Href          string         `db:"href"`
	Rel           string         `db:"rel"`
	Type          string         `db:"type"`
	Title         string         `db:"title"`
	BBox          string         `db:"bbox"`
	TemporalStart sql.NullString `db:"temporal_start"`
	TemporalEnd   sql.NullString `db:"temporal_end"`
	CreatedAt     string         `db:"created_at"`
}

func (r linkRow) toLink() (*Link, error) {
	link := &Link{
		ID:    r.ID,
		JobID: r.JobID,
		Href:  r.Href,
		Rel:   r.Rel,
		Type:  r.Type,
		Title: r.Title,
	}
	if r.BBox != "" {
		if err := json.Unmarshal([]byte(r.BBox), &link.BBox); err != nil {
			return nil, fmt.Errorf("decode link bbox: %w", err)
		}
	}
	if r.TemporalStart.Valid {
		if start, err := parseTimeString(r.TemporalStart.String); err == nil {
			link.TemporalStart = &start
		}
	}
	if r.TemporalEnd.Valid {
		if end, err := parseTimeString(r.TemporalEnd.String); err == nil {
			link.TemporalEnd = &end
		}
	}
	if created, err := parseTimeString(r.CreatedAt); err == nil {
		link.CreatedAt = created
	}
	return link, nil
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func encodeStringList(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func decodeStringList(value string) ([]string, error) {
	if value == "" || value == "[]" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(value), &values); err != nil {
		return nil, err
	}
	return values, nil
}

func encodeBBox(values []float64) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
