package jobs

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle of a job.
type JobStatus string

const (
	JobAccepted           JobStatus = "accepted"
	JobPreviewing         JobStatus = "previewing"
	JobRunning            JobStatus = "running"
	JobRunningWithErrors  JobStatus = "running_with_errors"
	JobPaused             JobStatus = "paused"
	JobSuccessful         JobStatus = "successful"
	JobCompleteWithErrors JobStatus = "complete_with_errors"
	JobFailed             JobStatus = "failed"
	JobCanceled           JobStatus = "canceled"
)

var allJobStatuses = []JobStatus{
	JobAccepted,
	JobPreviewing,
	JobRunning,
	JobRunningWithErrors,
	JobPaused,
	JobSuccessful,
	JobCompleteWithErrors,
	JobFailed,
	JobCanceled,
}

var jobStatusSet = func() map[JobStatus]struct{} {
	set := make(map[JobStatus]struct{}, len(allJobStatuses))
	for _, status := range allJobStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// terminalJobStatuses are the states a job never leaves.
var terminalJobStatuses = map[JobStatus]struct{}{
	JobSuccessful:         {},
	JobCompleteWithErrors: {},
	JobFailed:             {},
	JobCanceled:           {},
}

// activeJobStatuses are the states whose ready work items may be claimed.
// Paused and previewing-then-paused jobs keep their items but stop dispatch.
var activeJobStatuses = []JobStatus{
	JobAccepted,
	JobPreviewing,
	JobRunning,
	JobRunningWithErrors,
}

// cancelableJobStatuses are the states a job may be canceled from.
var cancelableJobStatuses = map[JobStatus]struct{}{
	JobAccepted:          {},
	JobPreviewing:        {},
	JobRunning:           {},
	JobRunningWithErrors: {},
	JobPaused:            {},
}

// AllJobStatuses returns the ordered list of known job statuses.
func AllJobStatuses() []JobStatus {
	cp := make([]JobStatus, len(allJobStatuses))
	copy(cp, allJobStatuses)
	return cp
}

// ParseJobStatus converts a string into a known JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := jobStatusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a job status is final.
func (s JobStatus) IsTerminal() bool {
	_, ok := terminalJobStatuses[s]
	return ok
}

// ActiveJobStatuses returns the job statuses eligible for work dispatch.
func ActiveJobStatuses() []JobStatus {
	cp := make([]JobStatus, len(activeJobStatuses))
	copy(cp, activeJobStatuses)
	return cp
}

// WorkItemStatus represents the lifecycle of a work item.
type WorkItemStatus string

const (
	WorkReady      WorkItemStatus = "ready"
	WorkRunning    WorkItemStatus = "running"
	WorkSuccessful WorkItemStatus = "successful"
	WorkFailed     WorkItemStatus = "failed"
	WorkCanceled   WorkItemStatus = "canceled"
)

var allWorkItemStatuses = []WorkItemStatus{
	WorkReady,
	WorkRunning,
	WorkSuccessful,
	WorkFailed,
	WorkCanceled,
}

var workItemStatusSet = func() map[WorkItemStatus]struct{} {
	set := make(map[WorkItemStatus]struct{}, len(allWorkItemStatuses))
	for _, status := range allWorkItemStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalWorkItemStatuses = map[WorkItemStatus]struct{}{
	WorkSuccessful: {},
	WorkFailed:     {},
	WorkCanceled:   {},
}

// AllWorkItemStatuses returns the ordered list of known work item statuses.
func AllWorkItemStatuses() []WorkItemStatus {
	cp := make([]WorkItemStatus, len(allWorkItemStatuses))
	copy(cp, allWorkItemStatuses)
	return cp
}

// ParseWorkItemStatus converts a string into a known WorkItemStatus.
func ParseWorkItemStatus(value string) (WorkItemStatus, bool) {
	normalized := WorkItemStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := workItemStatusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a work item status is final.
func (s WorkItemStatus) IsTerminal() bool {
	_, ok := terminalWorkItemStatuses[s]
	return ok
}

// Job is a user request undergoing orchestration.
type Job struct {
	ID               int64
	RequestID        string
	Username         string
	Status           JobStatus
	Message          string
	Progress         float64
	Request          string
	Labels           []string
	SyncOnly         bool
	IgnoreErrors     bool
	DestinationURL   string
	PreviewThreshold int
	NumInputGranules int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// WorkflowStep is one stage of a job's processing chain.
type WorkflowStep struct {
	ID              int64
	JobID           int64
	StepIndex       int
	ServiceID       string
	Operation       string
	Aggregated      bool
	WorkItemCount   int
	AllItemsCreated bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WorkItem is a single schedulable unit of work for one worker service.
type WorkItem struct {
	ID            int64
	JobID         int64
	StepIndex     int
	ServiceID     string
	Status        WorkItemStatus
	Cursor        string
	InputLocation string
	Results       []string
	Message       string
	RetryCount    int
	ClaimedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Link is a labeled artifact reference attached to a job.
type Link struct {
	ID            int64
	JobID         int64
	Href          string
	Rel           string
	Type          string
	Title         string
	BBox          []float64
	TemporalStart *time.Time
	TemporalEnd   *time.Time
	CreatedAt     time.Time
}

// SetProgress updates job progress, rejecting values outside [0, 100].
func (j *Job) SetProgress(progress float64) error {
	if progress < 0 || progress > 100 {
		return NewValidationError("Job record is invalid: progress must be between 0 and 100, got %g", progress)
	}
	j.Progress = progress
	return nil
}

// Pause transitions a running job to paused.
func (j *Job) Pause() error {
	if j.Status != JobRunning {
		return &ConflictError{
			Requested: JobPaused,
			Actual:    j.Status,
			Message:   fmt.Sprintf("Job status cannot be updated from %s to paused.", j.Status),
		}
	}
	j.Status = JobPaused
	return nil
}

// Resume transitions a paused job back to running.
func (j *Job) Resume() error {
	if j.Status != JobPaused {
		return &ConflictError{
			Requested: JobRunning,
			Actual:    j.Status,
			Message:   fmt.Sprintf("Job status is %s - only paused jobs can be resumed.", j.Status),
		}
	}
	j.Status = JobRunning
	return nil
}

// Cancel transitions a non-terminal job to canceled.
func (j *Job) Cancel() error {
	if _, ok := cancelableJobStatuses[j.Status]; !ok {
		return &ConflictError{
			Requested: JobCanceled,
			Actual:    j.Status,
			Message:   fmt.Sprintf("Job status cannot be updated from %s to canceled.", j.Status),
		}
	}
	j.Status = JobCanceled
	return nil
}

// SkipPreview moves a job that has not started processing straight to running.
func (j *Job) SkipPreview() error {
	if j.Status != JobAccepted && j.Status != JobPreviewing {
		return &ConflictError{
			Requested: JobRunning,
			Actual:    j.Status,
			Message:   fmt.Sprintf("Job status cannot be updated from %s to running.", j.Status),
		}
	}
	j.Status = JobRunning
	return nil
}

// EffectivePreviewThreshold returns the job override or the supplied default.
func (j *Job) EffectivePreviewThreshold(configured int) int {
	if j.PreviewThreshold > 0 {
		return j.PreviewThreshold
	}
	return configured
}

// HasTerminalStatus reports whether the job has reached a final state.
func (j *Job) HasTerminalStatus() bool {
	return j.Status.IsTerminal()
}
