package api

import (
	"encoding/json"
	"time"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a job in a transport-friendly format.
type Job struct {
	JobID            string   `json:"jobID"`
	Username         string   `json:"username"`
	Status           string   `json:"status"`
	Message          string   `json:"message,omitempty"`
	Progress         float64  `json:"progress"`
	Request          string   `json:"request,omitempty"`
	Labels           []string `json:"labels,omitempty"`
	NumInputGranules int      `json:"numInputGranules"`
	IgnoreErrors     bool     `json:"ignoreErrors"`
	DestinationURL   string   `json:"destinationUrl,omitempty"`
	CreatedAt        string   `json:"createdAt,omitempty"`
	UpdatedAt        string   `json:"updatedAt,omitempty"`
}

// WorkItem describes one unit of work within a job.
type WorkItem struct {
	ID         int64    `json:"id"`
	StepIndex  int      `json:"stepIndex"`
	ServiceID  string   `json:"serviceID"`
	Status     string   `json:"status"`
	Results    []string `json:"results,omitempty"`
	Message    string   `json:"message,omitempty"`
	RetryCount int      `json:"retryCount"`
	ClaimedAt  string   `json:"claimedAt,omitempty"`
	CreatedAt  string   `json:"createdAt,omitempty"`
	UpdatedAt  string   `json:"updatedAt,omitempty"`
}

// Link is one result artifact attached to a job.
type Link struct {
	Href          string     `json:"href"`
	Rel           string     `json:"rel"`
	Type          string     `json:"type,omitempty"`
	Title         string     `json:"title,omitempty"`
	BBox          []float64  `json:"bbox,omitempty"`
	TemporalStart *time.Time `json:"temporalStart,omitempty"`
	TemporalEnd   *time.Time `json:"temporalEnd,omitempty"`
}

// JobSource selects a job's input granules: either a catalog collection
// query or an explicit granule URL list.
type JobSource struct {
	Collection    string     `json:"collection,omitempty"`
	Variables     []string   `json:"variables,omitempty"`
	Granules      []string   `json:"granules,omitempty"`
	BBox          []float64  `json:"bbox,omitempty"`
	TemporalStart *time.Time `json:"temporalStart,omitempty"`
	TemporalEnd   *time.Time `json:"temporalEnd,omitempty"`
}

// JobStage is one workflow step of a create request. Operation carries the
// service's parameter template as raw JSON.
type JobStage struct {
	ServiceID  string          `json:"serviceID"`
	Operation  json.RawMessage `json:"operation,omitempty"`
	Aggregated bool            `json:"aggregated,omitempty"`
}

// CreateJobRequest is the POST /jobs payload. The acting username comes from
// the request header, not the body.
type CreateJobRequest struct {
	Request          string     `json:"request,omitempty"`
	Source           JobSource  `json:"source"`
	Stages           []JobStage `json:"stages"`
	Labels           []string   `json:"labels,omitempty"`
	DestinationURL   string     `json:"destinationUrl,omitempty"`
	Synchronous      bool       `json:"synchronous,omitempty"`
	SkipPreview      bool       `json:"skipPreview,omitempty"`
	PreviewThreshold int        `json:"previewThreshold,omitempty"`
	IgnoreErrors     *bool      `json:"ignoreErrors,omitempty"`
}

// JobDetail is a job plus the first page of its result links.
type JobDetail struct {
	Job
	Links     []Link `json:"links,omitempty"`
	LinkCount int    `json:"linkCount"`
}

// PageLinks are the relative URLs for walking a paged listing. Prev and
// Next are omitted at the corresponding end of the result set; following
// Next always yields the page disjoint from and after the current one.
type PageLinks struct {
	Self string `json:"self"`
	Prev string `json:"prev,omitempty"`
	Next string `json:"next,omitempty"`
}

// JobList wraps a page of jobs. Count is the filtered total, not the page
// length.
type JobList struct {
	Jobs       []Job     `json:"jobs"`
	Count      int       `json:"count"`
	Pagination PageLinks `json:"pagination"`
}

// WorkItemList wraps a page of one job's work items.
type WorkItemList struct {
	Items      []WorkItem `json:"items"`
	Count      int        `json:"count"`
	Pagination PageLinks  `json:"pagination"`
}

// LinkList wraps a page of one job's result links.
type LinkList struct {
	Links      []Link    `json:"links"`
	Count      int       `json:"count"`
	Pagination PageLinks `json:"pagination"`
}

// ClaimedWork is the response to a successful work claim. Operation is the
// fully materialized document the worker executes.
type ClaimedWork struct {
	ItemID     int64           `json:"itemID"`
	JobID      string          `json:"jobID"`
	StepIndex  int             `json:"stepIndex"`
	ServiceID  string          `json:"serviceID"`
	RetryCount int             `json:"retryCount"`
	Operation  json.RawMessage `json:"operation"`
}

// WorkReport is the PUT /work/{id} payload for a completion callback.
type WorkReport struct {
	Status     string   `json:"status"`
	Results    []string `json:"results,omitempty"`
	Message    string   `json:"message,omitempty"`
	NextCursor string   `json:"nextCursor,omitempty"`
	TotalCount int      `json:"totalCount,omitempty"`
}

// CountResponse reports a single backlog depth.
type CountResponse struct {
	Count int `json:"count"`
}

// Health reports daemon liveness and store reachability.
type Health struct {
	Status   string         `json:"status"`
	Database string         `json:"database"`
	Jobs     map[string]int `json:"jobs,omitempty"`
}

// ErrorResponse carries a single error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
