// Package client is the HTTP client for the stratad API. The CLI and
// external workers use it instead of hand-rolling requests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"strata/internal/api"
)

const defaultTimeout = 30 * time.Second

// userHeader mirrors the header the daemon reads the acting user from.
const userHeader = "X-Strata-User"

// Config describes the daemon endpoint and the caller's identity.
type Config struct {
	BaseURL    string
	Token      string
	Username   string
	HTTPClient *http.Client
}

// Client talks to a running stratad instance.
type Client struct {
	baseURL  *url.URL
	token    string
	username string
	http     *http.Client
}

// APIError is a non-2xx response from the daemon with its decoded message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("daemon returned status %d", e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a 409 from the daemon.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("client: base url is required")
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:  baseURL,
		token:    strings.TrimSpace(cfg.Token),
		username: strings.TrimSpace(cfg.Username),
		http:     httpClient,
	}, nil
}

// ListJobsOptions filter and page a job listing.
type ListJobsOptions struct {
	Statuses     []string
	Username     string
	CreatedSince *time.Time
	CreatedUntil *time.Time
	UpdatedSince *time.Time
	UpdatedUntil *time.Time
	Limit        int
	Offset       int
}

// WorkItemsOptions filter and page a work item listing.
type WorkItemsOptions struct {
	Statuses  []string
	StepIndex *int
	Limit     int
	Offset    int
}

// CreateJob submits a new job.
func (c *Client) CreateJob(ctx context.Context, req api.CreateJobRequest) (*api.Job, error) {
	var job api.Job
	if err := c.do(ctx, http.MethodPost, nil, req, &job, "jobs"); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns a filtered page of the caller's jobs.
func (c *Client) ListJobs(ctx context.Context, opts ListJobsOptions) (*api.JobList, error) {
	query := url.Values{}
	for _, status := range opts.Statuses {
		query.Add("status", status)
	}
	if opts.Username != "" {
		query.Set("username", opts.Username)
	}
	setTimeParam(query, "createdSince", opts.CreatedSince)
	setTimeParam(query, "createdUntil", opts.CreatedUntil)
	setTimeParam(query, "updatedSince", opts.UpdatedSince)
	setTimeParam(query, "updatedUntil", opts.UpdatedUntil)
	setPageParams(query, opts.Limit, opts.Offset)

	var list api.JobList
	if err := c.doQuery(ctx, http.MethodGet, query, nil, &list, "jobs"); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetJob fetches one job with the first page of its result links.
func (c *Client) GetJob(ctx context.Context, jobID string) (*api.JobDetail, error) {
	var detail api.JobDetail
	if err := c.do(ctx, http.MethodGet, nil, nil, &detail, "jobs", jobID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// JobWorkItems lists one job's work items.
func (c *Client) JobWorkItems(ctx context.Context, jobID string, opts WorkItemsOptions) (*api.WorkItemList, error) {
	query := url.Values{}
	for _, status := range opts.Statuses {
		query.Add("status", status)
	}
	if opts.StepIndex != nil {
		query.Set("stepIndex", strconv.Itoa(*opts.StepIndex))
	}
	setPageParams(query, opts.Limit, opts.Offset)

	var list api.WorkItemList
	if err := c.doQuery(ctx, http.MethodGet, query, nil, &list, "jobs", jobID, "work-items"); err != nil {
		return nil, err
	}
	return &list, nil
}

// JobLinks lists one job's result links.
func (c *Client) JobLinks(ctx context.Context, jobID string, limit, offset int) (*api.LinkList, error) {
	query := url.Values{}
	setPageParams(query, limit, offset)

	var list api.LinkList
	if err := c.doQuery(ctx, http.MethodGet, query, nil, &list, "jobs", jobID, "links"); err != nil {
		return nil, err
	}
	return &list, nil
}

// PauseJob pauses a running job.
func (c *Client) PauseJob(ctx context.Context, jobID string) (*api.Job, error) {
	return c.control(ctx, jobID, "pause")
}

// ResumeJob resumes a paused job.
func (c *Client) ResumeJob(ctx context.Context, jobID string) (*api.Job, error) {
	return c.control(ctx, jobID, "resume")
}

// CancelJob cancels a job and its outstanding work.
func (c *Client) CancelJob(ctx context.Context, jobID string) (*api.Job, error) {
	return c.control(ctx, jobID, "cancel")
}

// SkipPreviewJob moves a previewing job straight to running.
func (c *Client) SkipPreviewJob(ctx context.Context, jobID string) (*api.Job, error) {
	return c.control(ctx, jobID, "skip-preview")
}

func (c *Client) control(ctx context.Context, jobID, action string) (*api.Job, error) {
	var job api.Job
	if err := c.do(ctx, http.MethodPost, nil, nil, &job, "jobs", jobID, action); err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimWork claims the next ready item for a service. Returns (nil, nil)
// when no work is available.
func (c *Client) ClaimWork(ctx context.Context, serviceID string) (*api.ClaimedWork, error) {
	query := url.Values{}
	query.Set("serviceID", serviceID)

	var work api.ClaimedWork
	err := c.doQuery(ctx, http.MethodGet, query, nil, &work, "work")
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &work, nil
}

// ReportWork delivers a completion callback for a claimed item.
func (c *Client) ReportWork(ctx context.Context, itemID int64, report api.WorkReport) error {
	return c.do(ctx, http.MethodPut, nil, report, nil, "work", strconv.FormatInt(itemID, 10))
}

// WorkCount returns the ready backlog depth for a service.
func (c *Client) WorkCount(ctx context.Context, serviceID string) (int, error) {
	query := url.Values{}
	query.Set("serviceID", serviceID)

	var count api.CountResponse
	if err := c.doQuery(ctx, http.MethodGet, query, nil, &count, "work", "count"); err != nil {
		return 0, err
	}
	return count.Count, nil
}

// Health probes the daemon. A degraded daemon still answers, with the
// store state reflected in the payload.
func (c *Client) Health(ctx context.Context) (*api.Health, error) {
	var health api.Health
	err := c.do(ctx, http.MethodGet, nil, nil, &health, "healthz")
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
		return &api.Health{Status: "degraded", Database: "unreachable"}, nil
	}
	if err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *Client) do(ctx context.Context, method string, query url.Values, body, out any, pathSegments ...string) error {
	return c.doQuery(ctx, method, query, body, out, pathSegments...)
}

func (c *Client) doQuery(ctx context.Context, method string, query url.Values, body, out any, pathSegments ...string) error {
	endpoint := c.baseURL.JoinPath(pathSegments...)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.Header.Set(userHeader, c.username)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, endpoint.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil {
		var payload api.ErrorResponse
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		}
	}
	return apiErr
}

func setTimeParam(query url.Values, key string, value *time.Time) {
	if value == nil {
		return
	}
	query.Set(key, value.UTC().Format(time.RFC3339))
}

func setPageParams(query url.Values, limit, offset int) {
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
}
