package workflow

import (
	"context"
	"strings"

	"strata/internal/jobs"
)

// GetJob returns one job the user is allowed to see.
func (e *Engine) GetJob(ctx context.Context, requestID, username string) (*jobs.Job, error) {
	if err := validateControlArgs(requestID, username); err != nil {
		return nil, err
	}
	var job *jobs.Job
	err := e.store.WithTx(ctx, func(tx *jobs.Tx) error {
		loaded, err := loadOwnedJob(ctx, tx, e.cfg, requestID, username, false)
		if err != nil {
			return err
		}
		job = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns a filtered page of jobs. Non-administrators only ever see
// their own jobs regardless of the filter.
func (e *Engine) ListJobs(ctx context.Context, username string, filter jobs.JobFilter, page jobs.Page) ([]*jobs.Job, int, error) {
	if strings.TrimSpace(username) == "" {
		return nil, 0, jobs.NewValidationError("username is required")
	}
	if !e.cfg.IsAdmin(username) {
		filter.Username = username
	}
	page = e.ResolvePage(page)
	var (
		listed []*jobs.Job
		total  int
	)
	err := e.store.WithTx(ctx, func(tx *jobs.Tx) error {
		var err error
		listed, total, err = tx.ListJobs(ctx, filter, page)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return listed, total, nil
}

// ListJobWorkItems returns a filtered page of one job's work items.
func (e *Engine) ListJobWorkItems(ctx context.Context, requestID, username string, filter jobs.WorkItemFilter, page jobs.Page) ([]*jobs.WorkItem, int, error) {
	if err := validateControlArgs(requestID, username); err != nil {
		return nil, 0, err
	}
	page = e.ResolvePage(page)
	var (
		items []*jobs.WorkItem
		total int
	)
	err := e.store.WithTx(ctx, func(tx *jobs.Tx) error {
		job, err := loadOwnedJob(ctx, tx, e.cfg, requestID, username, false)
		if err != nil {
			return err
		}
		items, total, err = tx.ListWorkItems(ctx, job.ID, filter, page)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// JobLinks returns a page of a job's result links in insertion order.
func (e *Engine) JobLinks(ctx context.Context, requestID, username string, page jobs.Page) ([]*jobs.Link, int, error) {
	if err := validateControlArgs(requestID, username); err != nil {
		return nil, 0, err
	}
	page = e.ResolvePage(page)
	var (
		links []*jobs.Link
		total int
	)
	err := e.store.WithTx(ctx, func(tx *jobs.Tx) error {
		job, err := loadOwnedJob(ctx, tx, e.cfg, requestID, username, false)
		if err != nil {
			return err
		}
		links, total, err = tx.LinksForJob(ctx, job.ID, page)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return links, total, nil
}

// JobStatusCounts tallies all jobs by status for operational overviews.
func (e *Engine) JobStatusCounts(ctx context.Context) (map[jobs.JobStatus]int, error) {
	var counts map[jobs.JobStatus]int
	err := e.store.WithTx(ctx, func(tx *jobs.Tx) error {
		var err error
		counts, err = tx.CountJobsByStatus(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}
