package workflow

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"strata/internal/config"
	"strata/internal/jobs"
	"strata/internal/logging"
)

// loadOwnedJob loads a job for a user. Foreign jobs read as not found so
// request identifiers leak nothing about other users' work.
func loadOwnedJob(ctx context.Context, tx *jobs.Tx, cfg *config.Config, requestID, username string, forUpdate bool) (*jobs.Job, error) {
	job, err := tx.JobByRequestID(ctx, requestID, forUpdate)
	if err != nil {
		return nil, err
	}
	if job.Username != username && !cfg.IsAdmin(username) {
		return nil, jobs.ErrNotFound
	}
	return job, nil
}

func validateControlArgs(requestID, username string) error {
	if _, err := uuid.Parse(requestID); err != nil {
		return jobs.NewValidationError("Invalid format for Job ID '%s'. Job ID must be a UUID.", requestID)
	}
	if strings.TrimSpace(username) == "" {
		return jobs.NewValidationError("username is required")
	}
	return nil
}

// transitionJob applies a guarded status change to a job the user controls.
func (e *Engine) transitionJob(ctx context.Context, requestID, username, action string, apply func(tx *jobs.Tx, job *jobs.Job) error) (*jobs.Job, error) {
	if err := validateControlArgs(requestID, username); err != nil {
		return nil, err
	}
	var job *jobs.Job
	err := e.store.WithTx(ctx, func(tx *jobs.Tx) error {
		loaded, err := loadOwnedJob(ctx, tx, e.cfg, requestID, username, true)
		if err != nil {
			return err
		}
		if err := apply(tx, loaded); err != nil {
			return err
		}
		if err := tx.UpdateJob(ctx, loaded); err != nil {
			return err
		}
		job = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("job state changed",
		logging.String(logging.FieldJobID, requestID),
		logging.String(logging.FieldUsername, username),
		logging.String("action", action),
		logging.String("status", string(job.Status)))
	return job, nil
}

// PauseJob stops work dispatch for a running job. Items already claimed
// finish normally; nothing new is handed out until resume.
func (e *Engine) PauseJob(ctx context.Context, requestID, username string) (*jobs.Job, error) {
	return e.transitionJob(ctx, requestID, username, "pause", func(tx *jobs.Tx, job *jobs.Job) error {
		if err := job.Pause(); err != nil {
			return err
		}
		job.Message = "Job is paused. Resume the job to continue processing."
		return nil
	})
}

// ResumeJob returns a paused job to running and reopens work dispatch.
func (e *Engine) ResumeJob(ctx context.Context, requestID, username string) (*jobs.Job, error) {
	job, err := e.transitionJob(ctx, requestID, username, "resume", func(tx *jobs.Tx, job *jobs.Job) error {
		if err := job.Resume(); err != nil {
			return err
		}
		job.Message = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.announceReadyWork(ctx, job)
	return job, nil
}

// SkipPreviewJob moves a job that has not started full processing straight
// to running, bypassing the preview pause.
func (e *Engine) SkipPreviewJob(ctx context.Context, requestID, username string) (*jobs.Job, error) {
	job, err := e.transitionJob(ctx, requestID, username, "skip-preview", func(tx *jobs.Tx, job *jobs.Job) error {
		if err := job.SkipPreview(); err != nil {
			return err
		}
		job.Message = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.announceReadyWork(ctx, job)
	return job, nil
}

// CancelJob finishes a job early. Pending and in-flight items are canceled;
// completion reports arriving afterwards are acknowledged and dropped.
func (e *Engine) CancelJob(ctx context.Context, requestID, username string) (*jobs.Job, error) {
	job, err := e.transitionJob(ctx, requestID, username, "cancel", func(tx *jobs.Tx, job *jobs.Job) error {
		if err := job.Cancel(); err != nil {
			return err
		}
		job.Message = "Canceled by user."
		_, err := tx.CancelActiveItems(ctx, job.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.notifyTerminate(ctx, job.RequestID)
	return job, nil
}

// announceReadyWork nudges the executor for every service that has claimable
// items after a resume or skipped preview.
func (e *Engine) announceReadyWork(ctx context.Context, job *jobs.Job) {
	var ready map[string]int
	err := e.store.WithTx(ctx, func(tx *jobs.Tx) error {
		items, _, err := tx.ListWorkItems(ctx, job.ID, jobs.WorkItemFilter{Statuses: []jobs.WorkItemStatus{jobs.WorkReady}}, jobs.Page{Limit: 1000})
		if err != nil {
			return err
		}
		ready = make(map[string]int, 4)
		for _, item := range items {
			ready[item.ServiceID]++
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("failed to enumerate ready work after state change",
			logging.String(logging.FieldJobID, job.RequestID),
			logging.Error(err))
		return
	}
	for serviceID, count := range ready {
		e.notifyReady(ctx, job.RequestID, serviceID, count)
	}
}
