package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"strata/internal/jobs"
	"strata/internal/logging"
	"strata/internal/operation"
)

// Work pairs a claimed item with the operation document the worker executes.
type Work struct {
	Item      *jobs.WorkItem
	RequestID string
	Operation string
}

// GetWork claims the oldest ready item for a service and materializes its
// operation document. Returns (nil, nil) when no work is available.
func (e *Engine) GetWork(ctx context.Context, serviceID string) (*Work, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return nil, jobs.NewValidationError("serviceID is required")
	}

	var (
		item *jobs.WorkItem
		job  *jobs.Job
		step *jobs.WorkflowStep
	)
	err := e.store.WithTx(ctx, func(tx *jobs.Tx) error {
		claimed, err := tx.ClaimNextWorkItem(ctx, serviceID)
		if err != nil || claimed == nil {
			item = nil
			return err
		}
		item = claimed
		if job, err = tx.JobByID(ctx, claimed.JobID, false); err != nil {
			return err
		}
		step, err = tx.StepByIndex(ctx, claimed.JobID, claimed.StepIndex, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	doc, err := e.materializeWork(ctx, job, step, item)
	if err != nil {
		// The claim stands; if the worker never receives a document the
		// reclaim sweep requeues the item after the claim timeout.
		e.logger.Warn("failed to materialize claimed work item",
			logging.String(logging.FieldJobID, job.RequestID),
			logging.Int64(logging.FieldWorkItemID, item.ID),
			logging.Error(err))
		return nil, fmt.Errorf("workflow: materialize operation for item %d: %w", item.ID, err)
	}

	e.logger.Debug("work item claimed",
		logging.String(logging.FieldJobID, job.RequestID),
		logging.Int64(logging.FieldWorkItemID, item.ID),
		logging.Int(logging.FieldStepIndex, item.StepIndex),
		logging.String(logging.FieldService, serviceID))
	return &Work{Item: item, RequestID: job.RequestID, Operation: doc}, nil
}

func (e *Engine) materializeWork(ctx context.Context, job *jobs.Job, step *jobs.WorkflowStep, item *jobs.WorkItem) (string, error) {
	in := operation.Inputs{
		RequestID:      job.RequestID,
		User:           job.Username,
		Cursor:         item.Cursor,
		DestinationURL: job.DestinationURL,
	}
	if step.Aggregated {
		payload, err := e.payloads.Read(ctx, item.InputLocation)
		if err != nil {
			return "", fmt.Errorf("read aggregated inputs: %w", err)
		}
		if err := json.Unmarshal(payload, &in.Aggregated); err != nil {
			return "", fmt.Errorf("decode aggregated inputs: %w", err)
		}
	} else {
		in.InputLocation = item.InputLocation
	}
	return operation.Materialize(step.Operation, in)
}

// WorkAvailable reports how many ready items a service could claim right now.
func (e *Engine) WorkAvailable(ctx context.Context, serviceID string) (int, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return 0, jobs.NewValidationError("serviceID is required")
	}
	var count int
	err := e.store.WithTx(ctx, func(tx *jobs.Tx) error {
		var err error
		count, err = tx.ReadyCount(ctx, serviceID)
		return err
	})
	return count, err
}
