package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"strata/internal/jobs"
	"strata/internal/logging"
)

// failureWithoutMessage stands in when a worker reports failure but no cause.
const failureWithoutMessage = "Service request failed with an unknown error"

// previewPausedMessage explains why a previewing job stopped.
const previewPausedMessage = "Job is paused for review of its preview results. Resume the job or skip preview to continue processing."

// Report is a worker's completion callback for one claimed item.
type Report struct {
	ItemID  int64
	Status  jobs.WorkItemStatus
	Results []string
	Message string
	// NextCursor continues catalog paging: a non-empty value on a stage-0
	// item appends the next page item.
	NextCursor string
	// TotalCount is the catalog's latest estimate of matching granules.
	TotalCount int
}

// reportOutcome accumulates signals to deliver after the transaction
// commits. A retried transaction rebuilds it from scratch.
type reportOutcome struct {
	requestID string
	jobStatus jobs.JobStatus
	ready     map[string]int
	terminate bool
}

func (o *reportOutcome) addReady(serviceID string, count int) {
	if count <= 0 {
		return
	}
	if o.ready == nil {
		o.ready = make(map[string]int)
	}
	o.ready[serviceID] += count
}

// ReportWorkItem folds a worker's completion report into job state: it
// finalizes or requeues the item, fans results out to the next stage,
// extends catalog paging, closes completed stages, and recomputes the job's
// status and progress. Reports for items that are no longer running and for
// jobs already finished are acknowledged without effect.
func (e *Engine) ReportWorkItem(ctx context.Context, report Report) error {
	if report.Status != jobs.WorkSuccessful && report.Status != jobs.WorkFailed {
		return jobs.NewValidationError("work item reports must be successful or failed, got %q", report.Status)
	}

	var outcome reportOutcome
	err := e.store.WithTx(ctx, func(tx *jobs.Tx) error {
		outcome = reportOutcome{}
		return e.applyReport(ctx, tx, report, &outcome)
	})
	if err != nil {
		return err
	}

	for serviceID, count := range outcome.ready {
		e.notifyReady(ctx, outcome.requestID, serviceID, count)
	}
	if outcome.terminate {
		e.notifyTerminate(ctx, outcome.requestID)
	}
	if outcome.jobStatus.IsTerminal() {
		e.logger.Info("job finished",
			logging.String(logging.FieldJobID, outcome.requestID),
			logging.String("status", string(outcome.jobStatus)))
	}
	return nil
}

func (e *Engine) applyReport(ctx context.Context, tx *jobs.Tx, report Report, out *reportOutcome) error {
	item, err := tx.WorkItemByID(ctx, report.ItemID, false)
	if err != nil {
		return err
	}
	// Job row first; every mutation path locks in this order.
	job, err := tx.JobByID(ctx, item.JobID, true)
	if err != nil {
		return err
	}
	out.requestID = job.RequestID
	out.jobStatus = job.Status

	// Reports against finished jobs are acknowledged and dropped.
	if job.HasTerminalStatus() {
		return nil
	}
	// Re-read under the job lock; a concurrent cancel or reclaim may have
	// moved the item since the first read.
	if item, err = tx.WorkItemByID(ctx, item.ID, true); err != nil {
		return err
	}
	// Late and duplicate callbacks target items that already left running.
	if item.Status != jobs.WorkRunning {
		return nil
	}

	steps, err := tx.StepsForJob(ctx, job.ID)
	if err != nil {
		return err
	}

	if report.Status == jobs.WorkSuccessful {
		if err := e.applySuccess(ctx, tx, job, item, steps, report, out); err != nil {
			return err
		}
	} else {
		terminal, err := e.applyFailure(ctx, tx, item, report.Message, out)
		if err != nil {
			return err
		}
		if terminal {
			if !job.IgnoreErrors {
				return e.failJob(ctx, tx, job, item.Message, out)
			}
			// A permanently failed page ends catalog paging, so no later
			// report can close stage 0. Granule-list jobs closed it at
			// admission, making this a no-op for them.
			if item.StepIndex == 0 {
				if _, err := tx.MarkAllItemsCreated(ctx, job.ID, 0); err != nil {
					return err
				}
			}
		}
	}

	if err := e.advanceStages(ctx, tx, job, item.StepIndex, steps, out); err != nil {
		return err
	}
	return e.recomputeJob(ctx, tx, job, item, steps, out)
}

// applySuccess finalizes a successful item and performs the bookkeeping its
// results imply: catalog paging, stage-0 closure, fan-out, and result links.
func (e *Engine) applySuccess(ctx context.Context, tx *jobs.Tx, job *jobs.Job, item *jobs.WorkItem, steps []*jobs.WorkflowStep, report Report, out *reportOutcome) error {
	item.Status = jobs.WorkSuccessful
	item.Results = report.Results
	item.Message = ""
	if err := tx.UpdateWorkItem(ctx, item); err != nil {
		return err
	}

	if item.StepIndex == 0 {
		if report.NextCursor != "" {
			if err := e.appendCatalogPage(ctx, tx, job, item, report.NextCursor, out); err != nil {
				return err
			}
		} else {
			// The final page closes stage 0. Jobs seeded from explicit
			// granule lists had the flag set at admission.
			if _, err := tx.MarkAllItemsCreated(ctx, job.ID, 0); err != nil {
				return err
			}
		}
		if report.TotalCount > 0 {
			// The catalog's estimate supersedes the admission-time one for
			// every later per-granule stage. Counts only grow.
			for _, step := range steps[1:] {
				if step.Aggregated {
					continue
				}
				if err := tx.GrowWorkItemCount(ctx, job.ID, step.StepIndex, report.TotalCount); err != nil {
					return err
				}
			}
		}
	}

	next := stepAfter(steps, item.StepIndex)
	switch {
	case next == nil:
		// Final stage results are the job's deliverables.
		if len(report.Results) > 0 {
			links := make([]*jobs.Link, 0, len(report.Results))
			for _, href := range report.Results {
				links = append(links, &jobs.Link{Href: href, Rel: "data", Title: path.Base(href)})
			}
			if err := tx.AddLinks(ctx, job.ID, links); err != nil {
				return err
			}
		}
	case !next.Aggregated && len(report.Results) > 0:
		children := make([]*jobs.WorkItem, 0, len(report.Results))
		for _, result := range report.Results {
			children = append(children, &jobs.WorkItem{
				JobID:         job.ID,
				StepIndex:     next.StepIndex,
				ServiceID:     next.ServiceID,
				Status:        jobs.WorkReady,
				InputLocation: result,
			})
		}
		if err := tx.InsertWorkItems(ctx, children); err != nil {
			return err
		}
		out.addReady(next.ServiceID, len(children))
		tally, err := tx.StepItemTally(ctx, job.ID, next.StepIndex)
		if err != nil {
			return err
		}
		if err := tx.GrowWorkItemCount(ctx, job.ID, next.StepIndex, tally.Total()); err != nil {
			return err
		}
	}
	return nil
}

// appendCatalogPage queues the follow-up page item for a continued catalog
// listing. Pages chain serially, so at most one successor exists at a time.
func (e *Engine) appendCatalogPage(ctx context.Context, tx *jobs.Tx, job *jobs.Job, item *jobs.WorkItem, cursor string, out *reportOutcome) error {
	next := &jobs.WorkItem{
		JobID:         job.ID,
		StepIndex:     item.StepIndex,
		ServiceID:     item.ServiceID,
		Status:        jobs.WorkReady,
		Cursor:        cursor,
		InputLocation: item.InputLocation,
	}
	if err := tx.InsertWorkItems(ctx, []*jobs.WorkItem{next}); err != nil {
		return err
	}
	out.addReady(item.ServiceID, 1)
	tally, err := tx.StepItemTally(ctx, job.ID, item.StepIndex)
	if err != nil {
		return err
	}
	return tx.GrowWorkItemCount(ctx, job.ID, item.StepIndex, tally.Total())
}

// applyFailure requeues a failed item while retry budget remains, otherwise
// finalizes it. Reports whether the failure is permanent.
func (e *Engine) applyFailure(ctx context.Context, tx *jobs.Tx, item *jobs.WorkItem, message string, out *reportOutcome) (bool, error) {
	if message == "" {
		message = failureWithoutMessage
	}
	limit := e.retryLimit()
	if item.RetryCount < limit {
		item.RetryCount++
		item.Status = jobs.WorkReady
		item.ClaimedAt = nil
		item.Message = fmt.Sprintf("work item failed and will retry (%d of %d): %s", item.RetryCount, limit, message)
		if err := tx.UpdateWorkItem(ctx, item); err != nil {
			return false, err
		}
		out.addReady(item.ServiceID, 1)
		return false, nil
	}
	item.Status = jobs.WorkFailed
	item.Message = message
	if err := tx.UpdateWorkItem(ctx, item); err != nil {
		return false, err
	}
	return true, nil
}

// failJob fails the whole job after a permanent item failure when the job
// does not tolerate errors. The worker's message lands on the job verbatim.
func (e *Engine) failJob(ctx context.Context, tx *jobs.Tx, job *jobs.Job, message string, out *reportOutcome) error {
	job.Status = jobs.JobFailed
	job.Message = message
	if _, err := tx.CancelActiveItems(ctx, job.ID); err != nil {
		return err
	}
	if err := tx.UpdateJob(ctx, job); err != nil {
		return err
	}
	out.jobStatus = job.Status
	out.terminate = true
	return nil
}

// advanceStages closes completed stages starting at the reported one. When
// stage k completes, stage k+1's item set is frozen in the same transaction;
// winning that conditional flip is what makes fan-in creation exactly-once.
// The loop cascades because freezing an empty stage completes it too.
func (e *Engine) advanceStages(ctx context.Context, tx *jobs.Tx, job *jobs.Job, fromStep int, steps []*jobs.WorkflowStep, out *reportOutcome) error {
	for k := fromStep; ; k++ {
		step, err := tx.StepByIndex(ctx, job.ID, k, false)
		if err != nil {
			return err
		}
		tally, err := tx.StepItemTally(ctx, job.ID, k)
		if err != nil {
			return err
		}
		if !step.AllItemsCreated || tally.Pending() > 0 {
			return nil
		}
		next := stepAfter(steps, k)
		if next == nil {
			return nil
		}
		flipped, err := tx.MarkAllItemsCreated(ctx, job.ID, next.StepIndex)
		if err != nil {
			return err
		}
		if flipped && next.Aggregated {
			if err := e.createAggregateItem(ctx, tx, job, next, k, out); err != nil {
				return err
			}
		}
	}
}

// createAggregateItem stages the combined prior-stage results and queues the
// single item that consumes them. Stages whose predecessors produced nothing
// get no item and complete empty.
func (e *Engine) createAggregateItem(ctx context.Context, tx *jobs.Tx, job *jobs.Job, step *jobs.WorkflowStep, priorStep int, out *reportOutcome) error {
	inputs, err := tx.SuccessfulResults(ctx, job.ID, priorStep)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return nil
	}
	payload, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("encode aggregated inputs: %w", err)
	}
	key := path.Join("jobs", job.RequestID, "steps", fmt.Sprintf("%d", step.StepIndex), "inputs.json")
	location, err := e.payloads.Write(ctx, key, payload)
	if err != nil {
		return fmt.Errorf("stage aggregated inputs: %w", err)
	}
	item := &jobs.WorkItem{
		JobID:         job.ID,
		StepIndex:     step.StepIndex,
		ServiceID:     step.ServiceID,
		Status:        jobs.WorkReady,
		InputLocation: location,
	}
	if err := tx.InsertWorkItems(ctx, []*jobs.WorkItem{item}); err != nil {
		return err
	}
	out.addReady(step.ServiceID, 1)
	return nil
}

// recomputeJob refreshes progress and derives the job's next status from
// the stage tallies.
func (e *Engine) recomputeJob(ctx context.Context, tx *jobs.Tx, job *jobs.Job, item *jobs.WorkItem, steps []*jobs.WorkflowStep, out *reportOutcome) error {
	var (
		sum          float64
		failedItems  int
		lastComplete bool
	)
	for i := range steps {
		step, err := tx.StepByIndex(ctx, job.ID, steps[i].StepIndex, false)
		if err != nil {
			return err
		}
		tally, err := tx.StepItemTally(ctx, job.ID, step.StepIndex)
		if err != nil {
			return err
		}
		failedItems += tally.Failed

		expected := step.WorkItemCount
		if tally.Total() > expected {
			expected = tally.Total()
		}
		var fraction float64
		switch {
		case expected > 0:
			fraction = float64(tally.Terminal()) / float64(expected)
		case step.AllItemsCreated:
			// A frozen stage with no items has nothing left to do.
			fraction = 1
		}
		if fraction > 1 {
			fraction = 1
		}
		sum += fraction

		if i == len(steps)-1 {
			lastComplete = step.AllItemsCreated && tally.Pending() == 0
		}
	}

	progress := 0.0
	if len(steps) > 0 {
		progress = sum / float64(len(steps)) * 100
	}

	switch {
	case lastComplete:
		// Nothing left to preview or dispatch; completion wins over the
		// preview pause.
		if failedItems > 0 {
			job.Status = jobs.JobCompleteWithErrors
			job.Message = "Job completed with errors. See the work item messages for details."
		} else {
			job.Status = jobs.JobSuccessful
			job.Message = "Job completed successfully."
		}
		progress = 100
	case job.Status == jobs.JobPreviewing && item.StepIndex == 0 && item.Status.IsTerminal():
		// The first previewed outcome parks the job for user review.
		job.Status = jobs.JobPaused
		job.Message = previewPausedMessage
	case failedItems > 0 && job.Status == jobs.JobRunning:
		job.Status = jobs.JobRunningWithErrors
	}

	// Progress only moves forward; late reports never walk it back.
	if progress < job.Progress {
		progress = job.Progress
	}
	if err := job.SetProgress(progress); err != nil {
		return err
	}
	if err := tx.UpdateJob(ctx, job); err != nil {
		return err
	}
	out.jobStatus = job.Status
	return nil
}

func stepAfter(steps []*jobs.WorkflowStep, index int) *jobs.WorkflowStep {
	for _, step := range steps {
		if step.StepIndex == index+1 {
			return step
		}
	}
	return nil
}
