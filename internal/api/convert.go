package api

import (
	"encoding/json"
	"strings"

	"strata/internal/jobs"
	"strata/internal/operation"
	"strata/internal/workflow"
)

// FromJob converts a job record to its API representation.
func FromJob(job *jobs.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		JobID:            job.RequestID,
		Username:         job.Username,
		Status:           string(job.Status),
		Message:          job.Message,
		Progress:         job.Progress,
		Request:          job.Request,
		Labels:           job.Labels,
		NumInputGranules: job.NumInputGranules,
		IgnoreErrors:     job.IgnoreErrors,
		DestinationURL:   job.DestinationURL,
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromJobs converts a slice of job records into API DTOs.
func FromJobs(list []*jobs.Job) []Job {
	if len(list) == 0 {
		return nil
	}
	out := make([]Job, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	return out
}

// FromWorkItem converts a work item record to its API representation.
func FromWorkItem(item *jobs.WorkItem) WorkItem {
	if item == nil {
		return WorkItem{}
	}
	dto := WorkItem{
		ID:         item.ID,
		StepIndex:  item.StepIndex,
		ServiceID:  item.ServiceID,
		Status:     string(item.Status),
		Results:    item.Results,
		Message:    item.Message,
		RetryCount: item.RetryCount,
	}
	if item.ClaimedAt != nil && !item.ClaimedAt.IsZero() {
		dto.ClaimedAt = item.ClaimedAt.UTC().Format(dateTimeFormat)
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromWorkItems converts a slice of work item records into API DTOs.
func FromWorkItems(items []*jobs.WorkItem) []WorkItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]WorkItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromWorkItem(item))
	}
	return out
}

// FromLink converts a link record to its API representation.
func FromLink(link *jobs.Link) Link {
	if link == nil {
		return Link{}
	}
	return Link{
		Href:          link.Href,
		Rel:           link.Rel,
		Type:          link.Type,
		Title:         link.Title,
		BBox:          link.BBox,
		TemporalStart: link.TemporalStart,
		TemporalEnd:   link.TemporalEnd,
	}
}

// FromLinks converts a slice of link records into API DTOs.
func FromLinks(links []*jobs.Link) []Link {
	if len(links) == 0 {
		return nil
	}
	out := make([]Link, 0, len(links))
	for _, link := range links {
		out = append(out, FromLink(link))
	}
	return out
}

// FromWork converts a claimed work assignment into its API representation.
func FromWork(work *workflow.Work) ClaimedWork {
	if work == nil || work.Item == nil {
		return ClaimedWork{}
	}
	return ClaimedWork{
		ItemID:     work.Item.ID,
		JobID:      work.RequestID,
		StepIndex:  work.Item.StepIndex,
		ServiceID:  work.Item.ServiceID,
		RetryCount: work.Item.RetryCount,
		Operation:  json.RawMessage(work.Operation),
	}
}

// ToEngine converts the wire request into the engine's create request. The
// username is taken from the authenticated request, never from the body.
func (r CreateJobRequest) ToEngine(username string) (workflow.CreateRequest, error) {
	req := workflow.CreateRequest{
		Username: username,
		Request:  r.Request,
		Source: workflow.Source{
			Collection:    r.Source.Collection,
			Variables:     r.Source.Variables,
			Granules:      r.Source.Granules,
			BBox:          r.Source.BBox,
			TemporalStart: r.Source.TemporalStart,
			TemporalEnd:   r.Source.TemporalEnd,
		},
		Labels:           r.Labels,
		DestinationURL:   r.DestinationURL,
		Synchronous:      r.Synchronous,
		SkipPreview:      r.SkipPreview,
		PreviewThreshold: r.PreviewThreshold,
		IgnoreErrors:     r.IgnoreErrors,
	}
	for i, stage := range r.Stages {
		converted := workflow.Stage{ServiceID: stage.ServiceID, Aggregated: stage.Aggregated}
		if len(stage.Operation) > 0 {
			doc, err := operation.Parse(string(stage.Operation))
			if err != nil {
				return workflow.CreateRequest{}, jobs.NewValidationError("stage %d operation is not a valid document: %v", i, err)
			}
			converted.Operation = doc
		}
		req.Stages = append(req.Stages, converted)
	}
	return req, nil
}

// ToEngine converts a wire report into the engine's completion callback.
func (r WorkReport) ToEngine(itemID int64) workflow.Report {
	return workflow.Report{
		ItemID:     itemID,
		Status:     jobs.WorkItemStatus(strings.ToLower(strings.TrimSpace(r.Status))),
		Results:    r.Results,
		Message:    r.Message,
		NextCursor: r.NextCursor,
		TotalCount: r.TotalCount,
	}
}
