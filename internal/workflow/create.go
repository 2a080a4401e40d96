package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"strata/internal/catalog"
	"strata/internal/jobs"
	"strata/internal/logging"
	"strata/internal/operation"
)

// Source describes where a job draws its input granules from. Exactly one
// of Collection or Granules must be set: a collection is resolved through
// the granule catalog page by page, while an explicit granule list is
// decomposed directly at admission.
type Source struct {
	Collection    string
	Variables     []string
	Granules      []string
	BBox          []float64
	TemporalStart *time.Time
	TemporalEnd   *time.Time
}

// Stage describes one workflow step of a new job. The optional Operation
// template carries service parameters; granules, cursor, and user identity
// are merged in per item at dispatch.
type Stage struct {
	ServiceID  string
	Operation  *operation.Document
	Aggregated bool
}

// CreateRequest carries everything needed to admit a new job.
type CreateRequest struct {
	Username         string
	Request          string
	Source           Source
	Stages           []Stage
	Labels           []string
	DestinationURL   string
	Synchronous      bool
	SkipPreview      bool
	PreviewThreshold int
	IgnoreErrors     *bool
}

// catalogQueryPayload is the staged input for catalog page items. The
// stage-0 worker reads it back and resolves one page per item.
type catalogQueryPayload struct {
	Collection    string     `json:"collection"`
	Variables     []string   `json:"variables,omitempty"`
	BBox          []float64  `json:"bbox,omitempty"`
	TemporalStart *time.Time `json:"temporalStart,omitempty"`
	TemporalEnd   *time.Time `json:"temporalEnd,omitempty"`
	PageSize      int        `json:"pageSize"`
}

// CreateJob validates and admits a new job: it sizes the input, decides the
// preview posture, persists the job with its workflow steps, and seeds the
// first stage's work items.
func (e *Engine) CreateJob(ctx context.Context, req CreateRequest) (*jobs.Job, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	direct := len(req.Source.Granules) > 0
	total := len(req.Source.Granules)
	if !direct {
		page, err := e.catalog.Resolve(ctx, catalogQueryFor(req.Source, e.catalogPageSize()), "")
		if err != nil {
			return nil, fmt.Errorf("workflow: resolve granules for collection %s: %w", req.Source.Collection, err)
		}
		total = page.TotalCount
	}
	if total == 0 {
		return nil, jobs.NewValidationError("no granules match the request")
	}

	requestID := uuid.NewString()
	ignoreErrors := true
	if req.IgnoreErrors != nil {
		ignoreErrors = *req.IgnoreErrors
	}
	job := &jobs.Job{
		RequestID:        requestID,
		Username:         strings.TrimSpace(req.Username),
		Status:           jobs.JobAccepted,
		Request:          requestDescription(req.Request),
		Labels:           normalizeLabels(req.Labels),
		SyncOnly:         req.Synchronous,
		IgnoreErrors:     ignoreErrors,
		DestinationURL:   req.DestinationURL,
		PreviewThreshold: req.PreviewThreshold,
		NumInputGranules: total,
	}

	// Preview holds large asynchronous jobs after their first results so the
	// user can inspect output before committing the full run.
	threshold := job.EffectivePreviewThreshold(e.previewThreshold())
	if !req.SkipPreview && !req.Synchronous && threshold > 0 && total > threshold {
		job.Status = jobs.JobPreviewing
	}

	steps, err := buildSteps(req, total, e.catalogPageSize(), direct)
	if err != nil {
		return nil, err
	}

	var inputLocation string
	if !direct {
		payload, err := json.Marshal(catalogQueryPayload{
			Collection:    req.Source.Collection,
			Variables:     req.Source.Variables,
			BBox:          req.Source.BBox,
			TemporalStart: req.Source.TemporalStart,
			TemporalEnd:   req.Source.TemporalEnd,
			PageSize:      e.catalogPageSize(),
		})
		if err != nil {
			return nil, fmt.Errorf("workflow: encode catalog query: %w", err)
		}
		inputLocation, err = e.payloads.Write(ctx, path.Join("jobs", requestID, "query.json"), payload)
		if err != nil {
			return nil, fmt.Errorf("workflow: stage catalog query: %w", err)
		}
	}

	var seeded int
	err = e.store.WithTx(ctx, func(tx *jobs.Tx) error {
		if err := tx.InsertJob(ctx, job); err != nil {
			return err
		}
		for _, step := range steps {
			step.JobID = job.ID
		}
		if err := tx.InsertWorkflowSteps(ctx, steps); err != nil {
			return err
		}
		seeds := seedItems(job.ID, steps[0], req.Source.Granules, inputLocation)
		seeded = len(seeds)
		return tx.InsertWorkItems(ctx, seeds)
	})
	if err != nil {
		return nil, err
	}

	e.notifyReady(ctx, requestID, steps[0].ServiceID, seeded)
	e.logger.Info("job accepted",
		logging.String(logging.FieldJobID, requestID),
		logging.String(logging.FieldUsername, job.Username),
		logging.String("status", string(job.Status)),
		logging.Int("granules", total),
		logging.Int("stages", len(steps)))
	return job, nil
}

func validateCreateRequest(req CreateRequest) error {
	if strings.TrimSpace(req.Username) == "" {
		return jobs.NewValidationError("username is required")
	}
	if len(req.Stages) == 0 {
		return jobs.NewValidationError("at least one workflow stage is required")
	}
	for i, stage := range req.Stages {
		if strings.TrimSpace(stage.ServiceID) == "" {
			return jobs.NewValidationError("stage %d is missing a service id", i)
		}
	}
	if req.Stages[0].Aggregated {
		return jobs.NewValidationError("the first stage has no prior stage to aggregate")
	}
	hasCollection := strings.TrimSpace(req.Source.Collection) != ""
	hasGranules := len(req.Source.Granules) > 0
	if hasCollection == hasGranules {
		return jobs.NewValidationError("exactly one of collection or granules must be provided")
	}
	for _, granule := range req.Source.Granules {
		if strings.TrimSpace(granule) == "" {
			return jobs.NewValidationError("granule urls must not be empty")
		}
	}
	if n := len(req.Source.BBox); n != 0 && n != 4 {
		return jobs.NewValidationError("bounding box must have exactly four values, got %d", n)
	}
	if req.Source.TemporalStart != nil && req.Source.TemporalEnd != nil &&
		req.Source.TemporalStart.After(*req.Source.TemporalEnd) {
		return jobs.NewValidationError("temporal start must not be after temporal end")
	}
	if req.PreviewThreshold < 0 {
		return jobs.NewValidationError("preview threshold must not be negative")
	}
	if req.DestinationURL != "" {
		parsed, err := url.Parse(req.DestinationURL)
		if err != nil || parsed.Scheme == "" {
			return jobs.NewValidationError("destination url must be an absolute URL")
		}
	}
	return nil
}

func catalogQueryFor(source Source, pageSize int) catalog.Query {
	return catalog.Query{
		Collection:    source.Collection,
		BBox:          source.BBox,
		TemporalStart: source.TemporalStart,
		TemporalEnd:   source.TemporalEnd,
		PageSize:      pageSize,
	}
}

// buildSteps turns stage specs into workflow step records with operation
// templates and expected item counts. Counts are estimates that only ever
// grow as pages and fan-out reveal the true size.
func buildSteps(req CreateRequest, total, pageSize int, direct bool) ([]*jobs.WorkflowStep, error) {
	steps := make([]*jobs.WorkflowStep, 0, len(req.Stages))
	for i, stage := range req.Stages {
		doc := operation.New(stage.ServiceID)
		if stage.Operation != nil {
			clone := *stage.Operation
			doc = &clone
			if doc.Version == "" {
				doc.Version = operation.SchemaVersion
			}
			doc.ServiceID = strings.TrimSpace(stage.ServiceID)
		}
		if doc.Subset == nil && len(req.Source.BBox) == 4 {
			doc.Subset = &operation.Subset{BBox: req.Source.BBox}
		}
		if doc.Temporal == nil && (req.Source.TemporalStart != nil || req.Source.TemporalEnd != nil) {
			doc.Temporal = &operation.Temporal{Start: req.Source.TemporalStart, End: req.Source.TemporalEnd}
		}
		if len(doc.Sources) == 0 && req.Source.Collection != "" {
			doc.Sources = []operation.Source{{Collection: req.Source.Collection, Variables: req.Source.Variables}}
		}
		if err := doc.Validate(); err != nil {
			return nil, jobs.NewValidationError("stage %d operation is invalid: %v", i, err)
		}
		encoded, err := doc.Encode()
		if err != nil {
			return nil, fmt.Errorf("workflow: encode stage %d operation: %w", i, err)
		}

		count := total
		switch {
		case stage.Aggregated:
			count = 1
		case i == 0 && !direct:
			count = (total + pageSize - 1) / pageSize
		}
		steps = append(steps, &jobs.WorkflowStep{
			StepIndex:     i,
			ServiceID:     strings.TrimSpace(stage.ServiceID),
			Operation:     encoded,
			Aggregated:    stage.Aggregated,
			WorkItemCount: count,
			// Explicit granule lists are fully decomposed at admission;
			// catalog jobs close stage 0 when the final page reports in.
			AllItemsCreated: i == 0 && direct,
		})
	}
	return steps, nil
}

func seedItems(jobID int64, first *jobs.WorkflowStep, granules []string, queryLocation string) []*jobs.WorkItem {
	if len(granules) == 0 {
		return []*jobs.WorkItem{{
			JobID:         jobID,
			StepIndex:     first.StepIndex,
			ServiceID:     first.ServiceID,
			Status:        jobs.WorkReady,
			InputLocation: queryLocation,
		}}
	}
	items := make([]*jobs.WorkItem, 0, len(granules))
	for _, granule := range granules {
		items = append(items, &jobs.WorkItem{
			JobID:         jobID,
			StepIndex:     first.StepIndex,
			ServiceID:     first.ServiceID,
			Status:        jobs.WorkReady,
			InputLocation: strings.TrimSpace(granule),
		})
	}
	return items
}

func requestDescription(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "{}"
	}
	return raw
}

func normalizeLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(labels))
	normalized := make([]string, 0, len(labels))
	for _, label := range labels {
		trimmed := strings.ToLower(strings.TrimSpace(label))
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}
