package testsupport

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"strata/internal/config"
	"strata/internal/jobs"
	"strata/internal/operation"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedJob inserts a job with one workflow step per service. Each step
// expects granules work items. The first step is left without items so the
// caller controls what exists.
func SeedJob(t testing.TB, store *jobs.Store, username string, granules int, services ...string) *jobs.Job {
	t.Helper()

	job := &jobs.Job{
		RequestID:        uuid.NewString(),
		Username:         username,
		Status:           jobs.JobAccepted,
		Request:          `{"format":{"mime":"image/png"}}`,
		IgnoreErrors:     true,
		NumInputGranules: granules,
	}
	err := store.WithTx(context.Background(), func(tx *jobs.Tx) error {
		if err := tx.InsertJob(context.Background(), job); err != nil {
			return err
		}
		steps := make([]*jobs.WorkflowStep, 0, len(services))
		for i, service := range services {
			template, err := operation.New(service).Encode()
			if err != nil {
				return err
			}
			steps = append(steps, &jobs.WorkflowStep{
				JobID:         job.ID,
				StepIndex:     i,
				ServiceID:     service,
				Operation:     template,
				WorkItemCount: granules,
			})
		}
		return tx.InsertWorkflowSteps(context.Background(), steps)
	})
	if err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

// SeedReadyItems inserts count ready work items for one step of a job.
func SeedReadyItems(t testing.TB, store *jobs.Store, job *jobs.Job, stepIndex int, serviceID string, count int) []*jobs.WorkItem {
	t.Helper()

	items := make([]*jobs.WorkItem, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, &jobs.WorkItem{
			JobID:         job.ID,
			StepIndex:     stepIndex,
			ServiceID:     serviceID,
			Status:        jobs.WorkReady,
			InputLocation: fmt.Sprintf("s3://inputs/g%03d.nc", i),
		})
	}
	err := store.WithTx(context.Background(), func(tx *jobs.Tx) error {
		return tx.InsertWorkItems(context.Background(), items)
	})
	if err != nil {
		t.Fatalf("seed work items: %v", err)
	}
	return items
}
