package workflow_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"strata/internal/jobs"
	"strata/internal/testsupport"
	"strata/internal/workflow"
)

func backdateClaim(t *testing.T, fix *fixture, itemID int64, age time.Duration) {
	t.Helper()
	err := fix.store.WithTx(context.Background(), func(tx *jobs.Tx) error {
		item, err := tx.WorkItemByID(context.Background(), itemID, false)
		if err != nil {
			return err
		}
		past := time.Now().UTC().Add(-age)
		item.ClaimedAt = &past
		return tx.UpdateWorkItem(context.Background(), item)
	})
	if err != nil {
		t.Fatalf("backdate claim: %v", err)
	}
}

func TestReclaimExpiredRequeuesStaleClaims(t *testing.T) {
	fix := newFixture(t, testsupport.WithClaimTimeout(60), testsupport.WithRetryLimit(1))
	job := mustCreate(t, fix, directRequest("carol", granuleURLs(1), workflow.Stage{ServiceID: "svc/reproject:1"}))

	work := mustClaim(t, fix, "svc/reproject:1")

	// A fresh claim is left alone.
	if swept, err := fix.engine.ReclaimExpired(context.Background()); err != nil || swept != 0 {
		t.Fatalf("ReclaimExpired on fresh claim = (%d, %v), want no sweeps", swept, err)
	}

	backdateClaim(t, fix, work.Item.ID, 2*time.Hour)
	swept, err := fix.engine.ReclaimExpired(context.Background())
	if err != nil {
		t.Fatalf("ReclaimExpired: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept %d items, want 1", swept)
	}

	item := refreshItem(t, fix, work.Item.ID)
	if item.Status != jobs.WorkReady || item.RetryCount != 1 {
		t.Fatalf("reclaimed item = %s retry %d, want requeued once", item.Status, item.RetryCount)
	}
	if !strings.Contains(item.Message, "timed out") {
		t.Fatalf("reclaim message = %q, want a timeout explanation", item.Message)
	}

	// The requeued item exhausts its retry budget on the next stale claim.
	work = mustClaim(t, fix, "svc/reproject:1")
	backdateClaim(t, fix, work.Item.ID, 2*time.Hour)
	if swept, err = fix.engine.ReclaimExpired(context.Background()); err != nil || swept != 1 {
		t.Fatalf("second ReclaimExpired = (%d, %v), want one sweep", swept, err)
	}
	item = refreshItem(t, fix, work.Item.ID)
	if item.Status != jobs.WorkFailed {
		t.Fatalf("item after exhausting retries = %s, want %s", item.Status, jobs.WorkFailed)
	}
	assertStatus(t, fix, job.RequestID, jobs.JobCompleteWithErrors)
}
