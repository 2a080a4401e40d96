package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"strata/internal/jobs"
	"strata/internal/logging"
)

// reclaimBatchSize bounds one sweep; the next interval picks up the rest.
const reclaimBatchSize = 100

// ReclaimExpired sweeps running items whose workers went quiet past the
// claim timeout and routes each through the normal failure path, so stale
// claims retry like any other failure and exhaust into permanent ones.
// Returns the number of items swept.
func (e *Engine) ReclaimExpired(ctx context.Context) (int, error) {
	timeout := e.claimTimeout()
	cutoff := time.Now().UTC().Add(-timeout)

	var expired []*jobs.WorkItem
	err := e.store.WithTx(ctx, func(tx *jobs.Tx) error {
		var err error
		expired, err = tx.ExpiredRunningItems(ctx, cutoff, reclaimBatchSize)
		return err
	})
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, item := range expired {
		report := Report{
			ItemID:  item.ID,
			Status:  jobs.WorkFailed,
			Message: fmt.Sprintf("work item timed out after %s without a completion report", timeout),
		}
		if err := e.ReportWorkItem(ctx, report); err != nil {
			if errors.Is(err, jobs.ErrNotFound) {
				continue
			}
			return swept, err
		}
		swept++
	}
	if swept > 0 {
		e.logger.Info("reclaimed expired work items", logging.Int("count", swept))
	}
	return swept, nil
}
