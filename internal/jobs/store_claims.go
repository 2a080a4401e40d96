package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// claimAttempts bounds how many candidates a single claim scans when racing
// pollers grab rows out from under the conditional update.
const claimAttempts = 10

type claimCandidate struct {
	ItemID    int64  `db:"item_id"`
	JobStatus string `db:"job_status"`
}

// ClaimNextWorkItem hands the oldest ready item for a service to a worker.
// The candidate row is flipped ready -> running with a conditional update, so
// two pollers can never claim the same item. The first claim against an
// accepted job also moves that job to running. Returns (nil, nil) when no
// work is available.
func (t *Tx) ClaimNextWorkItem(ctx context.Context, serviceID string) (*WorkItem, error) {
	selectQuery := `SELECT w.id AS item_id, j.status AS job_status
		FROM work_items w
		JOIN jobs j ON j.id = w.job_id
		WHERE w.service_id = ? AND w.status = ? AND j.status IN (` + makePlaceholders(len(activeJobStatuses)) + `)
		ORDER BY w.id LIMIT 1` + t.skipLocked()
	selectArgs := []any{serviceID, string(WorkReady)}
	for _, status := range activeJobStatuses {
		selectArgs = append(selectArgs, string(status))
	}

	for attempt := 0; attempt < claimAttempts; attempt++ {
		var candidate claimCandidate
		err := t.tx.GetContext(ctx, &candidate, t.rebind(selectQuery), selectArgs...)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select ready work for %s: %w", serviceID, err)
		}

		now := time.Now().UTC()
		claimQuery := `UPDATE work_items SET status = ?, claimed_at = ?, updated_at = ? WHERE id = ? AND status = ?`
		result, err := t.tx.ExecContext(ctx, t.rebind(claimQuery),
			string(WorkRunning), formatTime(now), formatTime(now), candidate.ItemID, string(WorkReady))
		if err != nil {
			return nil, fmt.Errorf("claim work item %d: %w", candidate.ItemID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim work item %d: %w", candidate.ItemID, err)
		}
		if affected == 0 {
			// Lost the race for this row. Try the next candidate.
			continue
		}

		item, err := t.WorkItemByID(ctx, candidate.ItemID, false)
		if err != nil {
			return nil, err
		}
		if JobStatus(candidate.JobStatus) == JobAccepted {
			if err := t.startAcceptedJob(ctx, item.JobID); err != nil {
				return nil, err
			}
		}
		return item, nil
	}
	return nil, nil
}

// startAcceptedJob moves an accepted job to running. A no-op when another
// claim already did it.
func (t *Tx) startAcceptedJob(ctx context.Context, jobID int64) error {
	query := `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	if _, err := t.tx.ExecContext(ctx, t.rebind(query),
		string(JobRunning), formatTime(time.Now().UTC()), jobID, string(JobAccepted)); err != nil {
		return fmt.Errorf("start job %d: %w", jobID, err)
	}
	return nil
}
