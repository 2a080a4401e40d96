package jobs

import (
	"context"
	"fmt"
	"time"
)

// AddLinks stores result links for a job. A link whose href is already
// recorded for the job is skipped, so re-delivered results never duplicate.
func (t *Tx) AddLinks(ctx context.Context, jobID int64, links []*Link) error {
	query := `INSERT INTO job_links (job_id, href, rel, type, title, bbox, temporal_start, temporal_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id, href) DO NOTHING`
	for _, link := range links {
		if link.Href == "" {
			return NewValidationError("Job link record is invalid: href is required")
		}
		bbox, err := encodeBBox(link.BBox)
		if err != nil {
			return fmt.Errorf("encode link bbox: %w", err)
		}
		rel := link.Rel
		if rel == "" {
			rel = "data"
		}
		now := time.Now().UTC()
		if _, err := t.tx.ExecContext(ctx, t.rebind(query),
			jobID, link.Href, rel, link.Type, link.Title, bbox,
			nullableTime(link.TemporalStart), nullableTime(link.TemporalEnd),
			formatTime(now)); err != nil {
			return fmt.Errorf("insert link for job %d: %w", jobID, err)
		}
	}
	return nil
}

// LinksForJob returns one page of a job's result links in insertion order,
// plus the total link count.
func (t *Tx) LinksForJob(ctx context.Context, jobID int64, page Page) ([]*Link, int, error) {
	if page.Limit <= 0 {
		return nil, 0, NewValidationError("Link listing is invalid: limit must be positive, got %d", page.Limit)
	}
	var total int
	countQuery := "SELECT COUNT(*) FROM job_links WHERE job_id = ?"
	if err := t.tx.GetContext(ctx, &total, t.rebind(countQuery), jobID); err != nil {
		return nil, 0, fmt.Errorf("count links for job %d: %w", jobID, err)
	}

	query := "SELECT " + linkColumns + " FROM job_links WHERE job_id = ? ORDER BY id LIMIT ? OFFSET ?"
	var rows []linkRow
	if err := t.tx.SelectContext(ctx, &rows, t.rebind(query), jobID, page.Limit, page.Offset); err != nil {
		return nil, 0, fmt.Errorf("list links for job %d: %w", jobID, err)
	}
	links := make([]*Link, 0, len(rows))
	for _, row := range rows {
		link, err := row.toLink()
		if err != nil {
			return nil, 0, err
		}
		links = append(links, link)
	}
	return links, total, nil
}
