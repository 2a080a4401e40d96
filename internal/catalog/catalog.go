// Package catalog resolves collection queries into pages of granule
// references. The orchestrator only needs resolution; the catalog service
// itself lives elsewhere.
package catalog

import (
	"context"
	"time"
)

// Granule is one input file the catalog knows about.
type Granule struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url"`
}

// Query selects granules from one collection.
type Query struct {
	Collection    string
	BBox          []float64
	TemporalStart *time.Time
	TemporalEnd   *time.Time
	PageSize      int
}

// Page is one slice of a query's matches. TotalCount is the catalog's
// current estimate and may change between pages; callers track the maximum.
// An empty NextCursor means the final page.
type Page struct {
	Granules   []Granule
	TotalCount int
	NextCursor string
}

// Client resolves queries against a granule catalog.
type Client interface {
	Resolve(ctx context.Context, query Query, cursor string) (*Page, error)
}
