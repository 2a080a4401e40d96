package catalog

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Memory is an in-memory Client for tests. Granules may be added between
// page fetches, so the reported total grows the way a live catalog's
// estimate does.
type Memory struct {
	mu       sync.Mutex
	pageSize int
	granules map[string][]Granule
}

// NewMemory creates an empty in-memory catalog with the given page size.
func NewMemory(pageSize int) *Memory {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Memory{
		pageSize: pageSize,
		granules: make(map[string][]Granule),
	}
}

// Add appends granules to a collection.
func (m *Memory) Add(collection string, granules ...Granule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.granules[collection] = append(m.granules[collection], granules...)
}

// Resolve pages through the collection's granules. The cursor is a plain
// offset token.
func (m *Memory) Resolve(ctx context.Context, query Query, cursor string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.granules[query.Collection]
	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("catalog: invalid cursor %q", cursor)
		}
		offset = parsed
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = m.pageSize
	}

	page := &Page{TotalCount: len(all)}
	if offset >= len(all) {
		return page, nil
	}
	end := offset + pageSize
	if end > len(all) {
		end = len(all)
	}
	page.Granules = append(page.Granules, all[offset:end]...)
	if end < len(all) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}
