package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPageSize    = 2000
	defaultHTTPTimeout = 60 * time.Second
)

// HTTPConfig describes the catalog endpoint.
type HTTPConfig struct {
	BaseURL    string
	Token      string
	PageSize   int
	HTTPClient *http.Client
}

// HTTPClient resolves granule queries against a remote catalog service.
type HTTPClient struct {
	baseURL  *url.URL
	token    string
	pageSize int
	http     *http.Client
}

// NewHTTP creates an HTTPClient from the supplied configuration.
func NewHTTP(cfg HTTPConfig) (*HTTPClient, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("catalog: base url is required")
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse base url: %w", err)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPClient{
		baseURL:  baseURL,
		token:    strings.TrimSpace(cfg.Token),
		pageSize: pageSize,
		http:     client,
	}, nil
}

type resolveResponse struct {
	Granules   []Granule `json:"granules"`
	TotalCount int       `json:"total_count"`
	NextCursor string    `json:"next_cursor"`
}

// Resolve fetches one page of granules for the query. Pass the previous
// page's NextCursor to continue; an empty cursor starts from the beginning.
func (c *HTTPClient) Resolve(ctx context.Context, query Query, cursor string) (*Page, error) {
	if c == nil {
		return nil, errors.New("catalog: client is nil")
	}
	if query.Collection == "" {
		return nil, errors.New("catalog: collection is required")
	}

	endpoint := c.baseURL.JoinPath("granules")
	params := url.Values{}
	params.Set("collection", query.Collection)
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = c.pageSize
	}
	params.Set("page_size", strconv.Itoa(pageSize))
	if len(query.BBox) == 4 {
		parts := make([]string, len(query.BBox))
		for i, v := range query.BBox {
			parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		params.Set("bbox", strings.Join(parts, ","))
	}
	if query.TemporalStart != nil {
		params.Set("temporal_start", query.TemporalStart.UTC().Format(time.RFC3339))
	}
	if query.TemporalEnd != nil {
		params.Set("temporal_end", query.TemporalEnd.UTC().Format(time.RFC3339))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build resolve request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: resolve request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("catalog: resolve failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var payload resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("catalog: decode resolve response: %w", err)
	}
	return &Page{
		Granules:   payload.Granules,
		TotalCount: payload.TotalCount,
		NextCursor: payload.NextCursor,
	}, nil
}
