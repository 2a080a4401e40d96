package catalog_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"strata/internal/catalog"
)

func TestHTTPClientResolveSendsQueryAndAuth(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]any{
			"granules": []map[string]string{
				{"id": "G1", "name": "g1.nc", "url": "s3://bucket/g1.nc"},
			},
			"total_count": 12,
			"next_cursor": "abc",
		})
	}))
	defer server.Close()

	client, err := catalog.NewHTTP(catalog.HTTPConfig{
		BaseURL:  server.URL,
		Token:    "secret",
		PageSize: 5,
	})
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}

	page, err := client.Resolve(context.Background(), catalog.Query{Collection: "C1234-PROV"}, "cur-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if gotPath != "/granules" {
		t.Fatalf("expected /granules path, got %s", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
	if got := gotQuery["collection"]; len(got) != 1 || got[0] != "C1234-PROV" {
		t.Fatalf("expected collection param, got %v", gotQuery)
	}
	if got := gotQuery["cursor"]; len(got) != 1 || got[0] != "cur-1" {
		t.Fatalf("expected cursor param, got %v", gotQuery)
	}
	if got := gotQuery["page_size"]; len(got) != 1 || got[0] != "5" {
		t.Fatalf("expected page_size param, got %v", gotQuery)
	}
	if page.TotalCount != 12 || page.NextCursor != "abc" || len(page.Granules) != 1 {
		t.Fatalf("unexpected page: %#v", page)
	}
	if page.Granules[0].URL != "s3://bucket/g1.nc" {
		t.Fatalf("unexpected granule: %#v", page.Granules[0])
	}
}

func TestHTTPClientResolveSurfacesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection unknown", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := catalog.NewHTTP(catalog.HTTPConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	if _, err := client.Resolve(context.Background(), catalog.Query{Collection: "C1"}, ""); err == nil {
		t.Fatal("expected error from 400 response")
	}
}

func TestNewHTTPRequiresBaseURL(t *testing.T) {
	if _, err := catalog.NewHTTP(catalog.HTTPConfig{}); err == nil {
		t.Fatal("expected error for missing base url")
	}
}

func TestMemoryPagesWithCursor(t *testing.T) {
	mem := catalog.NewMemory(2)
	for i := 0; i < 5; i++ {
		mem.Add("C1", catalog.Granule{ID: fmt.Sprintf("G%d", i), URL: fmt.Sprintf("s3://b/g%d.nc", i)})
	}

	ctx := context.Background()
	var seen []string
	cursor := ""
	pages := 0
	for {
		page, err := mem.Resolve(ctx, catalog.Query{Collection: "C1"}, cursor)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		pages++
		if page.TotalCount != 5 {
			t.Fatalf("expected total 5, got %d", page.TotalCount)
		}
		for _, g := range page.Granules {
			seen = append(seen, g.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if pages != 3 {
		t.Fatalf("expected 3 pages of size 2, got %d", pages)
	}
	if len(seen) != 5 || seen[0] != "G0" || seen[4] != "G4" {
		t.Fatalf("unexpected granule order: %v", seen)
	}
}

func TestMemoryTotalGrowsBetweenPages(t *testing.T) {
	mem := catalog.NewMemory(2)
	mem.Add("C1",
		catalog.Granule{ID: "G0", URL: "s3://b/g0.nc"},
		catalog.Granule{ID: "G1", URL: "s3://b/g1.nc"},
		catalog.Granule{ID: "G2", URL: "s3://b/g2.nc"},
	)

	ctx := context.Background()
	first, err := mem.Resolve(ctx, catalog.Query{Collection: "C1"}, "")
	if err != nil {
		t.Fatalf("Resolve first: %v", err)
	}
	if first.TotalCount != 3 || first.NextCursor == "" {
		t.Fatalf("unexpected first page: %#v", first)
	}

	mem.Add("C1", catalog.Granule{ID: "G3", URL: "s3://b/g3.nc"})

	second, err := mem.Resolve(ctx, catalog.Query{Collection: "C1"}, first.NextCursor)
	if err != nil {
		t.Fatalf("Resolve second: %v", err)
	}
	if second.TotalCount != 4 {
		t.Fatalf("expected grown total 4, got %d", second.TotalCount)
	}
	if second.NextCursor == "" {
		t.Fatal("expected another page after growth")
	}
}

func TestMemoryRejectsBadCursor(t *testing.T) {
	mem := catalog.NewMemory(2)
	if _, err := mem.Resolve(context.Background(), catalog.Query{Collection: "C1"}, "not-a-number"); err == nil {
		t.Fatal("expected error for malformed cursor")
	}
}
