package operation_test

import (
	"strings"
	"testing"

	"strata/internal/operation"
)

func template(t *testing.T) string {
	t.Helper()

	doc := operation.New("svc/reproject:1")
	doc.Sources = []operation.Source{{
		Collection: "C1234-PROV",
		Variables:  []string{"red_var"},
	}}
	doc.Format = &operation.Format{MIME: "image/tiff", CRS: "EPSG:4326"}
	encoded, err := doc.Encode()
	if err != nil {
		t.Fatalf("Encode template: %v", err)
	}
	return encoded
}

func TestMaterializeSingleInput(t *testing.T) {
	raw, err := operation.Materialize(template(t), operation.Inputs{
		RequestID:     "req-1",
		User:          "rdoe",
		InputLocation: "s3://spool/job1/granule_001.nc",
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	doc, err := operation.Parse(raw)
	if err != nil {
		t.Fatalf("Parse materialized: %v", err)
	}
	if doc.RequestID != "req-1" || doc.User != "rdoe" {
		t.Fatalf("expected request fields merged, got %#v", doc)
	}
	if len(doc.Sources) != 1 || len(doc.Sources[0].Granules) != 1 {
		t.Fatalf("expected one source with one granule, got %#v", doc.Sources)
	}
	granule := doc.Sources[0].Granules[0]
	if granule.URL != "s3://spool/job1/granule_001.nc" || granule.Name != "granule_001.nc" {
		t.Fatalf("unexpected granule: %#v", granule)
	}
	if doc.Sources[0].Collection != "C1234-PROV" {
		t.Fatalf("expected collection kept from template, got %q", doc.Sources[0].Collection)
	}
	if doc.IsAggregate {
		t.Fatal("single-input document must not be aggregate")
	}
}

func TestMaterializeAggregatedInputs(t *testing.T) {
	results := []string{"s3://out/a.tif", "s3://out/b.tif", "s3://out/c.tif"}
	raw, err := operation.Materialize(template(t), operation.Inputs{Aggregated: results})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	doc, err := operation.Parse(raw)
	if err != nil {
		t.Fatalf("Parse materialized: %v", err)
	}
	if !doc.IsAggregate {
		t.Fatal("expected aggregate document")
	}
	if len(doc.Sources) != 1 || len(doc.Sources[0].Granules) != len(results) {
		t.Fatalf("expected all results as granules, got %#v", doc.Sources)
	}
	for i, granule := range doc.Sources[0].Granules {
		if granule.URL != results[i] {
			t.Fatalf("granule %d: expected %s, got %s", i, results[i], granule.URL)
		}
	}
}

func TestMaterializeCarriesCursorAndDestination(t *testing.T) {
	raw, err := operation.Materialize(template(t), operation.Inputs{
		Cursor:         "page-token-2",
		DestinationURL: "s3://user-bucket/results/",
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	doc, err := operation.Parse(raw)
	if err != nil {
		t.Fatalf("Parse materialized: %v", err)
	}
	if doc.Cursor != "page-token-2" {
		t.Fatalf("expected cursor merged, got %q", doc.Cursor)
	}
	if doc.DestinationURL != "s3://user-bucket/results/" {
		t.Fatalf("expected destination merged, got %q", doc.DestinationURL)
	}
}

func TestMaterializeLeavesTemplateReusable(t *testing.T) {
	tmpl := template(t)
	if _, err := operation.Materialize(tmpl, operation.Inputs{InputLocation: "s3://spool/a.nc"}); err != nil {
		t.Fatalf("first Materialize: %v", err)
	}
	raw, err := operation.Materialize(tmpl, operation.Inputs{InputLocation: "s3://spool/b.nc"})
	if err != nil {
		t.Fatalf("second Materialize: %v", err)
	}
	if !strings.Contains(raw, "s3://spool/b.nc") || strings.Contains(raw, "s3://spool/a.nc") {
		t.Fatalf("expected only second input in document, got %s", raw)
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	if _, err := operation.Parse(""); err == nil {
		t.Fatal("expected error for empty document")
	}
	if _, err := operation.Parse("{not json"); err == nil {
		t.Fatal("expected error for malformed document")
	}
}

func TestValidateRequiresVersionAndService(t *testing.T) {
	doc := &operation.Document{}
	if err := doc.Validate(); err == nil {
		t.Fatal("expected error for missing version")
	}
	doc.Version = operation.SchemaVersion
	if err := doc.Validate(); err == nil {
		t.Fatal("expected error for missing serviceID")
	}
	doc.ServiceID = "svc/reproject:1"
	if err := doc.Validate(); err != nil {
		t.Fatalf("expected valid document, got %v", err)
	}
	doc.Subset = &operation.Subset{BBox: []float64{1, 2, 3}}
	if err := doc.Validate(); err == nil {
		t.Fatal("expected error for 3-value bbox")
	}
}
