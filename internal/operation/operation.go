package operation

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"
)

// SchemaVersion is stamped on every document this orchestrator produces.
// Workers reject versions they do not understand.
const SchemaVersion = "0.22.0"

// Document is the serialized work instruction for one worker invocation.
type Document struct {
	Version         string    `json:"version"`
	ServiceID       string    `json:"serviceID"`
	RequestID       string    `json:"requestID,omitempty"`
	User            string    `json:"user,omitempty"`
	Sources         []Source  `json:"sources,omitempty"`
	Format          *Format   `json:"format,omitempty"`
	Subset          *Subset   `json:"subset,omitempty"`
	Temporal        *Temporal `json:"temporal,omitempty"`
	StagingLocation string    `json:"stagingLocation,omitempty"`
	DestinationURL  string    `json:"destinationUrl,omitempty"`
	Cursor          string    `json:"cursor,omitempty"`
	IsAggregate     bool      `json:"isAggregate,omitempty"`
}

// Source names one input collection and the granules drawn from it.
type Source struct {
	Collection string    `json:"collection,omitempty"`
	Variables  []string  `json:"variables,omitempty"`
	Granules   []Granule `json:"granules,omitempty"`
}

// Granule is a single input file reference.
type Granule struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url"`
}

// Format describes the requested output format.
type Format struct {
	MIME   string `json:"mime,omitempty"`
	CRS    string `json:"crs,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	DPI    int    `json:"dpi,omitempty"`
}

// Subset describes a spatial subset request.
type Subset struct {
	BBox []float64 `json:"bbox,omitempty"`
}

// Temporal describes a temporal subset request.
type Temporal struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// New returns a document template for one service.
func New(serviceID string) *Document {
	return &Document{Version: SchemaVersion, ServiceID: serviceID}
}

// Parse decodes a serialized document.
func Parse(raw string) (*Document, error) {
	if raw == "" {
		return nil, errors.New("operation document is empty")
	}
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode operation document: %w", err)
	}
	return &doc, nil
}

// Encode serializes the document for storage or dispatch.
func (d *Document) Encode() (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode operation document: %w", err)
	}
	return string(raw), nil
}

// Validate checks the fields every worker requires.
func (d *Document) Validate() error {
	if d.Version == "" {
		return errors.New("operation document missing version")
	}
	if d.ServiceID == "" {
		return errors.New("operation document missing serviceID")
	}
	if d.Subset != nil && len(d.Subset.BBox) != 0 && len(d.Subset.BBox) != 4 {
		return fmt.Errorf("operation bbox must have 4 values, got %d", len(d.Subset.BBox))
	}
	return nil
}

// Inputs carries the per-item values merged into a step template at dispatch.
type Inputs struct {
	RequestID      string
	User           string
	InputLocation  string
	Cursor         string
	DestinationURL string
	// Aggregated holds all prior-stage result locations when the step
	// consumes its whole predecessor stage as one input.
	Aggregated []string
}

// Materialize merges a stored step template with one item's inputs and
// returns the document to hand the worker. The template itself is never
// modified, so repeated claims of retried items behave identically.
func Materialize(template string, in Inputs) (string, error) {
	doc, err := Parse(template)
	if err != nil {
		return "", err
	}
	if in.RequestID != "" {
		doc.RequestID = in.RequestID
	}
	if in.User != "" {
		doc.User = in.User
	}
	if in.DestinationURL != "" {
		doc.DestinationURL = in.DestinationURL
	}
	doc.Cursor = in.Cursor

	switch {
	case len(in.Aggregated) > 0:
		doc.IsAggregate = true
		doc.Sources = []Source{mergedSource(doc.Sources, in.Aggregated)}
	case in.InputLocation != "":
		doc.Sources = []Source{mergedSource(doc.Sources, []string{in.InputLocation})}
	}

	if err := doc.Validate(); err != nil {
		return "", err
	}
	return doc.Encode()
}

// mergedSource keeps the template's collection and variables, replacing its
// granules with the given locations.
func mergedSource(sources []Source, locations []string) Source {
	var source Source
	if len(sources) > 0 {
		source.Collection = sources[0].Collection
		source.Variables = sources[0].Variables
	}
	source.Granules = make([]Granule, 0, len(locations))
	for _, location := range locations {
		source.Granules = append(source.Granules, Granule{
			Name: path.Base(location),
			URL:  location,
		})
	}
	return source
}
