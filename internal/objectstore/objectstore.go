// Package objectstore persists work item payloads. The orchestrator treats
// payloads as opaque bytes addressed by a location string; backends decide
// what a location looks like.
package objectstore

import (
	"context"
	"errors"
)

// ErrNotFound marks reads of locations that do not exist.
var ErrNotFound = errors.New("object not found")

// Store reads and writes opaque payloads.
type Store interface {
	// Read returns the payload at a location previously returned by Write.
	Read(ctx context.Context, location string) ([]byte, error)
	// Write persists the payload under the given key and returns the
	// backend-qualified location.
	Write(ctx context.Context, key string, payload []byte) (string, error)
}
