package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FS stores payloads as files under a spool directory. Locations are
// file:// URLs.
type FS struct {
	root string
}

// NewFS creates a filesystem store rooted at the spool directory.
func NewFS(root string) (*FS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("objectstore: spool directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("objectstore: resolve spool directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create spool directory: %w", err)
	}
	return &FS{root: abs}, nil
}

// Write stores the payload under root/key and returns its file:// location.
func (f *FS) Write(ctx context.Context, key string, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleaned, err := f.resolveKey(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(cleaned), 0o755); err != nil {
		return "", fmt.Errorf("objectstore: create payload directory: %w", err)
	}
	if err := os.WriteFile(cleaned, payload, 0o644); err != nil {
		return "", fmt.Errorf("objectstore: write payload: %w", err)
	}
	return "file://" + cleaned, nil
}

// Read loads the payload at a file:// location or a path under the root.
func (f *FS) Read(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(location, "file://")
	if !filepath.IsAbs(path) {
		var err error
		path, err = f.resolveKey(path)
		if err != nil {
			return nil, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("objectstore: %s: %w", location, ErrNotFound)
		}
		return nil, fmt.Errorf("objectstore: read payload: %w", err)
	}
	return data, nil
}

// resolveKey joins the key under the root and rejects escapes.
func (f *FS) resolveKey(key string) (string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if key == "" {
		return "", errors.New("objectstore: key is required")
	}
	joined := filepath.Join(f.root, filepath.FromSlash(key))
	if joined != f.root && !strings.HasPrefix(joined, f.root+string(filepath.Separator)) {
		return "", fmt.Errorf("objectstore: key %q escapes the spool directory", key)
	}
	return joined, nil
}
