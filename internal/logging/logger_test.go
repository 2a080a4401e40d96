package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"strata/internal/logging"
)

func readLogLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("parse log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewJSONLoggerWritesStandardKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "strata.log")

	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("job accepted", logging.String(logging.FieldJobID, "req-1"))

	entries := readLogLines(t, logPath)
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["msg"] != "job accepted" {
		t.Fatalf("msg = %v, want %q", entry["msg"], "job accepted")
	}
	if entry["level"] != "info" {
		t.Fatalf("level = %v, want info", entry["level"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatal("expected ts key in log entry")
	}
	if entry[logging.FieldJobID] != "req-1" {
		t.Fatalf("job_id = %v, want req-1", entry[logging.FieldJobID])
	}
}

func TestNewSuppressesBelowLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "strata.log")

	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "warn",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("should be dropped")
	logger.Warn("should be kept")

	entries := readLogLines(t, logPath)
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0]["msg"] != "should be kept" {
		t.Fatalf("msg = %v, want %q", entries[0]["msg"], "should be kept")
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "strata.log")

	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "shouty",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("debug dropped")
	logger.Info("info kept")

	entries := readLogLines(t, logPath)
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "strata.log")

	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := context.Background()
	ctx = logging.WithJobID(ctx, "req-42")
	ctx = logging.WithWorkItemID(ctx, 7)
	ctx = logging.WithServiceID(ctx, "regridder")
	ctx = logging.WithCorrelationID(ctx, "corr-xyz")

	logging.WithContext(ctx, logger).Info("contextual log")

	entries := readLogLines(t, logPath)
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry[logging.FieldJobID] != "req-42" {
		t.Fatalf("job_id = %v, want req-42", entry[logging.FieldJobID])
	}
	if entry[logging.FieldWorkItemID] != float64(7) {
		t.Fatalf("work_item = %v, want 7", entry[logging.FieldWorkItemID])
	}
	if entry[logging.FieldService] != "regridder" {
		t.Fatalf("service = %v, want regridder", entry[logging.FieldService])
	}
	if entry[logging.FieldCorrelationID] != "corr-xyz" {
		t.Fatalf("correlation_id = %v, want corr-xyz", entry[logging.FieldCorrelationID])
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger == nil {
		t.Fatal("expected logger instance")
	}
	logger.Error("goes nowhere", logging.Error(os.ErrNotExist))
}
