// Package logging assembles the structured slog loggers used across the
// orchestrator.
//
// It owns the console/JSON handler plumbing, centralizes level and output
// configuration, and exposes context-aware helpers so engine and API code can
// automatically tag log lines with job IDs, work item IDs, and correlation
// IDs. The package also provides a no-op logger for tests and wiring code
// that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components
// emit data with the same shape as the rest of the system.
package logging
