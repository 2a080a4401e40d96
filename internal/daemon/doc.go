// Package daemon runs the orchestrator process. It enforces single-instance
// execution through a file lock, serves the HTTP API, and drives the
// background sweep that requeues work items whose claims have expired.
package daemon
