// Package jobs persists jobs, workflow steps, and work items, and exposes the
// guarded status transitions that drive their lifecycle.
//
// The Store manages database connections for both sqlite and postgres, schema
// initialization, transactional mutation with bounded retry on contention,
// atomic work item claims, and the filtered listing queries behind the API.
// Job and work item status changes flow through the transition helpers in
// models.go so every caller honours the same state machines and conflict
// messages.
//
// Treat this package as the single source of truth for orchestration state;
// when you add statuses or columns, update both schema files and bump
// schemaVersion.
package jobs
