// Package api defines the wire-format types and converters for the daemon's
// HTTP surface. It translates internal job, work item, and link records into
// transport DTOs so the server, client, and CLI never couple to store types.
package api
