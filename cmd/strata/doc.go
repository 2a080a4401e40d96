// Package main hosts the strata CLI entrypoint and command graph.
//
// The cobra-based command tree turns terminal invocations into HTTP calls
// against a running stratad: job submission and control, work item and
// result link inspection, worker-style claim/report for debugging, and
// backlog depth for scalers. Configuration scaffolding and preflight
// checks run locally. Endpoint discovery and config resolution live in
// commandContext so subcommands can focus on presentation.
package main
