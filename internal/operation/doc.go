// Package operation models the instruction document handed to worker
// services. Each workflow step stores a template; dispatch merges the
// template with the claimed item's input to produce the document a worker
// receives.
package operation
