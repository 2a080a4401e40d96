// Package workflow contains the orchestration engine.
//
// The engine admits jobs, decomposes them into work items across workflow
// steps, hands claimed items to polling workers as operation documents, and
// folds completion reports back into job state. All state transitions run
// inside store transactions so concurrent workers, the HTTP API, and the
// reclaim sweep never observe partial updates.
package workflow
