// Package workers implements the worker pool that runs node attempts.
//
// The pool manages a fixed number of goroutines that:
//   - Accept jobs handed over by the orchestrator engine through Submit
//   - Run one node attempt per job
//   - Survive panics raised by a job
//
// Submit blocks while every worker is busy, which bounds the number of
// concurrent attempts across all runs. The health monitor tracks worker
// status and records pool metrics.
package workers
