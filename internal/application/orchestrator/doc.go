// Package orchestrator implements workflow registration and run execution.
//
// The registry resolves node policies and validates every workflow once, at
// registration. The engine drives a single run: it dispatches eligible nodes
// onto a worker pool, classifies failures, schedules retries with
// exponential backoff and checkpoints every node that reaches a terminal
// status. A succeeded run is handed to the assembler, which merges node
// outputs in declaration order into the final artifact.
//
// The manager ties these together for callers. It creates runs in the state
// store, executes them in the background or synchronously and handles
// cancellation and shutdown.
package orchestrator
