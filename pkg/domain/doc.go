// Package domain defines the core types shared by the orchestrator, its
// adapters and the API layer.
//
// The main types are:
//   - WorkflowDefinition and NodeSpec: the static, validated workflow graph
//   - Run and NodeExecution: the mutable execution record of one run
//   - Artifact: the immutable result of a succeeded run
//   - Event: lifecycle notifications published on the event bus
//
// Errors carry an ErrorClass that drives the retry policy. Use Classify to
// recover the class of any error returned by a node.
package domain
