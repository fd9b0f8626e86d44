package ports

import "time"

// MetricsCollector records orchestrator metrics
type MetricsCollector interface {
	RecordRunSubmitted(workflow string)
	RecordRunCompleted(workflow, status string, duration time.Duration)
	SetActiveRuns(count int)

	RecordNodeAttempt(workflow, node, outcome string, duration time.Duration)
	RecordNodeRetry(workflow, node, class string)

	RecordInvocation(tool, model, outcome string, latency time.Duration)
	RecordTokens(model, tokenType string, count int)

	RecordWorkerPoolStatus(idle, busy, stopped int)
}
