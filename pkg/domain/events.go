package domain

import "time"

// EventType identifies a lifecycle event
type EventType string

const (
	EventTypeRunSubmitted  EventType = "run.submitted"
	EventTypeRunStarted    EventType = "run.started"
	EventTypeRunSucceeded  EventType = "run.succeeded"
	EventTypeRunFailed     EventType = "run.failed"
	EventTypeRunCancelled  EventType = "run.cancelled"
	EventTypeNodeStarted   EventType = "node.started"
	EventTypeNodeSucceeded EventType = "node.succeeded"
	EventTypeNodeRetrying  EventType = "node.retrying"
	EventTypeNodeFailed    EventType = "node.failed"
	EventTypeNodeSkipped   EventType = "node.skipped"
)

// TopicRunEvents is the event bus topic carrying all run and node events
const TopicRunEvents = "run.events"

// IsTerminal reports whether the event closes a run
func (t EventType) IsTerminal() bool {
	return t == EventTypeRunSucceeded || t == EventTypeRunFailed || t == EventTypeRunCancelled
}

// Event is published on the event bus whenever a run or node changes state
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id"`
	Workflow  string         `json:"workflow,omitempty"`
	NodeID    string         `json:"node_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}
