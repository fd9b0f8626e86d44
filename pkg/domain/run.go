package domain

import "time"

// RunStatus represents the lifecycle status of a run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the status is final
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// NodeStatus represents the execution status of a node within a run
type NodeStatus string

const (
	NodeStatusNotStarted      NodeStatus = "not_started"
	NodeStatusRunning         NodeStatus = "running"
	NodeStatusFailedRetryable NodeStatus = "failed_retryable"
	NodeStatusSucceeded       NodeStatus = "succeeded"
	NodeStatusFailed          NodeStatus = "failed"
	NodeStatusSkipped         NodeStatus = "skipped"
)

// IsTerminal reports whether the status is final
func (s NodeStatus) IsTerminal() bool {
	return s == NodeStatusSucceeded || s == NodeStatusFailed || s == NodeStatusSkipped
}

// AttemptRecord captures one attempt of a node
type AttemptRecord struct {
	Number     int           `json:"number"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Error      string        `json:"error,omitempty"`
	Class      ErrorClass    `json:"class,omitempty"`
	RetryDelay time.Duration `json:"retry_delay,omitempty"`
}

// NodeError is the last recorded failure of a node
type NodeError struct {
	Class   ErrorClass `json:"class"`
	Message string     `json:"message"`
}

// NodeExecution is the per-run execution record of one node
type NodeExecution struct {
	NodeID       string          `json:"node_id"`
	Status       NodeStatus      `json:"status"`
	AttemptCount int             `json:"attempt_count"`
	LastError    *NodeError      `json:"last_error,omitempty"`
	Output       map[string]any  `json:"output,omitempty"`
	Attempts     []AttemptRecord `json:"attempts,omitempty"`
	SkipReason   string          `json:"skip_reason,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// NewNodeExecution creates a NotStarted execution record
func NewNodeExecution(nodeID string) *NodeExecution {
	return &NodeExecution{
		NodeID: nodeID,
		Status: NodeStatusNotStarted,
	}
}

// Clone returns a copy of the execution record. Output values are shared.
func (n *NodeExecution) Clone() *NodeExecution {
	c := *n
	if n.LastError != nil {
		e := *n.LastError
		c.LastError = &e
	}
	if n.Output != nil {
		c.Output = make(map[string]any, len(n.Output))
		for k, v := range n.Output {
			c.Output[k] = v
		}
	}
	c.Attempts = append([]AttemptRecord(nil), n.Attempts...)
	return &c
}

// RunFailure describes why a run failed
type RunFailure struct {
	NodeID   string     `json:"node_id,omitempty"`
	Class    ErrorClass `json:"class"`
	Attempts int        `json:"attempts"`
	Message  string     `json:"message"`
}

// Run is the execution record of one workflow invocation
type Run struct {
	ID          string                    `json:"id"`
	Workflow    string                    `json:"workflow"`
	Input       map[string]any            `json:"input"`
	Status      RunStatus                 `json:"status"`
	Nodes       map[string]*NodeExecution `json:"nodes"`
	State       map[string]any            `json:"state,omitempty"`
	Failure     *RunFailure               `json:"failure,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
	StartedAt   *time.Time                `json:"started_at,omitempty"`
	CompletedAt *time.Time                `json:"completed_at,omitempty"`
}

// NewRun creates a Pending run
func NewRun(id, workflow string, input map[string]any, now time.Time) *Run {
	if input == nil {
		input = make(map[string]any)
	}
	return &Run{
		ID:        id,
		Workflow:  workflow,
		Input:     input,
		Status:    RunStatusPending,
		Nodes:     make(map[string]*NodeExecution),
		State:     make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RunSummary is a compact view of a run used by status queries and listings
type RunSummary struct {
	ID          string             `json:"id"`
	Workflow    string             `json:"workflow"`
	Status      RunStatus          `json:"status"`
	Nodes       map[NodeStatus]int `json:"nodes"`
	Failure     *RunFailure        `json:"failure,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// Summary returns the compact view of r
func (r *Run) Summary() *RunSummary {
	counts := make(map[NodeStatus]int)
	for _, n := range r.Nodes {
		counts[n.Status]++
	}
	return &RunSummary{
		ID:          r.ID,
		Workflow:    r.Workflow,
		Status:      r.Status,
		Nodes:       counts,
		Failure:     r.Failure,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

// Artifact is the immutable final output of a succeeded run
type Artifact struct {
	RunID     string         `json:"run_id"`
	Workflow  string         `json:"workflow"`
	Content   map[string]any `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
}
