package domain

import (
	"context"
	"time"
)

// NodeFunc is the unit of work run by a node. It receives the resolved input
// keys and must return exactly the node's declared output keys.
type NodeFunc func(ctx context.Context, inputs map[string]any) (map[string]any, error)

// ConditionFunc decides whether an eligible node runs. It sees the same
// resolved inputs the node would receive.
type ConditionFunc func(inputs map[string]any) bool

// NodePolicy controls timeouts and retries for a node
type NodePolicy struct {
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries  int           `json:"max_retries" yaml:"max_retries"`
	BackoffBase time.Duration `json:"backoff_base" yaml:"backoff_base"`
	MaxBackoff  time.Duration `json:"max_backoff,omitempty" yaml:"max_backoff"`
}

// NodeSpec describes a single node of a workflow
type NodeSpec struct {
	ID             string
	Description    string
	Inputs         []string
	OptionalInputs []string
	Outputs        []string
	DependsOn      []string

	// Optional nodes do not block their dependents when skipped.
	Optional  bool
	Condition ConditionFunc
	Run       NodeFunc
	Policy    NodePolicy
}

// WorkflowDefinition is an immutable, named DAG of nodes. Node declaration
// order is the precedence order used when merging outputs.
type WorkflowDefinition struct {
	Name        string
	Description string
	Nodes       []NodeSpec

	// InitialKeys must be present in the input of every run.
	InitialKeys []string
	// ArtifactKeys form the contract of the final artifact.
	ArtifactKeys []string
	// MaxInFlight bounds concurrently running nodes per run. Zero means the
	// engine default.
	MaxInFlight int
}

// Node returns the node with the given ID
func (w *WorkflowDefinition) Node(id string) (*NodeSpec, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

// Clone returns a copy that can be modified without affecting w
func (w *WorkflowDefinition) Clone() *WorkflowDefinition {
	c := *w
	c.Nodes = make([]NodeSpec, len(w.Nodes))
	copy(c.Nodes, w.Nodes)
	c.InitialKeys = append([]string(nil), w.InitialKeys...)
	c.ArtifactKeys = append([]string(nil), w.ArtifactKeys...)
	return &c
}

// NodePolicyOverride overrides selected policy fields of one node
type NodePolicyOverride struct {
	Timeout     *time.Duration `json:"timeout,omitempty" yaml:"timeout"`
	MaxRetries  *int           `json:"max_retries,omitempty" yaml:"max_retries"`
	BackoffBase *time.Duration `json:"backoff_base,omitempty" yaml:"backoff_base"`
	MaxBackoff  *time.Duration `json:"max_backoff,omitempty" yaml:"max_backoff"`
}

// Apply returns p with the override fields set
func (o NodePolicyOverride) Apply(p NodePolicy) NodePolicy {
	if o.Timeout != nil {
		p.Timeout = *o.Timeout
	}
	if o.MaxRetries != nil {
		p.MaxRetries = *o.MaxRetries
	}
	if o.BackoffBase != nil {
		p.BackoffBase = *o.BackoffBase
	}
	if o.MaxBackoff != nil {
		p.MaxBackoff = *o.MaxBackoff
	}
	return p
}

// WorkflowOverride holds operator supplied policy overrides for a workflow
type WorkflowOverride struct {
	MaxInFlight *int                          `json:"max_in_flight,omitempty" yaml:"max_in_flight"`
	Nodes       map[string]NodePolicyOverride `json:"nodes,omitempty" yaml:"nodes"`
}

// WorkflowInfo is the serializable description of a workflow definition
type WorkflowInfo struct {
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	InitialKeys  []string   `json:"initial_keys"`
	ArtifactKeys []string   `json:"artifact_keys"`
	MaxInFlight  int        `json:"max_in_flight"`
	Nodes        []NodeInfo `json:"nodes"`
}

// NodeInfo is the serializable description of a node
type NodeInfo struct {
	ID             string     `json:"id"`
	Description    string     `json:"description,omitempty"`
	DependsOn      []string   `json:"depends_on,omitempty"`
	Inputs         []string   `json:"inputs,omitempty"`
	OptionalInputs []string   `json:"optional_inputs,omitempty"`
	Outputs        []string   `json:"outputs,omitempty"`
	Optional       bool       `json:"optional"`
	Conditional    bool       `json:"conditional"`
	Policy         NodePolicy `json:"policy"`
}

// Describe returns the serializable description of w
func (w *WorkflowDefinition) Describe() WorkflowInfo {
	info := WorkflowInfo{
		Name:         w.Name,
		Description:  w.Description,
		InitialKeys:  w.InitialKeys,
		ArtifactKeys: w.ArtifactKeys,
		MaxInFlight:  w.MaxInFlight,
		Nodes:        make([]NodeInfo, 0, len(w.Nodes)),
	}
	for _, n := range w.Nodes {
		info.Nodes = append(info.Nodes, NodeInfo{
			ID:             n.ID,
			Description:    n.Description,
			DependsOn:      n.DependsOn,
			Inputs:         n.Inputs,
			OptionalInputs: n.OptionalInputs,
			Outputs:        n.Outputs,
			Optional:       n.Optional,
			Conditional:    n.Condition != nil,
			Policy:         n.Policy,
		})
	}
	return info
}
