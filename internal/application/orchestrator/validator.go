package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aescanero/docgen/pkg/domain"
)

// Validator validates workflow definitions
type Validator struct{}

// NewValidator creates a new workflow validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks that a workflow is a well formed DAG whose nodes can
// resolve every required input. Failures are configuration errors.
func (v *Validator) Validate(def *domain.WorkflowDefinition) error {
	if err := v.validate(def); err != nil {
		name := ""
		if def != nil {
			name = def.Name
		}
		return domain.NewConfigurationError(name, err)
	}
	return nil
}

func (v *Validator) validate(def *domain.WorkflowDefinition) error {
	if def == nil {
		return errors.New("workflow is nil")
	}
	if def.Name == "" {
		return errors.New("workflow name is required")
	}
	if len(def.Nodes) == 0 {
		return errors.New("workflow must have at least one node")
	}
	if def.MaxInFlight < 0 {
		return fmt.Errorf("max in flight must not be negative: %d", def.MaxInFlight)
	}

	nodes := make(map[string]*domain.NodeSpec, len(def.Nodes))
	for i := range def.Nodes {
		node := &def.Nodes[i]
		if err := v.validateNode(node); err != nil {
			return fmt.Errorf("invalid node %q: %w", node.ID, err)
		}
		if _, exists := nodes[node.ID]; exists {
			return fmt.Errorf("duplicate node ID: %s", node.ID)
		}
		nodes[node.ID] = node
	}

	for _, node := range def.Nodes {
		for _, dep := range node.DependsOn {
			if dep == node.ID {
				return fmt.Errorf("node %s depends on itself", node.ID)
			}
			if _, exists := nodes[dep]; !exists {
				return fmt.Errorf("node %s depends on unknown node %s", node.ID, dep)
			}
		}
	}

	if cycle := findCycle(def); cycle != nil {
		return fmt.Errorf("dependency cycle detected: %s", strings.Join(cycle, " -> "))
	}

	initial := toSet(def.InitialKeys)
	ancestors := ancestorSets(def)
	for _, node := range def.Nodes {
		available := make(map[string]bool, len(initial))
		for k := range initial {
			available[k] = true
		}
		for anc := range ancestors[node.ID] {
			for _, out := range nodes[anc].Outputs {
				available[out] = true
			}
		}
		for _, key := range node.Inputs {
			if !available[key] {
				return fmt.Errorf("input %q of node %s is neither an initial key nor produced upstream", key, node.ID)
			}
		}
	}

	produced := make(map[string]bool)
	for _, node := range def.Nodes {
		for _, out := range node.Outputs {
			produced[out] = true
		}
	}
	for _, key := range def.ArtifactKeys {
		if !produced[key] {
			return fmt.Errorf("artifact key %q is not produced by any node", key)
		}
	}

	return nil
}

// validateNode validates a single node
func (v *Validator) validateNode(node *domain.NodeSpec) error {
	if node.ID == "" {
		return errors.New("node ID is required")
	}
	if node.Run == nil {
		return errors.New("node function is required")
	}
	if hasDuplicates(node.Outputs) {
		return errors.New("duplicate output keys")
	}

	p := node.Policy
	switch {
	case p.Timeout < 0:
		return fmt.Errorf("timeout must not be negative: %s", p.Timeout)
	case p.MaxRetries < 0:
		return fmt.Errorf("max retries must not be negative: %d", p.MaxRetries)
	case p.BackoffBase < 0:
		return fmt.Errorf("backoff base must not be negative: %s", p.BackoffBase)
	case p.MaxBackoff < 0:
		return fmt.Errorf("max backoff must not be negative: %s", p.MaxBackoff)
	}

	return nil
}

// findCycle returns one dependency cycle, or nil when the graph is acyclic
func findCycle(def *domain.WorkflowDefinition) []string {
	const (
		white = iota
		gray
		black
	)

	deps := make(map[string][]string, len(def.Nodes))
	for _, n := range def.Nodes {
		deps[n.ID] = n.DependsOn
	}

	color := make(map[string]int, len(def.Nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range deps[id] {
			switch color[dep] {
			case gray:
				for i, s := range stack {
					if s == dep {
						cycle = append(append([]string(nil), stack[i:]...), dep)
						break
					}
				}
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, n := range def.Nodes {
		if color[n.ID] == white && visit(n.ID) {
			return cycle
		}
	}
	return nil
}

// ancestorSets returns the transitive dependencies of every node. The graph
// must be acyclic.
func ancestorSets(def *domain.WorkflowDefinition) map[string]map[string]bool {
	deps := make(map[string][]string, len(def.Nodes))
	for _, n := range def.Nodes {
		deps[n.ID] = n.DependsOn
	}

	result := make(map[string]map[string]bool, len(def.Nodes))
	var collect func(id string) map[string]bool
	collect = func(id string) map[string]bool {
		if set, ok := result[id]; ok {
			return set
		}
		set := make(map[string]bool)
		result[id] = set
		for _, dep := range deps[id] {
			set[dep] = true
			for anc := range collect(dep) {
				set[anc] = true
			}
		}
		return set
	}

	for _, n := range def.Nodes {
		collect(n.ID)
	}
	return result
}

func toSet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

func hasDuplicates(keys []string) bool {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			return true
		}
		seen[k] = true
	}
	return false
}
