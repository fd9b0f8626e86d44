package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}

func node(id string, deps ...string) domain.NodeSpec {
	return domain.NodeSpec{ID: id, DependsOn: deps, Run: noop}
}

func TestValidateAcceptsDAG(t *testing.T) {
	def := &domain.WorkflowDefinition{
		Name:        "wf",
		InitialKeys: []string{"seed"},
		Nodes: []domain.NodeSpec{
			{ID: "a", Inputs: []string{"seed"}, Outputs: []string{"x"}, Run: noop},
			{ID: "b", DependsOn: []string{"a"}, Inputs: []string{"x"}, Outputs: []string{"y"}, Run: noop},
			{ID: "c", DependsOn: []string{"a"}, Inputs: []string{"seed", "x"}, Outputs: []string{"z"}, Run: noop},
			{ID: "d", DependsOn: []string{"b", "c"}, Inputs: []string{"y", "z", "x"}, Run: noop},
		},
		ArtifactKeys: []string{"y", "z"},
	}

	assert.NoError(t, NewValidator().Validate(def))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		def     *domain.WorkflowDefinition
		message string
	}{
		{
			name:    "nil workflow",
			def:     nil,
			message: "workflow is nil",
		},
		{
			name:    "missing name",
			def:     &domain.WorkflowDefinition{Nodes: []domain.NodeSpec{node("a")}},
			message: "name is required",
		},
		{
			name:    "no nodes",
			def:     &domain.WorkflowDefinition{Name: "wf"},
			message: "at least one node",
		},
		{
			name:    "duplicate node",
			def:     &domain.WorkflowDefinition{Name: "wf", Nodes: []domain.NodeSpec{node("a"), node("a")}},
			message: "duplicate node ID",
		},
		{
			name:    "missing function",
			def:     &domain.WorkflowDefinition{Name: "wf", Nodes: []domain.NodeSpec{{ID: "a"}}},
			message: "node function is required",
		},
		{
			name:    "unknown dependency",
			def:     &domain.WorkflowDefinition{Name: "wf", Nodes: []domain.NodeSpec{node("a", "ghost")}},
			message: "unknown node ghost",
		},
		{
			name:    "self dependency",
			def:     &domain.WorkflowDefinition{Name: "wf", Nodes: []domain.NodeSpec{node("a", "a")}},
			message: "depends on itself",
		},
		{
			name: "cycle",
			def: &domain.WorkflowDefinition{Name: "wf", Nodes: []domain.NodeSpec{
				node("a", "c"), node("b", "a"), node("c", "b"),
			}},
			message: "dependency cycle detected",
		},
		{
			name: "unresolvable input",
			def: &domain.WorkflowDefinition{Name: "wf", Nodes: []domain.NodeSpec{
				{ID: "a", Outputs: []string{"x"}, Run: noop},
				{ID: "b", Inputs: []string{"x"}, Run: noop},
			}},
			message: `input "x" of node b`,
		},
		{
			name: "unproduced artifact key",
			def: &domain.WorkflowDefinition{
				Name:         "wf",
				Nodes:        []domain.NodeSpec{node("a")},
				ArtifactKeys: []string{"nothing"},
			},
			message: `artifact key "nothing"`,
		},
		{
			name: "negative retries",
			def: &domain.WorkflowDefinition{Name: "wf", Nodes: []domain.NodeSpec{
				{ID: "a", Run: noop, Policy: domain.NodePolicy{MaxRetries: -1}},
			}},
			message: "max retries must not be negative",
		},
		{
			name: "negative timeout",
			def: &domain.WorkflowDefinition{Name: "wf", Nodes: []domain.NodeSpec{
				{ID: "a", Run: noop, Policy: domain.NodePolicy{Timeout: -time.Second}},
			}},
			message: "timeout must not be negative",
		},
		{
			name: "duplicate outputs",
			def: &domain.WorkflowDefinition{Name: "wf", Nodes: []domain.NodeSpec{
				{ID: "a", Run: noop, Outputs: []string{"x", "x"}},
			}},
			message: "duplicate output keys",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidator().Validate(tt.def)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
			assert.Equal(t, domain.ErrorClassConfiguration, domain.Classify(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestFindCycleReportsPath(t *testing.T) {
	def := &domain.WorkflowDefinition{Nodes: []domain.NodeSpec{
		node("a"), node("b", "a", "d"), node("c", "b"), node("d", "c"),
	}}

	assert.Equal(t, []string{"b", "d", "c", "b"}, findCycle(def))
}

func TestAncestorSets(t *testing.T) {
	def := &domain.WorkflowDefinition{Nodes: []domain.NodeSpec{
		node("a"), node("b", "a"), node("c", "a"), node("d", "b", "c"),
	}}

	sets := ancestorSets(def)
	assert.Empty(t, sets["a"])
	assert.Equal(t, map[string]bool{"a": true}, sets["b"])
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, sets["d"])
}
