package orchestrator

import (
	"testing"
	"time"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func durationPtr(d time.Duration) *time.Duration { return &d }
func intPtr(n int) *int                          { return &n }

func TestRegistryAppliesDefaultsAndOverrides(t *testing.T) {
	defaults := domain.NodePolicy{
		Timeout:     time.Minute,
		MaxRetries:  3,
		BackoffBase: time.Second,
		MaxBackoff:  30 * time.Second,
	}
	r := NewRegistry(NewValidator(), RegistryConfig{
		Defaults:           defaults,
		DefaultMaxInFlight: 4,
		Overrides: map[string]domain.WorkflowOverride{
			"wf": {
				MaxInFlight: intPtr(2),
				Nodes: map[string]domain.NodePolicyOverride{
					"b": {Timeout: durationPtr(5 * time.Second), MaxRetries: intPtr(0)},
				},
			},
		},
	}, zap.NewNop())

	def := &domain.WorkflowDefinition{
		Name: "wf",
		Nodes: []domain.NodeSpec{
			node("a"),
			{ID: "b", DependsOn: []string{"a"}, Run: noop, Policy: domain.NodePolicy{MaxRetries: 1}},
		},
	}
	require.NoError(t, r.Register(def))

	got, err := r.Get("wf")
	require.NoError(t, err)
	assert.Equal(t, 2, got.MaxInFlight)

	a, _ := got.Node("a")
	assert.Equal(t, defaults, a.Policy)

	b, _ := got.Node("b")
	assert.Equal(t, domain.NodePolicy{
		Timeout:     5 * time.Second,
		MaxRetries:  0,
		BackoffBase: time.Second,
		MaxBackoff:  30 * time.Second,
	}, b.Policy)

	// the caller's definition is untouched
	assert.Equal(t, domain.NodePolicy{MaxRetries: 1}, def.Nodes[1].Policy)
	assert.Zero(t, def.MaxInFlight)
}

func TestRegistryRejectsInvalidAndDuplicate(t *testing.T) {
	r := NewRegistry(NewValidator(), RegistryConfig{}, zap.NewNop())

	err := r.Register(&domain.WorkflowDefinition{Name: "bad", Nodes: []domain.NodeSpec{node("a", "a")}})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = r.Get("bad")
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)

	good := &domain.WorkflowDefinition{Name: "good", Nodes: []domain.NodeSpec{node("a")}}
	require.NoError(t, r.Register(good))
	assert.ErrorIs(t, r.Register(good), domain.ErrConfiguration)
}

func TestRegistryListSortedByName(t *testing.T) {
	r := NewRegistry(NewValidator(), RegistryConfig{}, zap.NewNop())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(&domain.WorkflowDefinition{Name: name, Nodes: []domain.NodeSpec{node("a")}}))
	}

	var names []string
	for _, def := range r.List() {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}
