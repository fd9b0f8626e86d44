package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T, defs ...*domain.WorkflowDefinition) (*Manager, *harness) {
	t.Helper()
	h := newHarness(t, 2)

	registry := NewRegistry(NewValidator(), RegistryConfig{}, zap.NewNop())
	for _, def := range defs {
		require.NoError(t, registry.Register(def))
	}

	m := NewManager(registry, h.engine, h.store, h.bus, h.engine.metrics, zap.NewNop(), time.Minute)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, h
}

func echoWorkflow() *domain.WorkflowDefinition {
	return &domain.WorkflowDefinition{
		Name:         "echo",
		InitialKeys:  []string{"text"},
		ArtifactKeys: []string{"echo"},
		Nodes: []domain.NodeSpec{{
			ID:      "echo",
			Inputs:  []string{"text"},
			Outputs: []string{"echo"},
			Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				return map[string]any{"echo": in["text"]}, nil
			},
		}},
	}
}

func TestManagerExecute(t *testing.T) {
	m, h := newTestManager(t, echoWorkflow())

	run, artifact, err := m.Execute(context.Background(), "echo", map[string]any{"text": "hello"})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSucceeded, run.Status)
	require.NotNil(t, artifact)
	assert.Equal(t, map[string]any{"echo": "hello"}, artifact.Content)

	got, err := m.GetArtifact(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, artifact.Content, got.Content)

	history, err := m.NodeHistory(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "echo", history[0].NodeID)

	types := h.eventTypes(run.ID)
	require.NotEmpty(t, types)
	assert.Equal(t, domain.EventTypeRunSubmitted, types[0])
	assert.Zero(t, m.ActiveRuns())
}

func TestManagerStartRunValidatesRequest(t *testing.T) {
	m, _ := newTestManager(t, echoWorkflow())
	ctx := context.Background()

	_, err := m.StartRun(ctx, "unknown", nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)

	_, err = m.StartRun(ctx, "echo", map[string]any{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "text")

	runs, err := m.ListRuns(ctx, ports.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestManagerStartRunAndPoll(t *testing.T) {
	m, _ := newTestManager(t, echoWorkflow())
	ctx := context.Background()

	summary, err := m.StartRun(ctx, "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusPending, summary.Status)

	require.Eventually(t, func() bool {
		status, err := m.GetRunStatus(ctx, summary.ID)
		return err == nil && status.Status == domain.RunStatusSucceeded
	}, 2*time.Second, 5*time.Millisecond)

	runs, err := m.ListRuns(ctx, ports.RunFilter{Workflow: "echo"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.ID, runs[0].ID)
}

func TestManagerCancelActiveRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	def := &domain.WorkflowDefinition{
		Name: "blocking",
		Nodes: []domain.NodeSpec{
			{ID: "wait", Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				close(started)
				<-release
				return map[string]any{}, nil
			}},
			{ID: "after", DependsOn: []string{"wait"}, Run: noop},
		},
	}
	m, _ := newTestManager(t, def)
	ctx := context.Background()

	summary, err := m.StartRun(ctx, "blocking", nil)
	require.NoError(t, err)
	<-started

	require.NoError(t, m.Cancel(ctx, summary.ID))
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.Eventually(t, func() bool {
		status, err := m.GetRunStatus(ctx, summary.ID)
		return err == nil && status.Status == domain.RunStatusCancelled
	}, 2*time.Second, 5*time.Millisecond)

	err = m.Cancel(ctx, summary.ID)
	assert.ErrorIs(t, err, domain.ErrRunTerminal)
}

func TestManagerCancelOrphanedRun(t *testing.T) {
	m, h := newTestManager(t, echoWorkflow())
	ctx := context.Background()

	id, err := h.store.CreateRun(ctx, "echo", map[string]any{"text": "x"})
	require.NoError(t, err)

	require.NoError(t, m.Cancel(ctx, id))

	run, err := m.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, run.Status)
	assert.NotNil(t, run.CompletedAt)

	_, err = m.GetArtifact(ctx, id)
	assert.ErrorIs(t, err, ErrRunNotSucceeded)
}

func TestManagerCancelOrphanedRunRecordsNodes(t *testing.T) {
	def := &domain.WorkflowDefinition{
		Name:  "pair",
		Nodes: []domain.NodeSpec{node("first"), node("second", "first")},
	}
	m, h := newTestManager(t, def)
	ctx := context.Background()

	id, err := h.store.CreateRun(ctx, "pair", nil)
	require.NoError(t, err)
	run, err := h.store.LoadRun(ctx, id)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, transitionRun(run, domain.RunStatusRunning, now))
	run.Nodes["first"] = domain.NewNodeExecution("first")
	require.NoError(t, beginAttempt(run.Nodes["first"], now))
	require.NoError(t, h.store.SaveRun(ctx, run))

	require.NoError(t, m.Cancel(ctx, id))

	got, err := m.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, got.Status)
	assert.Equal(t, domain.NodeStatusFailed, got.Nodes["first"].Status)
	assert.Equal(t, domain.NodeStatusSkipped, got.Nodes["second"].Status)

	history, err := m.NodeHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].NodeID)
	assert.Equal(t, "second", history[1].NodeID)
}

func TestManagerGetMissingRun(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
	assert.True(t, domain.IsNotFound(err))

	assert.ErrorIs(t, m.Cancel(context.Background(), "missing"), domain.ErrRunNotFound)
}

func TestManagerWorkflows(t *testing.T) {
	m, _ := newTestManager(t, echoWorkflow())

	infos := m.Workflows()
	require.Len(t, infos, 1)
	assert.Equal(t, "echo", infos[0].Name)
	assert.Equal(t, []string{"text"}, infos[0].InitialKeys)
	require.Len(t, infos[0].Nodes, 1)
	assert.Equal(t, []string{"echo"}, infos[0].Nodes[0].Outputs)
}

func TestManagerRejectsRunsAfterShutdown(t *testing.T) {
	m, _ := newTestManager(t, echoWorkflow())
	require.NoError(t, m.Shutdown(context.Background()))

	_, err := m.StartRun(context.Background(), "echo", map[string]any{"text": "x"})
	assert.ErrorIs(t, err, ErrManagerClosed)
}
