// Package storagetest provides behavioural test suites shared by every
// ports.StateStore and ports.DocumentStore implementation.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store against the StateStore contract. newStore must return
// an empty store.
func Run(t *testing.T, newStore func(t *testing.T) ports.StateStore) {
	t.Run("CreateAndLoadRun", func(t *testing.T) {
		testCreateAndLoadRun(t, newStore(t))
	})
	t.Run("LoadMissingRun", func(t *testing.T) {
		testLoadMissingRun(t, newStore(t))
	})
	t.Run("SaveRunIsIdempotent", func(t *testing.T) {
		testSaveRunIsIdempotent(t, newStore(t))
	})
	t.Run("NodeHistoryKeepsAppendOrder", func(t *testing.T) {
		testNodeHistory(t, newStore(t))
	})
	t.Run("ListRunsNewestFirst", func(t *testing.T) {
		testListRuns(t, newStore(t))
	})
	t.Run("ArtifactWrittenOnce", func(t *testing.T) {
		testArtifact(t, newStore(t))
	})
}

func testCreateAndLoadRun(t *testing.T, store ports.StateStore) {
	ctx := context.Background()
	input := map[string]any{"repository_name": "docgen", "count": float64(3)}

	id, err := store.CreateRun(ctx, "document_generation", input)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := store.LoadRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, "document_generation", run.Workflow)
	assert.Equal(t, domain.RunStatusPending, run.Status)
	assert.Equal(t, input, run.Input)
	assert.False(t, run.CreatedAt.IsZero())

	other, err := store.CreateRun(ctx, "document_generation", input)
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func testLoadMissingRun(t *testing.T, store ports.StateStore) {
	ctx := context.Background()

	_, err := store.LoadRun(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)

	_, err = store.LoadArtifact(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
}

func testSaveRunIsIdempotent(t *testing.T, store ports.StateStore) {
	ctx := context.Background()

	id, err := store.CreateRun(ctx, "wf", map[string]any{"a": "x"})
	require.NoError(t, err)
	run, err := store.LoadRun(ctx, id)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	run.Status = domain.RunStatusRunning
	run.StartedAt = &now
	run.State = map[string]any{"a": "x"}
	run.Nodes = map[string]*domain.NodeExecution{
		"n1": {NodeID: "n1", Status: domain.NodeStatusSucceeded, AttemptCount: 1},
	}

	require.NoError(t, store.SaveRun(ctx, run))
	first, err := store.LoadRun(ctx, id)
	require.NoError(t, err)

	require.NoError(t, store.SaveRun(ctx, run))
	second, err := store.LoadRun(ctx, id)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("saving twice changed the run (-first +second):\n%s", diff)
	}
	assert.Equal(t, domain.RunStatusRunning, second.Status)
	assert.Equal(t, 1, second.Nodes["n1"].AttemptCount)
}

func testNodeHistory(t *testing.T, store ports.StateStore) {
	ctx := context.Background()

	id, err := store.CreateRun(ctx, "wf", nil)
	require.NoError(t, err)

	history, err := store.ListNodeExecutions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, history)

	for _, nodeID := range []string{"b", "a", "c"} {
		require.NoError(t, store.AppendNodeExecution(ctx, id, &domain.NodeExecution{
			NodeID: nodeID,
			Status: domain.NodeStatusSucceeded,
		}))
	}

	history, err = store.ListNodeExecutions(ctx, id)
	require.NoError(t, err)
	var order []string
	for _, exec := range history {
		order = append(order, exec.NodeID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, order)
}

func testListRuns(t *testing.T, store ports.StateStore) {
	ctx := context.Background()

	var ids []string
	for _, wf := range []string{"alpha", "beta", "alpha"} {
		id, err := store.CreateRun(ctx, wf, nil)
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}

	all, err := store.ListRuns(ctx, ports.RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)

	alpha, err := store.ListRuns(ctx, ports.RunFilter{Workflow: "alpha"})
	require.NoError(t, err)
	require.Len(t, alpha, 2)
	assert.Equal(t, ids[2], alpha[0].ID)

	page, err := store.ListRuns(ctx, ports.RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	running, err := store.ListRuns(ctx, ports.RunFilter{Status: domain.RunStatusRunning})
	require.NoError(t, err)
	assert.Empty(t, running)
}

func testArtifact(t *testing.T, store ports.StateStore) {
	ctx := context.Background()

	id, err := store.CreateRun(ctx, "wf", nil)
	require.NoError(t, err)

	artifact := &domain.Artifact{
		RunID:     id,
		Workflow:  "wf",
		Content:   map[string]any{"document_title": "Docs"},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.SaveArtifact(ctx, artifact))

	err = store.SaveArtifact(ctx, artifact)
	assert.ErrorIs(t, err, domain.ErrArtifactExists)

	loaded, err := store.LoadArtifact(ctx, id)
	require.NoError(t, err)
	if diff := cmp.Diff(artifact, loaded); diff != "" {
		t.Errorf("artifact mismatch (-want +got):\n%s", diff)
	}
}
