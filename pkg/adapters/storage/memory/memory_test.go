package memory

import (
	"context"
	"testing"

	"github.com/aescanero/docgen/pkg/adapters/storage/storagetest"
	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) ports.StateStore {
		return NewStateStore()
	})
}

func TestDocumentStore(t *testing.T) {
	storagetest.RunDocuments(t, func(t *testing.T) ports.DocumentStore {
		return NewDocumentStore()
	})
}

func TestLoadRunReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewStateStore()

	id, err := store.CreateRun(ctx, "wf", map[string]any{"k": "v"})
	require.NoError(t, err)

	run, err := store.LoadRun(ctx, id)
	require.NoError(t, err)
	run.Input["k"] = "changed"
	run.Status = domain.RunStatusFailed

	again, err := store.LoadRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "v", again.Input["k"])
	assert.Equal(t, domain.RunStatusPending, again.Status)
}

func TestAppendToUnknownRun(t *testing.T) {
	store := NewStateStore()

	err := store.AppendNodeExecution(context.Background(), "missing", domain.NewNodeExecution("n"))
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}
