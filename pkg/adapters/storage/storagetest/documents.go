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

// RunDocuments exercises store against the DocumentStore contract. newStore
// must return an empty store.
func RunDocuments(t *testing.T, newStore func(t *testing.T) ports.DocumentStore) {
	t.Run("SaveAndGetDocument", func(t *testing.T) {
		testSaveAndGetDocument(t, newStore(t))
	})
	t.Run("SaveDocumentUpserts", func(t *testing.T) {
		testSaveDocumentUpserts(t, newStore(t))
	})
	t.Run("LatestDocument", func(t *testing.T) {
		testLatestDocument(t, newStore(t))
	})
	t.Run("ListDocumentsNewestFirst", func(t *testing.T) {
		testListDocuments(t, newStore(t))
	})
}

func newDocument(repository string, status domain.DocumentStatus, created, updated time.Time) *domain.Document {
	return &domain.Document{
		Repository: repository,
		Title:      repository + " - Project Documentation",
		Content:    "# " + repository,
		Status:     status,
		Type:       "auto",
		CommitSHA:  "0123456",
		CreatedAt:  created,
		UpdatedAt:  updated,
	}
}

func testSaveAndGetDocument(t *testing.T, store ports.DocumentStore) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	doc := newDocument("acme/widgets", domain.DocumentStatusGenerated, now, now)
	doc.Metadata = map[string]any{"changed_files": []any{"main.go"}}
	require.NoError(t, store.SaveDocument(ctx, doc))
	require.NotEmpty(t, doc.ID)

	loaded, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(doc, loaded); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}

	_, err = store.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func testSaveDocumentUpserts(t *testing.T, store ports.DocumentStore) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	doc := newDocument("acme/widgets", domain.DocumentStatusGenerated, now, now)
	require.NoError(t, store.SaveDocument(ctx, doc))

	doc.Content = "# updated"
	doc.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.SaveDocument(ctx, doc))

	loaded, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "# updated", loaded.Content)

	all, err := store.ListDocuments(ctx, ports.DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testLatestDocument(t *testing.T, store ports.DocumentStore) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	generated := newDocument("acme/widgets", domain.DocumentStatusGenerated, base, base.Add(time.Minute))
	edited := newDocument("acme/widgets", domain.DocumentStatusEdited, base, base.Add(2*time.Minute))
	failed := newDocument("acme/widgets", domain.DocumentStatusFailed, base, base.Add(3*time.Minute))
	other := newDocument("acme/gadgets", domain.DocumentStatusGenerated, base, base.Add(4*time.Minute))
	for _, d := range []*domain.Document{generated, edited, failed, other} {
		require.NoError(t, store.SaveDocument(ctx, d))
	}

	latest, err := store.LatestDocument(ctx, "acme/widgets", domain.CurrentDocumentStatuses...)
	require.NoError(t, err)
	assert.Equal(t, edited.ID, latest.ID)

	latest, err = store.LatestDocument(ctx, "acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, failed.ID, latest.ID)

	_, err = store.LatestDocument(ctx, "acme/missing")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func testListDocuments(t *testing.T, store ports.DocumentStore) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	var ids []string
	for i, repo := range []string{"acme/widgets", "acme/gadgets", "acme/widgets"} {
		created := base.Add(time.Duration(i) * time.Second)
		d := newDocument(repo, domain.DocumentStatusGenerated, created, created)
		require.NoError(t, store.SaveDocument(ctx, d))
		ids = append(ids, d.ID)
	}

	all, err := store.ListDocuments(ctx, ports.DocumentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)

	widgets, err := store.ListDocuments(ctx, ports.DocumentFilter{Repository: "acme/widgets"})
	require.NoError(t, err)
	require.Len(t, widgets, 2)
	assert.Equal(t, ids[2], widgets[0].ID)

	page, err := store.ListDocuments(ctx, ports.DocumentFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	reviewed, err := store.ListDocuments(ctx, ports.DocumentFilter{Status: domain.DocumentStatusReviewed})
	require.NoError(t, err)
	assert.Empty(t, reviewed)
}
