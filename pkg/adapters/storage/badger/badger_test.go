package badger

import (
	"testing"

	"github.com/aescanero/docgen/pkg/adapters/storage/storagetest"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStateStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) ports.StateStore {
		return NewStateStore(newTestDB(t), zap.NewNop())
	})
}

func TestDocumentStore(t *testing.T) {
	storagetest.RunDocuments(t, func(t *testing.T) ports.DocumentStore {
		return NewDocumentStore(newTestDB(t), zap.NewNop())
	})
}

func TestOpenInMemory(t *testing.T) {
	db, err := Open("", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestOpenDirectory(t *testing.T) {
	db, err := Open(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
