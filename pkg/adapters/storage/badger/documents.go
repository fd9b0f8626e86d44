package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/dgraph-io/badger/v3"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const documentPrefix = "document/"

// DocumentStore implements ports.DocumentStore on an embedded Badger
// database. It may share the database of a StateStore.
type DocumentStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// NewDocumentStore creates a new Badger document store
func NewDocumentStore(db *badger.DB, logger *zap.Logger) *DocumentStore {
	return &DocumentStore{
		db:     db,
		logger: logger,
	}
}

// SaveDocument upserts a document
func (s *DocumentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(documentKey(doc.ID), data)
	})
	if err != nil {
		return domain.NewStoreError("save document", err)
	}
	return nil
}

// GetDocument retrieves a document
func (s *DocumentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	var doc domain.Document
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, documentKey(id), &doc)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
		}
		return nil, domain.NewStoreError("get document", err)
	}
	return &doc, nil
}

// LatestDocument returns the most recently updated matching document
func (s *DocumentStore) LatestDocument(ctx context.Context, repository string, statuses ...domain.DocumentStatus) (*domain.Document, error) {
	docs, err := s.scan(ports.DocumentFilter{Repository: repository})
	if err != nil {
		return nil, err
	}
	latest := ports.NewestUpdated(docs, repository, statuses...)
	if latest == nil {
		return nil, fmt.Errorf("%w: repository %s", domain.ErrDocumentNotFound, repository)
	}
	return latest, nil
}

// ListDocuments returns documents matching filter, newest first
func (s *DocumentStore) ListDocuments(ctx context.Context, filter ports.DocumentFilter) ([]*domain.Document, error) {
	docs, err := s.scan(filter)
	if err != nil {
		return nil, err
	}
	ports.SortDocumentsByCreated(docs)
	return ports.PaginateDocuments(docs, filter), nil
}

func (s *DocumentStore) scan(filter ports.DocumentFilter) ([]*domain.Document, error) {
	docs := []*domain.Document{}
	prefix := []byte(documentPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var doc domain.Document
			if err := json.Unmarshal(data, &doc); err != nil {
				s.logger.Warn("skipping undecodable document",
					zap.ByteString("key", it.Item().KeyCopy(nil)),
					zap.Error(err))
				continue
			}
			if filter.Matches(&doc) {
				docs = append(docs, &doc)
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStoreError("list documents", err)
	}
	return docs, nil
}

func documentKey(id string) []byte {
	return []byte(documentPrefix + id)
}
