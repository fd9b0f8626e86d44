package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// DocumentStore implements ports.DocumentStore in process memory
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewDocumentStore creates a new in-memory document store
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string][]byte)}
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

	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[doc.ID] = data
	return nil
}

// GetDocument retrieves a document
func (s *DocumentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	data, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}

	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

// LatestDocument returns the most recently updated matching document
func (s *DocumentStore) LatestDocument(ctx context.Context, repository string, statuses ...domain.DocumentStatus) (*domain.Document, error) {
	docs, err := s.all()
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
	docs, err := s.all()
	if err != nil {
		return nil, err
	}

	matched := make([]*domain.Document, 0, len(docs))
	for _, d := range docs {
		if filter.Matches(d) {
			matched = append(matched, d)
		}
	}
	ports.SortDocumentsByCreated(matched)
	return ports.PaginateDocuments(matched, filter), nil
}

func (s *DocumentStore) all() ([]*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*domain.Document, 0, len(s.docs))
	for _, data := range s.docs {
		var doc domain.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}
