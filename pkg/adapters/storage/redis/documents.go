package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const documentIndexKey = "docgen:documents"

// DocumentStore implements ports.DocumentStore using Redis. Documents do
// not expire.
//
// Every document is indexed twice: docgen:documents scores IDs by creation
// time and docgen:documents:repo:<name> scores a repository's IDs by update
// time.
type DocumentStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewDocumentStore creates a new Redis document store
func NewDocumentStore(client *redis.Client, logger *zap.Logger) *DocumentStore {
	return &DocumentStore{
		client: client,
		logger: logger,
	}
}

// SaveDocument upserts a document and refreshes both indexes
func (s *DocumentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, getDocumentKey(doc.ID), data, 0)
		pipe.ZAdd(ctx, documentIndexKey, redis.Z{
			Score:  float64(doc.CreatedAt.UnixNano()),
			Member: doc.ID,
		})
		pipe.ZAdd(ctx, getRepositoryIndexKey(doc.Repository), redis.Z{
			Score:  float64(doc.UpdatedAt.UnixNano()),
			Member: doc.ID,
		})
		return nil
	})
	if err != nil {
		return domain.NewStoreError("save document", err)
	}

	s.logger.Debug("document saved",
		zap.String("document_id", doc.ID),
		zap.String("repository", doc.Repository))
	return nil
}

// GetDocument retrieves a document
func (s *DocumentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	data, err := s.client.Get(ctx, getDocumentKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
		}
		return nil, domain.NewStoreError("get document", err)
	}

	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

// LatestDocument walks the repository index from the newest update and
// returns the first document with a matching status
func (s *DocumentStore) LatestDocument(ctx context.Context, repository string, statuses ...domain.DocumentStatus) (*domain.Document, error) {
	ids, err := s.client.ZRevRange(ctx, getRepositoryIndexKey(repository), 0, -1).Result()
	if err != nil {
		return nil, domain.NewStoreError("latest document", err)
	}

	docs, err := s.load(ctx, ids)
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
	ids, err := s.client.ZRevRange(ctx, documentIndexKey, 0, -1).Result()
	if err != nil {
		return nil, domain.NewStoreError("list documents", err)
	}

	docs, err := s.load(ctx, ids)
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

func (s *DocumentStore) load(ctx context.Context, ids []string) ([]*domain.Document, error) {
	if len(ids) == 0 {
		return []*domain.Document{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = getDocumentKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, domain.NewStoreError("load documents", err)
	}

	docs := make([]*domain.Document, 0, len(values))
	for i, value := range values {
		data, ok := value.(string)
		if !ok {
			continue
		}
		var doc domain.Document
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			s.logger.Warn("skipping undecodable document",
				zap.String("document_id", ids[i]),
				zap.Error(err))
			continue
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

func getDocumentKey(id string) string {
	return fmt.Sprintf("docgen:document:%s", id)
}

func getRepositoryIndexKey(repository string) string {
	return fmt.Sprintf("docgen:documents:repo:%s", repository)
}
