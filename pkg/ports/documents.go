package ports

import (
	"context"
	"sort"

	"github.com/aescanero/docgen/pkg/domain"
)

// DocumentFilter narrows ListDocuments results
type DocumentFilter struct {
	Repository string
	Status     domain.DocumentStatus
	Limit      int
	Offset     int
}

// Matches reports whether the document passes the filter
func (f DocumentFilter) Matches(d *domain.Document) bool {
	if f.Repository != "" && d.Repository != f.Repository {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	return true
}

// DocumentStore persists the documents produced by the document workflow.
//
// Backend failures are returned wrapped in domain.ErrStoreUnavailable.
// Missing documents return domain.ErrDocumentNotFound.
type DocumentStore interface {
	// SaveDocument upserts a document, assigning an ID when it has none
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument returns a document by ID
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// LatestDocument returns the most recently updated document of a
	// repository whose status is one of statuses, or any status when none
	// are given
	LatestDocument(ctx context.Context, repository string, statuses ...domain.DocumentStatus) (*domain.Document, error)

	// ListDocuments returns documents, newest created first
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]*domain.Document, error)
}

// SortDocumentsByCreated orders documents newest created first
func SortDocumentsByCreated(docs []*domain.Document) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
}

// PaginateDocuments applies the filter offset and limit to sorted documents
func PaginateDocuments(docs []*domain.Document, f DocumentFilter) []*domain.Document {
	return page(docs, f.Offset, f.Limit)
}

// NewestUpdated returns the most recently updated document of repository
// with one of statuses, or nil
func NewestUpdated(docs []*domain.Document, repository string, statuses ...domain.DocumentStatus) *domain.Document {
	var latest *domain.Document
	for _, d := range docs {
		if d.Repository != repository || !d.HasStatus(statuses...) {
			continue
		}
		if latest == nil || d.UpdatedAt.After(latest.UpdatedAt) ||
			(d.UpdatedAt.Equal(latest.UpdatedAt) && d.ID > latest.ID) {
			latest = d
		}
	}
	return latest
}
