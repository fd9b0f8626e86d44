package domain

import "time"

// DocumentStatus is the editorial state of a generated document
type DocumentStatus string

const (
	DocumentStatusGenerated DocumentStatus = "generated"
	DocumentStatusEdited    DocumentStatus = "edited"
	DocumentStatusReviewed  DocumentStatus = "reviewed"
	DocumentStatusFailed    DocumentStatus = "failed"
)

// CurrentDocumentStatuses are the statuses a document may have to be picked
// up as the base of the next update
var CurrentDocumentStatuses = []DocumentStatus{
	DocumentStatusGenerated,
	DocumentStatusEdited,
	DocumentStatusReviewed,
}

// Document is the persisted documentation of a repository
type Document struct {
	ID         string         `json:"id"`
	Repository string         `json:"repository_name"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Summary    string         `json:"summary,omitempty"`
	Status     DocumentStatus `json:"status"`
	Type       string         `json:"document_type"`
	CommitSHA  string         `json:"commit_sha"`
	// Metadata records what the generation was based on
	Metadata  map[string]any `json:"generation_metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// HasStatus reports whether the document status is one of statuses. No
// statuses matches every document.
func (d *Document) HasStatus(statuses ...DocumentStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if d.Status == s {
			return true
		}
	}
	return false
}
