package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aescanero/docgen/pkg/domain"
	"go.uber.org/zap"
)

// loadData normalises the commit and the previous document of the run
func (n *Nodes) loadData(ctx context.Context, in map[string]any) (map[string]any, error) {
	change := CodeChange{
		Repository:    stringInput(in, KeyRepositoryName),
		CommitSHA:     stringInput(in, KeyCommitSHA),
		CommitMessage: stringInput(in, KeyCommitMessage),
		Author:        stringInput(in, KeyAuthor),
	}
	if change.Repository == "" {
		return nil, domain.NewInvalidInputError(NodeDataLoader, errors.New("repository_name must be a non-empty string"))
	}
	if change.CommitSHA == "" {
		return nil, domain.NewInvalidInputError(NodeDataLoader, errors.New("commit_sha must be a non-empty string"))
	}

	var fileChanges []FileChange
	if _, err := decodeInput(in, KeyFileChanges, &fileChanges); err != nil {
		return nil, domain.NewInvalidInputError(NodeDataLoader, err)
	}

	var existing *ExistingDocument
	var doc ExistingDocument
	ok, err := decodeInput(in, KeyExistingDocument, &doc)
	if err != nil {
		return nil, domain.NewInvalidInputError(NodeDataLoader, err)
	}
	if ok {
		if doc.Title == "" {
			return nil, domain.NewInvalidInputError(NodeDataLoader, errors.New("existing_document requires a title"))
		}
		existing = &doc
	} else {
		existing, err = n.latestDocument(ctx, change.Repository)
		if err != nil {
			return nil, domain.NewTransientError(NodeDataLoader, err)
		}
	}

	changed := make([]string, 0, len(fileChanges))
	var diff strings.Builder
	for _, fc := range fileChanges {
		changed = append(changed, fc.Filename)
		patch := fc.Patch
		if patch == "" {
			patch = "(no patch)"
		}
		fmt.Fprintf(&diff, "\n### %s (%s)\n+%d -%d\n\n%s\n", fc.Filename, fc.Status, fc.Additions, fc.Deletions, patch)
	}

	n.logger.Debug("commit data loaded",
		zap.String("repository", change.Repository),
		zap.String("commit_sha", change.CommitSHA),
		zap.Int("changed_files", len(changed)),
		zap.Bool("existing_document", existing != nil))

	return outputs(
		KeyCodeChange, change,
		KeyDiffContent, diff.String(),
		KeyChangedFiles, changed,
		KeyExistingDocument, existing,
	)
}

// decide chooses between updating the existing document and generating a
// new one from the full repository
func (n *Nodes) decide(ctx context.Context, in map[string]any) (map[string]any, error) {
	repo := stringInput(in, KeyRepositoryName)

	var doc ExistingDocument
	ok, err := decodeInput(in, KeyExistingDocument, &doc)
	if err != nil {
		return nil, domain.NewInvalidInputError(NodeDocumentDecider, err)
	}

	if ok {
		n.logger.Info("updating existing document",
			zap.String("repository", repo),
			zap.String("title", doc.Title))
		return outputs(
			KeyShouldUpdate, true,
			KeyNeedsFullAnalysis, false,
			KeyDocumentTitle, doc.Title,
		)
	}

	n.logger.Info("creating full repository document", zap.String("repository", repo))
	return outputs(
		KeyShouldUpdate, false,
		KeyNeedsFullAnalysis, true,
		KeyDocumentTitle, fmt.Sprintf("%s - Project Documentation", repo),
	)
}

// latestDocument returns the current document of repo, or nil when it has
// none
func (n *Nodes) latestDocument(ctx context.Context, repo string) (*ExistingDocument, error) {
	doc, err := n.docs.LatestDocument(ctx, repo, domain.CurrentDocumentStatuses...)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest document: %w", err)
	}
	return &ExistingDocument{
		ID:      doc.ID,
		Title:   doc.Title,
		Content: doc.Content,
		Summary: doc.Summary,
	}, nil
}

// save writes the generated document to the document store, updating the
// existing one when the run decided so
func (n *Nodes) save(ctx context.Context, in map[string]any) (map[string]any, error) {
	content := stringInput(in, KeyDocumentContent)
	if strings.TrimSpace(content) == "" {
		return nil, domain.NewInvalidInputError(NodeDocumentSaver, errors.New("document content missing before save"))
	}
	title := stringInput(in, KeyDocumentTitle)
	summary := stringInput(in, KeyDocumentSummary)
	now := time.Now().UTC()

	action := "created"
	var doc *domain.Document

	if boolInput(in, KeyShouldUpdate) {
		var existing ExistingDocument
		if _, err := decodeInput(in, KeyExistingDocument, &existing); err != nil {
			return nil, domain.NewInvalidInputError(NodeDocumentSaver, err)
		}
		if existing.ID == "" {
			return nil, domain.NewInvalidInputError(NodeDocumentSaver, errors.New("document ID not found for update"))
		}

		stored, err := n.docs.GetDocument(ctx, existing.ID)
		switch {
		case errors.Is(err, domain.ErrDocumentNotFound):
			// Callers may hand in a document the store has never seen
			stored = n.newDocument(in, existing.Title, now)
			stored.ID = existing.ID
		case err != nil:
			return nil, domain.NewTransientError(NodeDocumentSaver, fmt.Errorf("failed to load document %s: %w", existing.ID, err))
		}
		stored.Content = content
		stored.Summary = summary
		stored.Status = domain.DocumentStatusGenerated
		stored.UpdatedAt = now

		doc = stored
		action = "updated"
	} else {
		if title == "" {
			return nil, domain.NewInvalidInputError(NodeDocumentSaver, errors.New("document title missing before save"))
		}
		doc = n.newDocument(in, title, now)
		doc.Content = content
		doc.Summary = summary
	}

	if err := n.docs.SaveDocument(ctx, doc); err != nil {
		return nil, domain.NewTransientError(NodeDocumentSaver, fmt.Errorf("failed to save document: %w", err))
	}

	n.logger.Info("document saved",
		zap.String("document_id", doc.ID),
		zap.String("repository", doc.Repository),
		zap.String("action", action),
		zap.Int("content_length", len(content)))

	return outputs(
		KeyAction, action,
		KeyDocumentID, doc.ID,
		KeyDocumentStatus, string(doc.Status),
		KeyDocumentType, doc.Type,
	)
}

func (n *Nodes) newDocument(in map[string]any, title string, now time.Time) *domain.Document {
	metadata := map[string]any{}
	if v, ok := in[KeyAnalysisResult]; ok && v != nil {
		metadata[KeyAnalysisResult] = v
	}
	if v, ok := in[KeyChangedFiles]; ok && v != nil {
		metadata[KeyChangedFiles] = v
	}

	return &domain.Document{
		Repository: stringInput(in, KeyRepositoryName),
		Title:      title,
		Status:     domain.DocumentStatusGenerated,
		Type:       "auto",
		CommitSHA:  stringInput(in, KeyCommitSHA),
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
