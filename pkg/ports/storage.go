package ports

import (
	"context"

	"github.com/aescanero/docgen/pkg/domain"
)

// RunFilter narrows ListRuns results
type RunFilter struct {
	Workflow string
	Status   domain.RunStatus
	Limit    int
	Offset   int
}

// Matches reports whether the run summary passes the filter
func (f RunFilter) Matches(s *domain.RunSummary) bool {
	if f.Workflow != "" && s.Workflow != f.Workflow {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}

// Paginate applies the filter offset and limit to sorted summaries
func Paginate(summaries []*domain.RunSummary, f RunFilter) []*domain.RunSummary {
	return page(summaries, f.Offset, f.Limit)
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// StateStore persists runs, node execution history and artifacts.
//
// Backend failures are returned wrapped in domain.ErrStoreUnavailable.
// Missing records return domain.ErrRunNotFound or domain.ErrArtifactNotFound.
type StateStore interface {
	// CreateRun creates a Pending run and returns its ID
	CreateRun(ctx context.Context, workflow string, input map[string]any) (string, error)

	// LoadRun returns the latest saved copy of a run
	LoadRun(ctx context.Context, runID string) (*domain.Run, error)

	// SaveRun upserts a run. Saving the same run twice is a no-op.
	SaveRun(ctx context.Context, run *domain.Run) error

	// AppendNodeExecution appends a node execution record to the run history
	AppendNodeExecution(ctx context.Context, runID string, exec *domain.NodeExecution) error

	// ListNodeExecutions returns the run history in append order
	ListNodeExecutions(ctx context.Context, runID string) ([]*domain.NodeExecution, error)

	// ListRuns returns run summaries, newest first
	ListRuns(ctx context.Context, filter RunFilter) ([]*domain.RunSummary, error)

	// SaveArtifact stores an artifact. It fails with domain.ErrArtifactExists
	// if the run already has one.
	SaveArtifact(ctx context.Context, artifact *domain.Artifact) error

	// LoadArtifact returns the artifact of a run
	LoadArtifact(ctx context.Context, runID string) (*domain.Artifact, error)
}
