package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// StateStore implements ports.StateStore in process memory. Values are kept
// encoded so callers never share mutable state with the store.
type StateStore struct {
	mu        sync.RWMutex
	runs      map[string][]byte
	nodes     map[string][][]byte
	artifacts map[string][]byte
}

// NewStateStore creates a new in-memory state store
func NewStateStore() *StateStore {
	return &StateStore{
		runs:      make(map[string][]byte),
		nodes:     make(map[string][][]byte),
		artifacts: make(map[string][]byte),
	}
}

// CreateRun stores a new Pending run and returns its ID
func (s *StateStore) CreateRun(ctx context.Context, workflow string, input map[string]any) (string, error) {
	run := domain.NewRun(uuid.New().String(), workflow, input, time.Now())
	data, err := json.Marshal(run)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = data
	return run.ID, nil
}

// LoadRun retrieves a run
func (s *StateStore) LoadRun(ctx context.Context, runID string) (*domain.Run, error) {
	s.mu.RLock()
	data, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}

	var run domain.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

// SaveRun replaces the stored run
func (s *StateStore) SaveRun(ctx context.Context, run *domain.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = data
	return nil
}

// AppendNodeExecution appends a node execution record to the run history
func (s *StateStore) AppendNodeExecution(ctx context.Context, runID string, exec *domain.NodeExecution) error {
	data, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("failed to marshal node execution: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}
	s.nodes[runID] = append(s.nodes[runID], data)
	return nil
}

// ListNodeExecutions returns the run history in append order
func (s *StateStore) ListNodeExecutions(ctx context.Context, runID string) ([]*domain.NodeExecution, error) {
	s.mu.RLock()
	records := s.nodes[runID]
	s.mu.RUnlock()

	execs := make([]*domain.NodeExecution, 0, len(records))
	for _, data := range records {
		var exec domain.NodeExecution
		if err := json.Unmarshal(data, &exec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node execution: %w", err)
		}
		execs = append(execs, &exec)
	}
	return execs, nil
}

// ListRuns returns summaries of runs matching filter, newest first
func (s *StateStore) ListRuns(ctx context.Context, filter ports.RunFilter) ([]*domain.RunSummary, error) {
	s.mu.RLock()
	encoded := make([][]byte, 0, len(s.runs))
	for _, data := range s.runs {
		encoded = append(encoded, data)
	}
	s.mu.RUnlock()

	summaries := make([]*domain.RunSummary, 0, len(encoded))
	for _, data := range encoded {
		var run domain.Run
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run: %w", err)
		}
		summary := run.Summary()
		if filter.Matches(summary) {
			summaries = append(summaries, summary)
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID > summaries[j].ID
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	return ports.Paginate(summaries, filter), nil
}

// SaveArtifact stores the artifact of a run. An artifact is written once.
func (s *StateStore) SaveArtifact(ctx context.Context, artifact *domain.Artifact) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.artifacts[artifact.RunID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrArtifactExists, artifact.RunID)
	}
	s.artifacts[artifact.RunID] = data
	return nil
}

// LoadArtifact retrieves the artifact of a run
func (s *StateStore) LoadArtifact(ctx context.Context, runID string) (*domain.Artifact, error) {
	s.mu.RLock()
	data, ok := s.artifacts[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, runID)
	}

	var artifact domain.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact: %w", err)
	}
	return &artifact, nil
}
