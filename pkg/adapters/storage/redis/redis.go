package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const runIndexKey = "docgen:runs"

// StateStore implements ports.StateStore using Redis
type StateStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewStateStore creates a new Redis state store. A zero ttl keeps records
// forever.
func NewStateStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *StateStore {
	return &StateStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// CreateRun stores a new Pending run and returns its ID
func (s *StateStore) CreateRun(ctx context.Context, workflow string, input map[string]any) (string, error) {
	run := domain.NewRun(uuid.New().String(), workflow, input, time.Now())
	data, err := json.Marshal(run)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, getRunKey(run.ID), data, s.ttl)
		pipe.ZAdd(ctx, runIndexKey, redis.Z{
			Score:  float64(run.CreatedAt.UnixNano()),
			Member: run.ID,
		})
		return nil
	})
	if err != nil {
		return "", domain.NewStoreError("create run", err)
	}

	s.logger.Debug("run created",
		zap.String("run_id", run.ID),
		zap.String("workflow", workflow))

	return run.ID, nil
}

// LoadRun retrieves a run from Redis
func (s *StateStore) LoadRun(ctx context.Context, runID string) (*domain.Run, error) {
	data, err := s.client.Get(ctx, getRunKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
		}
		return nil, domain.NewStoreError("load run", err)
	}

	var run domain.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

// SaveRun overwrites the stored run
func (s *StateStore) SaveRun(ctx context.Context, run *domain.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	if err := s.client.Set(ctx, getRunKey(run.ID), data, s.ttl).Err(); err != nil {
		return domain.NewStoreError("save run", err)
	}

	s.logger.Debug("run saved",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)))

	return nil
}

// AppendNodeExecution pushes a node execution record onto the run history
func (s *StateStore) AppendNodeExecution(ctx context.Context, runID string, exec *domain.NodeExecution) error {
	data, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("failed to marshal node execution: %w", err)
	}

	key := getNodesKey(runID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return domain.NewStoreError("append node execution", err)
	}
	return nil
}

// ListNodeExecutions returns the run history in append order
func (s *StateStore) ListNodeExecutions(ctx context.Context, runID string) ([]*domain.NodeExecution, error) {
	records, err := s.client.LRange(ctx, getNodesKey(runID), 0, -1).Result()
	if err != nil {
		return nil, domain.NewStoreError("list node executions", err)
	}

	execs := make([]*domain.NodeExecution, 0, len(records))
	for _, data := range records {
		var exec domain.NodeExecution
		if err := json.Unmarshal([]byte(data), &exec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node execution: %w", err)
		}
		execs = append(execs, &exec)
	}
	return execs, nil
}

// ListRuns returns summaries of runs matching filter, newest first. Index
// entries whose run has expired are pruned.
func (s *StateStore) ListRuns(ctx context.Context, filter ports.RunFilter) ([]*domain.RunSummary, error) {
	ids, err := s.client.ZRevRange(ctx, runIndexKey, 0, -1).Result()
	if err != nil {
		return nil, domain.NewStoreError("list runs", err)
	}
	if len(ids) == 0 {
		return []*domain.RunSummary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = getRunKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, domain.NewStoreError("list runs", err)
	}

	var expired []any
	summaries := make([]*domain.RunSummary, 0, len(ids))
	for i, value := range values {
		data, ok := value.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var run domain.Run
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			s.logger.Warn("skipping undecodable run",
				zap.String("run_id", ids[i]),
				zap.Error(err))
			continue
		}
		summary := run.Summary()
		if filter.Matches(summary) {
			summaries = append(summaries, summary)
		}
	}

	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, runIndexKey, expired...).Err(); err != nil {
			s.logger.Warn("failed to prune run index", zap.Error(err))
		}
	}

	return ports.Paginate(summaries, filter), nil
}

// SaveArtifact stores the artifact of a run. An artifact is written once.
func (s *StateStore) SaveArtifact(ctx context.Context, artifact *domain.Artifact) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	ok, err := s.client.SetNX(ctx, getArtifactKey(artifact.RunID), data, s.ttl).Result()
	if err != nil {
		return domain.NewStoreError("save artifact", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrArtifactExists, artifact.RunID)
	}
	return nil
}

// LoadArtifact retrieves the artifact of a run
func (s *StateStore) LoadArtifact(ctx context.Context, runID string) (*domain.Artifact, error) {
	data, err := s.client.Get(ctx, getArtifactKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, runID)
		}
		return nil, domain.NewStoreError("load artifact", err)
	}

	var artifact domain.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact: %w", err)
	}
	return &artifact, nil
}

func getRunKey(runID string) string {
	return fmt.Sprintf("docgen:run:%s", runID)
}

func getNodesKey(runID string) string {
	return fmt.Sprintf("docgen:run:%s:nodes", runID)
}

func getArtifactKey(runID string) string {
	return fmt.Sprintf("docgen:artifact:%s", runID)
}
