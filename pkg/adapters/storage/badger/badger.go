package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/dgraph-io/badger/v3"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	runPrefix      = "run/"
	nodesPrefix    = "nodes/"
	artifactPrefix = "artifact/"

	maxConflictRetries = 3
)

// StateStore implements ports.StateStore on an embedded Badger database
type StateStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open opens or creates a Badger database in dir. An empty dir opens an
// in-memory database.
func Open(dir string, logger *zap.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger.Named("badger").Sugar()}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return db, nil
}

// NewStateStore creates a new Badger state store
func NewStateStore(db *badger.DB, logger *zap.Logger) *StateStore {
	return &StateStore{
		db:     db,
		logger: logger,
	}
}

// CreateRun stores a new Pending run and returns its ID
func (s *StateStore) CreateRun(ctx context.Context, workflow string, input map[string]any) (string, error) {
	run := domain.NewRun(uuid.New().String(), workflow, input, time.Now())
	if err := s.SaveRun(ctx, run); err != nil {
		return "", err
	}
	return run.ID, nil
}

// LoadRun retrieves a run
func (s *StateStore) LoadRun(ctx context.Context, runID string) (*domain.Run, error) {
	var run domain.Run
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, runKey(runID), &run)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
		}
		return nil, domain.NewStoreError("load run", err)
	}
	return &run, nil
}

// SaveRun overwrites the stored run
func (s *StateStore) SaveRun(ctx context.Context, run *domain.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(run.ID), data)
	})
	if err != nil {
		return domain.NewStoreError("save run", err)
	}
	return nil
}

// AppendNodeExecution appends a node execution record to the run history.
// Records are keyed by their position so iteration yields append order.
func (s *StateStore) AppendNodeExecution(ctx context.Context, runID string, exec *domain.NodeExecution) error {
	data, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("failed to marshal node execution: %w", err)
	}

	prefix := nodesKeyPrefix(runID)
	for attempt := 0; ; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			count := 0
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				count++
			}
			it.Close()

			return txn.Set(nodeKey(runID, count), data)
		})
		if !errors.Is(err, badger.ErrConflict) || attempt >= maxConflictRetries {
			break
		}
	}
	if err != nil {
		return domain.NewStoreError("append node execution", err)
	}
	return nil
}

// ListNodeExecutions returns the run history in append order
func (s *StateStore) ListNodeExecutions(ctx context.Context, runID string) ([]*domain.NodeExecution, error) {
	var execs []*domain.NodeExecution
	prefix := nodesKeyPrefix(runID)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var exec domain.NodeExecution
			if err := json.Unmarshal(data, &exec); err != nil {
				return fmt.Errorf("failed to unmarshal node execution: %w", err)
			}
			execs = append(execs, &exec)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStoreError("list node executions", err)
	}
	if execs == nil {
		execs = []*domain.NodeExecution{}
	}
	return execs, nil
}

// ListRuns returns summaries of runs matching filter, newest first
func (s *StateStore) ListRuns(ctx context.Context, filter ports.RunFilter) ([]*domain.RunSummary, error) {
	summaries := []*domain.RunSummary{}
	prefix := []byte(runPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var run domain.Run
			if err := json.Unmarshal(data, &run); err != nil {
				s.logger.Warn("skipping undecodable run",
					zap.ByteString("key", it.Item().KeyCopy(nil)),
					zap.Error(err))
				continue
			}
			summary := run.Summary()
			if filter.Matches(summary) {
				summaries = append(summaries, summary)
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStoreError("list runs", err)
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

	key := artifactKey(artifact.RunID)
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return domain.ErrArtifactExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		if errors.Is(err, domain.ErrArtifactExists) {
			return fmt.Errorf("%w: %s", domain.ErrArtifactExists, artifact.RunID)
		}
		return domain.NewStoreError("save artifact", err)
	}
	return nil
}

// LoadArtifact retrieves the artifact of a run
func (s *StateStore) LoadArtifact(ctx context.Context, runID string) (*domain.Artifact, error) {
	var artifact domain.Artifact
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, artifactKey(runID), &artifact)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, runID)
		}
		return nil, domain.NewStoreError("load artifact", err)
	}
	return &artifact, nil
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func runKey(runID string) []byte {
	return []byte(runPrefix + runID)
}

func nodesKeyPrefix(runID string) []byte {
	return []byte(nodesPrefix + runID + "/")
}

func nodeKey(runID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s/%08d", nodesPrefix, runID, seq))
}

func artifactKey(runID string) []byte {
	return []byte(artifactPrefix + runID)
}

// badgerLogger routes Badger's internal logging through zap
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}

func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warnf(f, v...)
}

func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}

func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
