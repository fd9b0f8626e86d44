package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrManagerClosed is returned when runs are started during shutdown
	ErrManagerClosed = errors.New("orchestrator manager is shut down")
	// ErrRunNotSucceeded is returned when the artifact of an unfinished or
	// unsuccessful run is requested
	ErrRunNotSucceeded = errors.New("run has not succeeded")
)

// Manager coordinates run submission, execution and cancellation
type Manager struct {
	registry *Registry
	engine   *Engine
	store    ports.StateStore
	eventBus ports.EventBus
	metrics  ports.MetricsCollector
	logger   *zap.Logger

	// Track active executions
	executions sync.Map // map[string]*executionContext
	wg         sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc
	mu         sync.RWMutex
	closed     bool

	runTimeout time.Duration
}

// executionContext holds state for a single active run
type executionContext struct {
	runID     string
	workflow  string
	startedAt time.Time

	cancel     chan struct{}
	cancelOnce sync.Once
	done       chan struct{}

	artifact *domain.Artifact
	err      error
}

func (e *executionContext) requestCancel() {
	e.cancelOnce.Do(func() { close(e.cancel) })
}

// NewManager creates a new orchestrator manager
func NewManager(
	registry *Registry,
	engine *Engine,
	store ports.StateStore,
	eventBus ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	runTimeout time.Duration,
) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		registry:   registry,
		engine:     engine,
		store:      store,
		eventBus:   eventBus,
		metrics:    metrics,
		logger:     logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		runTimeout: runTimeout,
	}
}

// StartRun creates a run of the named workflow and executes it in the
// background. The returned summary reflects the run as submitted.
func (m *Manager) StartRun(ctx context.Context, workflow string, input map[string]any) (*domain.RunSummary, error) {
	run, _, err := m.start(ctx, workflow, input)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Execute creates a run and waits for it to reach a terminal status. If ctx
// is done first the run is cancelled and still awaited.
func (m *Manager) Execute(ctx context.Context, workflow string, input map[string]any) (*domain.Run, *domain.Artifact, error) {
	summary, ec, err := m.start(ctx, workflow, input)
	if err != nil {
		return nil, nil, err
	}

	select {
	case <-ec.done:
	case <-ctx.Done():
		ec.requestCancel()
		<-ec.done
	}

	run, err := m.store.LoadRun(context.WithoutCancel(ctx), summary.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load run: %w", err)
	}
	return run, ec.artifact, ec.err
}

func (m *Manager) start(ctx context.Context, workflow string, input map[string]any) (*domain.RunSummary, *executionContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, nil, ErrManagerClosed
	}

	def, err := m.registry.Get(workflow)
	if err != nil {
		return nil, nil, domain.NewConfigurationError("start run", err)
	}

	var missing []string
	for _, key := range def.InitialKeys {
		if _, ok := input[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, nil, domain.NewConfigurationError("start run",
			fmt.Errorf("missing initial keys for %s: %s", workflow, strings.Join(missing, ", ")))
	}

	runID, err := m.store.CreateRun(ctx, workflow, input)
	if err != nil {
		m.logger.Error("failed to create run",
			zap.String("workflow", workflow),
			zap.Error(err))
		return nil, nil, fmt.Errorf("failed to create run: %w", err)
	}

	run, err := m.store.LoadRun(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load run: %w", err)
	}
	summary := run.Summary()

	m.publish(ctx, domain.EventTypeRunSubmitted, run, map[string]any{"input_keys": inputKeys(input)})
	m.metrics.RecordRunSubmitted(workflow)

	ec := &executionContext{
		runID:     runID,
		workflow:  workflow,
		startedAt: time.Now(),
		cancel:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	m.executions.Store(runID, ec)
	m.metrics.SetActiveRuns(m.ActiveRuns())
	m.wg.Add(1)

	m.logger.Info("run submitted",
		zap.String("run_id", runID),
		zap.String("workflow", workflow))

	go m.execute(def, run, ec)

	return summary, ec, nil
}

func inputKeys(input map[string]any) []string {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Manager) execute(def *domain.WorkflowDefinition, run *domain.Run, ec *executionContext) {
	defer m.wg.Done()

	ctx := m.baseCtx
	if m.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.runTimeout)
		defer cancel()
	}

	ec.artifact, ec.err = m.engine.Execute(ctx, def, run, ec.cancel)
	if ec.err != nil {
		m.logger.Error("run execution error",
			zap.String("run_id", ec.runID),
			zap.Error(ec.err))
	}

	m.executions.Delete(ec.runID)
	m.metrics.SetActiveRuns(m.ActiveRuns())
	close(ec.done)
}

// Cancel requests cancellation of a run. Active runs stop dispatching and
// finish as Cancelled once in-flight attempts return. A non-terminal run
// with no active execution, left over from a previous process, is
// cancelled directly in the store.
func (m *Manager) Cancel(ctx context.Context, runID string) error {
	if val, ok := m.executions.Load(runID); ok {
		ec := val.(*executionContext)
		ec.requestCancel()
		m.logger.Info("run cancellation requested", zap.String("run_id", runID))
		return nil
	}

	run, err := m.store.LoadRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}
	if run.Status.IsTerminal() {
		return fmt.Errorf("failed to cancel run %s: %w (status %s)", runID, domain.ErrRunTerminal, run.Status)
	}

	now := time.Now()
	for _, nodeID := range m.orphanNodes(run) {
		exec := run.Nodes[nodeID]
		var err error
		switch exec.Status {
		case domain.NodeStatusNotStarted:
			err = skipNode(exec, "run cancelled", now)
		case domain.NodeStatusRunning, domain.NodeStatusFailedRetryable:
			err = abandonRetry(exec, now)
		default:
			continue
		}
		if err != nil {
			m.logger.Error("failed to finalise node of orphaned run",
				zap.String("run_id", runID),
				zap.String("node_id", nodeID),
				zap.Error(err))
			continue
		}
		if err := m.store.AppendNodeExecution(ctx, runID, exec.Clone()); err != nil {
			return fmt.Errorf("failed to record node %s: %w", nodeID, err)
		}
	}
	if err := transitionRun(run, domain.RunStatusCancelled, now); err != nil {
		return err
	}
	if err := m.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	m.publish(ctx, domain.EventTypeRunCancelled, run, map[string]any{"status": string(run.Status)})
	m.logger.Info("orphaned run cancelled", zap.String("run_id", runID))
	return nil
}

// orphanNodes lists the nodes of a run to finalise, in declaration order
// when the workflow is still registered. Nodes never reached get a fresh
// entry.
func (m *Manager) orphanNodes(run *domain.Run) []string {
	if run.Nodes == nil {
		run.Nodes = make(map[string]*domain.NodeExecution)
	}

	var ids []string
	seen := make(map[string]bool)
	if def, err := m.registry.Get(run.Workflow); err == nil {
		for _, spec := range def.Nodes {
			if _, ok := run.Nodes[spec.ID]; !ok {
				run.Nodes[spec.ID] = domain.NewNodeExecution(spec.ID)
			}
			ids = append(ids, spec.ID)
			seen[spec.ID] = true
		}
	}

	var rest []string
	for id := range run.Nodes {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

// GetRun returns the full persisted state of a run
func (m *Manager) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := m.store.LoadRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetRunStatus returns the summary of a run
func (m *Manager) GetRunStatus(ctx context.Context, runID string) (*domain.RunSummary, error) {
	run, err := m.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run.Summary(), nil
}

// GetArtifact returns the artifact of a succeeded run
func (m *Manager) GetArtifact(ctx context.Context, runID string) (*domain.Artifact, error) {
	run, err := m.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunStatusSucceeded {
		return nil, fmt.Errorf("%w: run %s is %s", ErrRunNotSucceeded, runID, run.Status)
	}

	artifact, err := m.store.LoadArtifact(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return artifact, nil
}

// ListRuns returns run summaries matching filter, newest first
func (m *Manager) ListRuns(ctx context.Context, filter ports.RunFilter) ([]*domain.RunSummary, error) {
	runs, err := m.store.ListRuns(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// NodeHistory returns the node execution records of a run in the order they
// reached a terminal status
func (m *Manager) NodeHistory(ctx context.Context, runID string) ([]*domain.NodeExecution, error) {
	if _, err := m.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	history, err := m.store.ListNodeExecutions(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list node executions: %w", err)
	}
	return history, nil
}

// Workflows describes every registered workflow
func (m *Manager) Workflows() []domain.WorkflowInfo {
	defs := m.registry.List()
	infos := make([]domain.WorkflowInfo, 0, len(defs))
	for _, def := range defs {
		infos = append(infos, def.Describe())
	}
	return infos
}

// ActiveRuns returns the number of runs currently executing
func (m *Manager) ActiveRuns() int {
	count := 0
	m.executions.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (m *Manager) publish(ctx context.Context, eventType domain.EventType, run *domain.Run, data map[string]any) {
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     run.ID,
		Workflow:  run.Workflow,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := m.eventBus.Publish(ctx, domain.TopicRunEvents, event); err != nil {
		m.logger.Warn("failed to publish event",
			zap.String("run_id", run.ID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

// Shutdown stops accepting runs, cancels active ones and waits for them to
// finish or for ctx to expire
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestrator manager")

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.executions.Range(func(_, value any) bool {
		value.(*executionContext).requestCancel()
		return true
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.baseCancel()
		m.logger.Info("orchestrator manager shut down complete")
		return nil
	case <-ctx.Done():
		m.baseCancel()
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}
