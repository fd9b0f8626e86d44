package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aescanero/docgen/internal/application/workers"
	eventsmemory "github.com/aescanero/docgen/pkg/adapters/events/memory"
	promcollector "github.com/aescanero/docgen/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/docgen/pkg/adapters/storage/memory"
	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	store  ports.StateStore
	bus    *eventsmemory.EventBus
	pool   *workers.Pool
	engine *Engine

	mu     sync.Mutex
	events []domain.Event
}

func newHarness(t *testing.T, poolSize int) *harness {
	return newHarnessWithStore(t, poolSize, memory.NewStateStore())
}

func newHarnessWithStore(t *testing.T, poolSize int, store ports.StateStore) *harness {
	t.Helper()

	h := &harness{
		store: store,
		bus:   eventsmemory.NewEventBus(zap.NewNop()),
		pool:  workers.NewPool(poolSize, nil, zap.NewNop(), 0),
	}
	require.NoError(t, h.pool.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.pool.Shutdown(ctx)
	})

	require.NoError(t, h.bus.Subscribe(context.Background(), domain.TopicRunEvents, func(ctx context.Context, e domain.Event) error {
		h.mu.Lock()
		h.events = append(h.events, e)
		h.mu.Unlock()
		return nil
	}))

	metrics := promcollector.NewCollectorWith(prometheus.NewRegistry())
	h.engine = NewEngine(h.store, h.pool, h.bus, metrics, NewAssembler(zap.NewNop()), zap.NewNop(), 0)
	return h
}

// immediateRetries makes retry timers fire at once and records their delays
func (h *harness) immediateRetries() *[]time.Duration {
	var delays []time.Duration
	h.engine.after = func(d time.Duration) <-chan time.Time {
		delays = append(delays, d)
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	return &delays
}

func (h *harness) newRun(t *testing.T, def *domain.WorkflowDefinition, input map[string]any) *domain.Run {
	t.Helper()
	require.NoError(t, NewValidator().Validate(def))

	ctx := context.Background()
	id, err := h.store.CreateRun(ctx, def.Name, input)
	require.NoError(t, err)
	run, err := h.store.LoadRun(ctx, id)
	require.NoError(t, err)
	return run
}

func (h *harness) execute(t *testing.T, def *domain.WorkflowDefinition, input map[string]any) (*domain.Run, *domain.Artifact, error) {
	t.Helper()
	run := h.newRun(t, def, input)
	artifact, err := h.engine.Execute(context.Background(), def, run, nil)
	return run, artifact, err
}

func (h *harness) eventTypes(runID string) []domain.EventType {
	h.mu.Lock()
	defer h.mu.Unlock()

	var types []domain.EventType
	for _, e := range h.events {
		if e.RunID == runID {
			types = append(types, e.Type)
		}
	}
	return types
}

func transientFailure(op string) error {
	return domain.NewTransientError(op, errors.New("rate limited"))
}

func TestEngineLinearWorkflow(t *testing.T) {
	h := newHarness(t, 2)
	def := &domain.WorkflowDefinition{
		Name:         "linear",
		InitialKeys:  []string{"seed"},
		ArtifactKeys: []string{"x", "y", "z"},
		Nodes: []domain.NodeSpec{
			{ID: "a", Inputs: []string{"seed"}, Outputs: []string{"x"}, Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				return map[string]any{"x": in["seed"].(string) + "-a"}, nil
			}},
			{ID: "b", DependsOn: []string{"a"}, Inputs: []string{"x"}, Outputs: []string{"y"}, Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				return map[string]any{"y": in["x"].(string) + "-b"}, nil
			}},
			{ID: "c", DependsOn: []string{"b"}, Inputs: []string{"y"}, Outputs: []string{"z"}, Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				return map[string]any{"z": in["y"].(string) + "-c"}, nil
			}},
		},
	}

	run, artifact, err := h.execute(t, def, map[string]any{"seed": "s"})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSucceeded, run.Status)
	require.NotNil(t, artifact)
	assert.Equal(t, map[string]any{"x": "s-a", "y": "s-a-b", "z": "s-a-b-c"}, artifact.Content)

	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, domain.NodeStatusSucceeded, run.Nodes[id].Status, id)
		assert.Equal(t, 1, run.Nodes[id].AttemptCount, id)
	}
	assert.False(t, run.Nodes["b"].StartedAt.Before(*run.Nodes["a"].CompletedAt))
	assert.False(t, run.Nodes["c"].StartedAt.Before(*run.Nodes["b"].CompletedAt))

	history, err := h.store.ListNodeExecutions(context.Background(), run.ID)
	require.NoError(t, err)
	var order []string
	for _, exec := range history {
		order = append(order, exec.NodeID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, order)

	stored, err := h.store.LoadRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, stored.Status)
	assert.Equal(t, "s-a-b-c", stored.State["z"])

	saved, err := h.store.LoadArtifact(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, artifact.Content, saved.Content)

	types := h.eventTypes(run.ID)
	require.NotEmpty(t, types)
	assert.Equal(t, domain.EventTypeRunStarted, types[0])
	assert.Equal(t, domain.EventTypeRunSucceeded, types[len(types)-1])
}

func TestEngineRetriesTransientFailures(t *testing.T) {
	h := newHarness(t, 1)
	delays := h.immediateRetries()

	var calls atomic.Int32
	def := &domain.WorkflowDefinition{
		Name: "flaky",
		Nodes: []domain.NodeSpec{{
			ID:      "a",
			Outputs: []string{"x"},
			Policy:  domain.NodePolicy{MaxRetries: 3, BackoffBase: 10 * time.Millisecond, MaxBackoff: time.Second},
			Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				if calls.Add(1) <= 2 {
					return nil, transientFailure("a")
				}
				return map[string]any{"x": 1}, nil
			},
		}},
	}

	run, artifact, err := h.execute(t, def, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSucceeded, run.Status)
	require.NotNil(t, artifact)
	exec := run.Nodes["a"]
	assert.Equal(t, domain.NodeStatusSucceeded, exec.Status)
	assert.Equal(t, 3, exec.AttemptCount)
	require.Len(t, exec.Attempts, 3)
	assert.Equal(t, domain.ErrorClassTransient, exec.Attempts[0].Class)
	assert.Empty(t, exec.Attempts[2].Error)
	assert.Nil(t, exec.LastError)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *delays)

	assert.Contains(t, h.eventTypes(run.ID), domain.EventTypeNodeRetrying)
}

func TestEngineRetriesExhausted(t *testing.T) {
	h := newHarness(t, 1)
	h.immediateRetries()

	var calls atomic.Int32
	def := &domain.WorkflowDefinition{
		Name: "exhausted",
		Nodes: []domain.NodeSpec{
			{
				ID:      "a",
				Outputs: []string{"x"},
				Policy:  domain.NodePolicy{MaxRetries: 2, BackoffBase: time.Millisecond},
				Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
					calls.Add(1)
					return nil, transientFailure("a")
				},
			},
			{ID: "b", DependsOn: []string{"a"}, Inputs: []string{"x"}, Run: noop},
		},
	}

	run, artifact, err := h.execute(t, def, nil)
	require.NoError(t, err)
	assert.Nil(t, artifact)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, domain.NodeStatusFailed, run.Nodes["a"].Status)
	assert.Equal(t, 3, run.Nodes["a"].AttemptCount)
	assert.Equal(t, domain.NodeStatusSkipped, run.Nodes["b"].Status)
	assert.Contains(t, run.Nodes["b"].SkipReason, "a")

	require.NotNil(t, run.Failure)
	assert.Equal(t, "a", run.Failure.NodeID)
	assert.Equal(t, domain.ErrorClassTransient, run.Failure.Class)
	assert.Equal(t, 3, run.Failure.Attempts)

	_, err = h.store.LoadArtifact(context.Background(), run.ID)
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
}

func TestEngineFatalErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class domain.ErrorClass
	}{
		{name: "invalid input", err: domain.NewInvalidInputError("a", errors.New("bad diff")), class: domain.ErrorClassInvalidInput},
		{name: "invalid output", err: domain.NewInvalidOutputError("a", errors.New("bad json")), class: domain.ErrorClassInvalidOutput},
		{name: "configuration", err: domain.NewConfigurationError("a", errors.New("no model")), class: domain.ErrorClassConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 1)
			var calls atomic.Int32
			def := &domain.WorkflowDefinition{
				Name: "fatal",
				Nodes: []domain.NodeSpec{{
					ID:     "a",
					Policy: domain.NodePolicy{MaxRetries: 3},
					Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
						calls.Add(1)
						return nil, tt.err
					},
				}},
			}

			run, _, err := h.execute(t, def, nil)
			require.NoError(t, err)

			assert.Equal(t, int32(1), calls.Load())
			assert.Equal(t, domain.RunStatusFailed, run.Status)
			assert.Equal(t, 1, run.Nodes["a"].AttemptCount)
			require.NotNil(t, run.Failure)
			assert.Equal(t, tt.class, run.Failure.Class)
		})
	}
}

func TestEngineConditionalBranches(t *testing.T) {
	h := newHarness(t, 2)
	def := &domain.WorkflowDefinition{
		Name: "branches",
		Nodes: []domain.NodeSpec{
			{ID: "decide", Outputs: []string{"go"}, Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				return map[string]any{"go": false}, nil
			}},
			{
				ID: "yes", DependsOn: []string{"decide"}, Inputs: []string{"go"}, Outputs: []string{"yes_out"},
				Optional:  true,
				Condition: func(in map[string]any) bool { return in["go"] == true },
				Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
					return map[string]any{"yes_out": "yes"}, nil
				},
			},
			{
				ID: "no", DependsOn: []string{"decide"}, Inputs: []string{"go"}, Outputs: []string{"no_out"},
				Optional:  true,
				Condition: func(in map[string]any) bool { return in["go"] == false },
				Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
					return map[string]any{"no_out": "no"}, nil
				},
			},
			{
				ID: "join", DependsOn: []string{"yes", "no"}, OptionalInputs: []string{"yes_out", "no_out"}, Outputs: []string{"result"},
				Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
					if v, ok := in["yes_out"]; ok {
						return map[string]any{"result": v}, nil
					}
					return map[string]any{"result": in["no_out"]}, nil
				},
			},
		},
		ArtifactKeys: []string{"result"},
	}

	run, artifact, err := h.execute(t, def, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSucceeded, run.Status)
	assert.Equal(t, domain.NodeStatusSkipped, run.Nodes["yes"].Status)
	assert.Equal(t, "condition not met", run.Nodes["yes"].SkipReason)
	assert.Zero(t, run.Nodes["yes"].AttemptCount)
	assert.Equal(t, domain.NodeStatusSucceeded, run.Nodes["no"].Status)
	assert.Equal(t, domain.NodeStatusSucceeded, run.Nodes["join"].Status)
	require.NotNil(t, artifact)
	assert.Equal(t, map[string]any{"result": "no"}, artifact.Content)
}

func TestEngineSkipPropagatesThroughRequiredNodes(t *testing.T) {
	h := newHarness(t, 1)
	def := &domain.WorkflowDefinition{
		Name: "skips",
		Nodes: []domain.NodeSpec{
			{ID: "a", Condition: func(map[string]any) bool { return false }, Run: noop},
			{ID: "b", DependsOn: []string{"a"}, Run: noop},
			{ID: "c", DependsOn: []string{"b"}, Run: noop},
		},
	}

	run, _, err := h.execute(t, def, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSucceeded, run.Status)
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, domain.NodeStatusSkipped, run.Nodes[id].Status, id)
	}
	assert.Equal(t, "dependency b did not succeed", run.Nodes["c"].SkipReason)
}

func TestEngineBoundsInFlightNodes(t *testing.T) {
	h := newHarness(t, 4)

	var running, peak atomic.Int32
	work := func(ctx context.Context, in map[string]any) (map[string]any, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		running.Add(-1)
		return map[string]any{}, nil
	}

	def := &domain.WorkflowDefinition{Name: "wide", MaxInFlight: 2}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		def.Nodes = append(def.Nodes, domain.NodeSpec{ID: id, Run: work})
	}

	run, _, err := h.execute(t, def, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSucceeded, run.Status)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestEngineNodeTimeoutIsTransient(t *testing.T) {
	h := newHarness(t, 1)
	def := &domain.WorkflowDefinition{
		Name: "slow",
		Nodes: []domain.NodeSpec{{
			ID:      "a",
			Outputs: []string{"x"},
			Policy:  domain.NodePolicy{Timeout: 20 * time.Millisecond},
			Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				time.Sleep(200 * time.Millisecond)
				return map[string]any{"x": 1}, nil
			},
		}},
	}

	run, _, err := h.execute(t, def, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusFailed, run.Status)
	require.NotNil(t, run.Nodes["a"].LastError)
	assert.Equal(t, domain.ErrorClassTransient, run.Nodes["a"].LastError.Class)
	assert.Contains(t, run.Nodes["a"].LastError.Message, "timed out")
}

func TestEngineRejectsUndeclaredOutputs(t *testing.T) {
	h := newHarness(t, 1)
	def := &domain.WorkflowDefinition{
		Name: "leaky",
		Nodes: []domain.NodeSpec{{
			ID:      "a",
			Outputs: []string{"x"},
			Policy:  domain.NodePolicy{MaxRetries: 2},
			Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				return map[string]any{"x": 1, "extra": 2}, nil
			},
		}},
	}

	run, _, err := h.execute(t, def, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, 1, run.Nodes["a"].AttemptCount)
	assert.Equal(t, domain.ErrorClassInvalidOutput, run.Failure.Class)
	assert.Contains(t, run.Failure.Message, "undeclared output keys: extra")
	assert.NotContains(t, run.State, "extra")
}

func TestEngineMissingInputAtRuntimeIsConfigurationError(t *testing.T) {
	h := newHarness(t, 1)
	var calls atomic.Int32
	def := &domain.WorkflowDefinition{
		Name: "missing",
		Nodes: []domain.NodeSpec{
			{ID: "a", Outputs: []string{"x"}, Optional: true, Condition: func(map[string]any) bool { return false }, Run: noop},
			{ID: "b", DependsOn: []string{"a"}, Inputs: []string{"x"}, Policy: domain.NodePolicy{MaxRetries: 3},
				Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
					calls.Add(1)
					return map[string]any{}, nil
				}},
		},
	}

	run, _, err := h.execute(t, def, nil)
	require.NoError(t, err)

	assert.Zero(t, calls.Load())
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, domain.NodeStatusFailed, run.Nodes["b"].Status)
	assert.Equal(t, 1, run.Nodes["b"].AttemptCount)
	require.NotNil(t, run.Failure)
	assert.Equal(t, "b", run.Failure.NodeID)
	assert.Equal(t, domain.ErrorClassConfiguration, run.Failure.Class)
	assert.Contains(t, run.Failure.Message, "missing required inputs: x")
}

func TestEnginePanicIsUnclassifiedAndRetried(t *testing.T) {
	h := newHarness(t, 1)
	h.immediateRetries()

	var calls atomic.Int32
	def := &domain.WorkflowDefinition{
		Name: "panics",
		Nodes: []domain.NodeSpec{{
			ID:     "a",
			Policy: domain.NodePolicy{MaxRetries: 1},
			Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				calls.Add(1)
				panic("boom")
			},
		}},
	}

	run, _, err := h.execute(t, def, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, domain.ErrorClassUnclassified, run.Failure.Class)
	assert.Contains(t, run.Failure.Message, "panicked")
}

func TestEngineCancelStopsDispatch(t *testing.T) {
	h := newHarness(t, 2)

	started := make(chan struct{})
	release := make(chan struct{})
	def := &domain.WorkflowDefinition{
		Name: "cancel",
		Nodes: []domain.NodeSpec{
			{ID: "a", Outputs: []string{"x"}, Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				close(started)
				<-release
				return map[string]any{"x": 1}, nil
			}},
			{ID: "b", DependsOn: []string{"a"}, Inputs: []string{"x"}, Run: noop},
		},
	}
	run := h.newRun(t, def, nil)
	cancel := make(chan struct{})

	done := make(chan error, 1)
	var artifact *domain.Artifact
	go func() {
		var err error
		artifact, err = h.engine.Execute(context.Background(), def, run, cancel)
		done <- err
	}()

	<-started
	close(cancel)
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}

	assert.Nil(t, artifact)
	assert.Equal(t, domain.RunStatusCancelled, run.Status)
	assert.Equal(t, domain.NodeStatusSucceeded, run.Nodes["a"].Status)
	assert.Equal(t, domain.NodeStatusSkipped, run.Nodes["b"].Status)
	assert.Zero(t, run.Nodes["b"].AttemptCount)
	assert.Nil(t, run.Failure)

	types := h.eventTypes(run.ID)
	assert.Equal(t, domain.EventTypeRunCancelled, types[len(types)-1])
}

func TestEngineCancelAbandonsPendingRetry(t *testing.T) {
	h := newHarness(t, 1)

	scheduled := make(chan struct{}, 1)
	h.engine.after = func(time.Duration) <-chan time.Time {
		scheduled <- struct{}{}
		return make(chan time.Time)
	}

	def := &domain.WorkflowDefinition{
		Name: "pending",
		Nodes: []domain.NodeSpec{{
			ID:     "a",
			Policy: domain.NodePolicy{MaxRetries: 5, BackoffBase: time.Hour},
			Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				return nil, transientFailure("a")
			},
		}},
	}
	run := h.newRun(t, def, nil)
	cancel := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.engine.Execute(context.Background(), def, run, cancel)
		done <- err
	}()

	<-scheduled
	close(cancel)
	require.NoError(t, <-done)

	assert.Equal(t, domain.RunStatusCancelled, run.Status)
	assert.Equal(t, domain.NodeStatusFailed, run.Nodes["a"].Status)
	assert.Equal(t, 1, run.Nodes["a"].AttemptCount)
}

func TestEngineRunTimeoutFailsRun(t *testing.T) {
	h := newHarness(t, 1)
	def := &domain.WorkflowDefinition{
		Name: "deadline",
		Nodes: []domain.NodeSpec{
			{ID: "a", Outputs: []string{"x"}, Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				time.Sleep(100 * time.Millisecond)
				return map[string]any{"x": 1}, nil
			}},
			{ID: "b", DependsOn: []string{"a"}, Inputs: []string{"x"}, Run: noop},
		},
	}
	run := h.newRun(t, def, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.engine.Execute(ctx, def, run, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, domain.NodeStatusSucceeded, run.Nodes["a"].Status)
	assert.Equal(t, domain.NodeStatusSkipped, run.Nodes["b"].Status)
	require.NotNil(t, run.Failure)
	assert.Equal(t, "run timed out", run.Failure.Message)

	stored, err := h.store.LoadRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, stored.Status)
}

func TestEngineMergeIsDeterministic(t *testing.T) {
	diamond := func(leftDelay, rightDelay time.Duration) *domain.WorkflowDefinition {
		sleepy := func(d time.Duration, out map[string]any) domain.NodeFunc {
			return func(ctx context.Context, in map[string]any) (map[string]any, error) {
				time.Sleep(d)
				return out, nil
			}
		}
		return &domain.WorkflowDefinition{
			Name: "diamond",
			Nodes: []domain.NodeSpec{
				{ID: "root", Outputs: []string{"base"}, Run: sleepy(0, map[string]any{"base": 1})},
				{ID: "left", DependsOn: []string{"root"}, Outputs: []string{"shared", "l"},
					Run: sleepy(leftDelay, map[string]any{"shared": "left", "l": true})},
				{ID: "right", DependsOn: []string{"root"}, Outputs: []string{"shared", "r"},
					Run: sleepy(rightDelay, map[string]any{"shared": "right", "r": true})},
				{ID: "join", DependsOn: []string{"left", "right"}, Inputs: []string{"shared"}, Outputs: []string{"seen"},
					Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
						return map[string]any{"seen": in["shared"]}, nil
					}},
			},
		}
	}

	h := newHarness(t, 2)
	_, first, err := h.execute(t, diamond(30*time.Millisecond, 0), nil)
	require.NoError(t, err)
	_, second, err := h.execute(t, diamond(0, 30*time.Millisecond), nil)
	require.NoError(t, err)

	require.NotNil(t, first)
	require.NotNil(t, second)
	if diff := cmp.Diff(first.Content, second.Content); diff != "" {
		t.Errorf("artifact depends on completion order (-first +second):\n%s", diff)
	}
	assert.Equal(t, "right", first.Content["shared"])
	assert.Equal(t, "right", first.Content["seen"])
}

type failingAppendStore struct {
	*memory.StateStore
}

func (s *failingAppendStore) AppendNodeExecution(ctx context.Context, runID string, exec *domain.NodeExecution) error {
	return domain.NewStoreError("append node execution", errors.New("connection refused"))
}

func TestEngineStoreFailureFailsRun(t *testing.T) {
	h := newHarnessWithStore(t, 1, &failingAppendStore{StateStore: memory.NewStateStore()})
	def := &domain.WorkflowDefinition{
		Name:  "store",
		Nodes: []domain.NodeSpec{node("a"), node("b", "a")},
	}

	run, artifact, err := h.execute(t, def, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Nil(t, artifact)

	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, domain.NodeStatusSkipped, run.Nodes["b"].Status)
	require.NotNil(t, run.Failure)
	assert.Contains(t, run.Failure.Message, "connection refused")
}

func TestEngineRejectsStartedRun(t *testing.T) {
	h := newHarness(t, 1)
	def := &domain.WorkflowDefinition{Name: "once", Nodes: []domain.NodeSpec{node("a")}}

	run, _, err := h.execute(t, def, nil)
	require.NoError(t, err)

	_, err = h.engine.Execute(context.Background(), def, run, nil)
	assert.ErrorIs(t, err, domain.ErrRunTerminal)
}

func TestEngineKeepsSucceededOutputsIntact(t *testing.T) {
	h := newHarness(t, 1)
	def := &domain.WorkflowDefinition{
		Name: "typed",
		Nodes: []domain.NodeSpec{
			{ID: "fetch", Outputs: []string{"meta"}, Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				return map[string]any{"meta": map[string]string{"source": "fetch"}}, nil
			}},
			{ID: "format", DependsOn: []string{"fetch"}, Outputs: []string{"meta"}, Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				return map[string]any{"meta": map[string]string{"source": "format"}}, nil
			}},
		},
	}

	run, artifact, err := h.execute(t, def, nil)
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.Equal(t, map[string]any{"source": "format"}, artifact.Content["meta"])
	assert.Equal(t, map[string]any{"source": "fetch"}, run.Nodes["fetch"].Output["meta"])

	stored, err := h.store.LoadRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"source": "fetch"}, stored.Nodes["fetch"].Output["meta"])
	assert.Equal(t, map[string]any{"source": "format"}, stored.Nodes["format"].Output["meta"])
}

func TestEngineRejectsUnencodableOutput(t *testing.T) {
	h := newHarness(t, 1)
	def := &domain.WorkflowDefinition{
		Name: "unencodable",
		Nodes: []domain.NodeSpec{{
			ID:      "a",
			Outputs: []string{"x"},
			Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				return map[string]any{"x": make(chan int)}, nil
			},
		}},
	}

	run, _, err := h.execute(t, def, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, domain.ErrorClassInvalidOutput, run.Failure.Class)
}

func TestEngineCancelBeforeFirstDispatch(t *testing.T) {
	h := newHarness(t, 2)

	var calls atomic.Int32
	counted := func(ctx context.Context, in map[string]any) (map[string]any, error) {
		calls.Add(1)
		return map[string]any{}, nil
	}
	def := &domain.WorkflowDefinition{
		Name: "early",
		Nodes: []domain.NodeSpec{
			{ID: "a", Run: counted},
			{ID: "b", Run: counted},
			{ID: "c", DependsOn: []string{"a"}, Run: counted},
		},
	}
	run := h.newRun(t, def, nil)
	cancel := make(chan struct{})
	close(cancel)

	artifact, err := h.engine.Execute(context.Background(), def, run, cancel)
	require.NoError(t, err)
	assert.Nil(t, artifact)

	assert.Zero(t, calls.Load())
	assert.Equal(t, domain.RunStatusCancelled, run.Status)
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, domain.NodeStatusSkipped, run.Nodes[id].Status, id)
		assert.Zero(t, run.Nodes[id].AttemptCount, id)
	}
	assert.NotContains(t, h.eventTypes(run.ID), domain.EventTypeNodeStarted)
}

func TestEngineCreatesNodeEntriesLazily(t *testing.T) {
	h := newHarness(t, 1)

	var runID string
	seen := make(chan *domain.Run, 1)
	def := &domain.WorkflowDefinition{
		Name: "lazy",
		Nodes: []domain.NodeSpec{
			{ID: "a", Run: func(ctx context.Context, in map[string]any) (map[string]any, error) {
				stored, err := h.store.LoadRun(ctx, runID)
				if err != nil {
					return nil, err
				}
				seen <- stored
				return map[string]any{}, nil
			}},
			{ID: "b", DependsOn: []string{"a"}, Run: noop},
		},
	}
	run := h.newRun(t, def, nil)
	runID = run.ID

	_, err := h.engine.Execute(context.Background(), def, run, nil)
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusSucceeded, run.Status)

	var checkpoint *domain.Run
	select {
	case checkpoint = <-seen:
	default:
		t.Fatal("node a did not observe the stored run")
	}
	assert.Equal(t, domain.RunStatusRunning, checkpoint.Status)
	assert.NotContains(t, checkpoint.Nodes, "b")
	assert.Equal(t, domain.NodeStatusSucceeded, run.Nodes["b"].Status)
}

func TestEngineDeadlineDuringDispatchFailsRun(t *testing.T) {
	h := newHarness(t, 1)

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, h.pool.Submit(context.Background(), func() { <-release }))

	def := &domain.WorkflowDefinition{
		Name:  "busy",
		Nodes: []domain.NodeSpec{node("a")},
	}
	run := h.newRun(t, def, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.engine.Execute(ctx, def, run, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusFailed, run.Status)
	require.NotNil(t, run.Failure)
	assert.Equal(t, "run timed out", run.Failure.Message)
	assert.Equal(t, domain.NodeStatusSkipped, run.Nodes["a"].Status)
	assert.Zero(t, run.Nodes["a"].AttemptCount)
}
