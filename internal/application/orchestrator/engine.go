package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher runs node attempts on behalf of the engine
type Dispatcher interface {
	Submit(ctx context.Context, job func()) error
}

// Engine drives workflow runs to a terminal status
type Engine struct {
	store      ports.StateStore
	dispatcher Dispatcher
	eventBus   ports.EventBus
	metrics    ports.MetricsCollector
	assembler  *Assembler
	logger     *zap.Logger

	defaultMaxInFlight int

	// after creates retry timers
	after func(time.Duration) <-chan time.Time
}

// NewEngine creates a new workflow engine
func NewEngine(
	store ports.StateStore,
	dispatcher Dispatcher,
	eventBus ports.EventBus,
	metrics ports.MetricsCollector,
	assembler *Assembler,
	logger *zap.Logger,
	defaultMaxInFlight int,
) *Engine {
	return &Engine{
		store:              store,
		dispatcher:         dispatcher,
		eventBus:           eventBus,
		metrics:            metrics,
		assembler:          assembler,
		logger:             logger,
		defaultMaxInFlight: defaultMaxInFlight,
		after:              time.After,
	}
}

// Execute runs a Pending run to completion. Closing cancel requests
// cancellation: in-flight attempts finish, nothing new is dispatched.
// Cancelling ctx has the same effect, except that a deadline fails the run.
//
// The returned artifact is nil unless the run succeeded. The returned error
// is non-nil only when the run could not be started or persisted; node
// failures are reported through the run itself.
func (e *Engine) Execute(ctx context.Context, def *domain.WorkflowDefinition, run *domain.Run, cancel <-chan struct{}) (*domain.Artifact, error) {
	if run.Status != domain.RunStatusPending {
		return nil, fmt.Errorf("failed to start run %s: %w (status %s)", run.ID, domain.ErrRunTerminal, run.Status)
	}

	l := newRunLoop(ctx, e, def, run, cancel)
	return l.execute()
}

type stopCause int

const (
	stopNone stopCause = iota
	stopCancelled
	stopFailed
	stopTimedOut
	stopStoreError
)

type attemptResult struct {
	nodeID   string
	output   map[string]any
	err      error
	duration time.Duration
}

// runLoop owns every mutation of one run. Attempts execute elsewhere and
// report back over results; retry timers report over retries.
type runLoop struct {
	engine *Engine
	def    *domain.WorkflowDefinition
	run    *domain.Run
	logger *zap.Logger

	ctx        context.Context
	storeCtx   context.Context
	attemptCtx context.Context
	cancelCh   <-chan struct{}
	doneCh     <-chan struct{}

	specs       map[string]*domain.NodeSpec
	ancestors   map[string]map[string]bool
	maxInFlight int

	results chan attemptResult
	retries chan string
	stop    chan struct{}

	inFlight int
	waiting  map[string]bool
	ready    map[string]bool

	cause    stopCause
	failure  *domain.RunFailure
	storeErr error
}

func newRunLoop(ctx context.Context, e *Engine, def *domain.WorkflowDefinition, run *domain.Run, cancel <-chan struct{}) *runLoop {
	specs := make(map[string]*domain.NodeSpec, len(def.Nodes))
	for i := range def.Nodes {
		specs[def.Nodes[i].ID] = &def.Nodes[i]
	}

	maxInFlight := def.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = e.defaultMaxInFlight
	}
	if maxInFlight <= 0 {
		maxInFlight = len(def.Nodes)
	}

	return &runLoop{
		engine:      e,
		def:         def,
		run:         run,
		logger:      e.logger.With(zap.String("run_id", run.ID), zap.String("workflow", def.Name)),
		ctx:         ctx,
		storeCtx:    context.WithoutCancel(ctx),
		attemptCtx:  context.WithoutCancel(ctx),
		cancelCh:    cancel,
		doneCh:      ctx.Done(),
		specs:       specs,
		ancestors:   ancestorSets(def),
		maxInFlight: maxInFlight,
		results:     make(chan attemptResult, len(def.Nodes)),
		retries:     make(chan string, len(def.Nodes)),
		stop:        make(chan struct{}),
		waiting:     make(map[string]bool),
		ready:       make(map[string]bool),
	}
}

func (l *runLoop) execute() (*domain.Artifact, error) {
	defer close(l.stop)

	now := time.Now()
	if err := transitionRun(l.run, domain.RunStatusRunning, now); err != nil {
		return nil, err
	}
	if l.run.State == nil {
		l.run.State = make(map[string]any, len(l.run.Input))
	}
	for k, v := range l.run.Input {
		l.run.State[k] = v
	}
	if l.run.Nodes == nil {
		l.run.Nodes = make(map[string]*domain.NodeExecution, len(l.def.Nodes))
	}

	l.logger.Info("run started", zap.Int("max_in_flight", l.maxInFlight))
	if err := l.engine.store.SaveRun(l.storeCtx, l.run); err != nil {
		l.storeFailed(err)
	}
	l.publish(domain.EventTypeRunStarted, "", nil)

	for {
		if !l.stopping() {
			l.schedule()
		}
		if l.inFlight == 0 && len(l.waiting) == 0 && len(l.ready) == 0 {
			break
		}

		select {
		case res := <-l.results:
			l.handleResult(res)
		case id := <-l.retries:
			l.retryDue(id)
		case <-l.cancelCh:
			l.cancelled()
		case <-l.doneCh:
			l.interrupted()
		}
	}

	return l.finish()
}

func (l *runLoop) cancelled() {
	l.cancelCh = nil
	l.logger.Info("cancellation requested")
	l.requestStop(stopCancelled)
}

// interrupted stops the run once ctx is done. A deadline fails the run,
// anything else cancels it.
func (l *runLoop) interrupted() {
	l.doneCh = nil
	if errors.Is(l.ctx.Err(), context.DeadlineExceeded) {
		l.logger.Warn("run timed out")
		l.fail(&domain.RunFailure{
			Class:   domain.ErrorClassTransient,
			Message: "run timed out",
		}, stopTimedOut)
		return
	}
	l.logger.Info("run interrupted by shutdown")
	l.requestStop(stopCancelled)
}

// pollStop picks up a cancel or ctx expiry that is already pending
func (l *runLoop) pollStop() {
	select {
	case <-l.cancelCh:
		l.cancelled()
	case <-l.doneCh:
		l.interrupted()
	default:
	}
}

func (l *runLoop) stopping() bool {
	return l.cause != stopNone
}

// requestStop records the first stop cause and abandons pending retries
func (l *runLoop) requestStop(cause stopCause) {
	if l.stopping() {
		return
	}
	l.cause = cause

	now := time.Now()
	for _, spec := range l.def.Nodes {
		if !l.waiting[spec.ID] && !l.ready[spec.ID] {
			continue
		}
		exec := l.run.Nodes[spec.ID]
		if err := abandonRetry(exec, now); err != nil {
			l.logger.Error("failed to abandon retry", zap.String("node_id", spec.ID), zap.Error(err))
			continue
		}
		l.logger.Info("pending retry abandoned",
			zap.String("node_id", spec.ID),
			zap.Int("attempts", exec.AttemptCount))
		l.publish(domain.EventTypeNodeFailed, spec.ID, map[string]any{
			"attempts":  exec.AttemptCount,
			"abandoned": true,
		})
		l.checkpointNode(exec)
	}
	l.waiting = make(map[string]bool)
	l.ready = make(map[string]bool)
}

func (l *runLoop) fail(failure *domain.RunFailure, cause stopCause) {
	if l.failure == nil {
		l.failure = failure
	}
	l.requestStop(cause)
}

func (l *runLoop) storeFailed(err error) {
	if l.storeErr != nil {
		return
	}
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		err = domain.NewStoreError("checkpoint", err)
	}
	l.storeErr = err
	l.logger.Error("state store failure", zap.Error(err))
	l.fail(&domain.RunFailure{
		Class:   domain.ErrorClassUnclassified,
		Message: err.Error(),
	}, stopStoreError)
}

// schedule skips or dispatches every node whose fate is decided, in
// declaration order, until nothing changes or the in-flight bound is hit.
func (l *runLoop) schedule() {
	for progressed := true; progressed; {
		progressed = false
		for i := range l.def.Nodes {
			l.pollStop()
			if l.stopping() || l.inFlight >= l.maxInFlight {
				return
			}
			spec := &l.def.Nodes[i]
			exec := l.run.Nodes[spec.ID]

			switch {
			case exec == nil || exec.Status == domain.NodeStatusNotStarted:
				if l.consider(spec) {
					progressed = true
				}
			case exec.Status == domain.NodeStatusFailedRetryable && l.ready[spec.ID]:
				delete(l.ready, spec.ID)
				l.dispatch(spec, exec, l.resolveInputs(spec))
				progressed = true
			}
		}
	}
}

// consider handles a node that has not started. It reports whether the
// node changed state.
func (l *runLoop) consider(spec *domain.NodeSpec) bool {
	ready, blockedBy := l.dependencyState(spec)
	if blockedBy != "" {
		l.skip(spec.ID, fmt.Sprintf("dependency %s did not succeed", blockedBy))
		return true
	}
	if !ready {
		return false
	}

	inputs := l.resolveInputs(spec)
	if spec.Condition != nil {
		run, err := evalCondition(spec, inputs)
		if err != nil {
			exec := l.execFor(spec.ID)
			now := time.Now()
			if berr := beginAttempt(exec, now); berr == nil {
				l.complete(spec, exec, nil, err, 0)
			}
			return true
		}
		if !run {
			l.skip(spec.ID, "condition not met")
			return true
		}
	}

	exec := l.execFor(spec.ID)
	if missing := missingInputs(spec, inputs); len(missing) > 0 {
		err := domain.NewConfigurationError(spec.ID, fmt.Errorf("missing required inputs: %s", strings.Join(missing, ", ")))
		if berr := beginAttempt(exec, time.Now()); berr != nil {
			l.logger.Error("failed to record attempt", zap.String("node_id", spec.ID), zap.Error(berr))
			return true
		}
		l.complete(spec, exec, nil, err, 0)
		return true
	}

	l.dispatch(spec, exec, inputs)
	return true
}

// dependencyState reports whether every dependency allows the node to run,
// or which dependency blocks it for good.
func (l *runLoop) dependencyState(spec *domain.NodeSpec) (bool, string) {
	ready := true
	for _, dep := range spec.DependsOn {
		exec := l.run.Nodes[dep]
		if exec == nil || !exec.Status.IsTerminal() {
			ready = false
			continue
		}
		switch exec.Status {
		case domain.NodeStatusSucceeded:
		case domain.NodeStatusSkipped:
			if !l.specs[dep].Optional {
				return false, dep
			}
		default:
			return false, dep
		}
	}
	return ready, ""
}

// resolveInputs collects the node's declared keys from the run input and
// the outputs of its succeeded ancestors, later declared ancestors winning.
func (l *runLoop) resolveInputs(spec *domain.NodeSpec) map[string]any {
	values := make(map[string]any, len(l.run.Input))
	for k, v := range l.run.Input {
		values[k] = v
	}
	ancestors := l.ancestors[spec.ID]
	for _, n := range l.def.Nodes {
		if !ancestors[n.ID] {
			continue
		}
		exec := l.run.Nodes[n.ID]
		if exec == nil || exec.Status != domain.NodeStatusSucceeded {
			continue
		}
		for k, v := range exec.Output {
			values[k] = v
		}
	}

	inputs := make(map[string]any, len(spec.Inputs)+len(spec.OptionalInputs))
	for _, key := range spec.Inputs {
		if v, ok := values[key]; ok {
			inputs[key] = v
		}
	}
	for _, key := range spec.OptionalInputs {
		if v, ok := values[key]; ok {
			inputs[key] = v
		}
	}
	return inputs
}

func missingInputs(spec *domain.NodeSpec, inputs map[string]any) []string {
	var missing []string
	for _, key := range spec.Inputs {
		if _, ok := inputs[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

func evalCondition(spec *domain.NodeSpec, inputs map[string]any) (run bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewConfigurationError(spec.ID, fmt.Errorf("condition panicked: %v", r))
		}
	}()
	return spec.Condition(inputs), nil
}

func (l *runLoop) execFor(nodeID string) *domain.NodeExecution {
	exec, ok := l.run.Nodes[nodeID]
	if !ok {
		exec = domain.NewNodeExecution(nodeID)
		l.run.Nodes[nodeID] = exec
	}
	return exec
}

func (l *runLoop) skip(nodeID, reason string) {
	exec := l.execFor(nodeID)
	if err := skipNode(exec, reason, time.Now()); err != nil {
		l.logger.Error("failed to skip node", zap.String("node_id", nodeID), zap.Error(err))
		return
	}
	l.logger.Debug("node skipped", zap.String("node_id", nodeID), zap.String("reason", reason))
	l.publish(domain.EventTypeNodeSkipped, nodeID, map[string]any{"reason": reason})
	l.checkpointNode(exec)
}

func (l *runLoop) dispatch(spec *domain.NodeSpec, exec *domain.NodeExecution, inputs map[string]any) {
	results := l.results
	ctx := l.attemptCtx
	job := func() {
		start := time.Now()
		output, err := l.engine.runAttempt(ctx, spec, inputs)
		results <- attemptResult{
			nodeID:   spec.ID,
			output:   output,
			err:      err,
			duration: time.Since(start),
		}
	}

	if err := l.engine.dispatcher.Submit(l.ctx, job); err != nil {
		l.logger.Warn("dispatch refused, stopping run",
			zap.String("node_id", spec.ID),
			zap.Error(err))
		if exec.Status == domain.NodeStatusFailedRetryable {
			l.ready[spec.ID] = true
		}
		if l.ctx.Err() != nil {
			l.interrupted()
			return
		}
		l.requestStop(stopCancelled)
		return
	}

	if err := beginAttempt(exec, time.Now()); err != nil {
		l.logger.Error("failed to record attempt", zap.String("node_id", spec.ID), zap.Error(err))
	}
	l.inFlight++

	l.logger.Debug("node dispatched",
		zap.String("node_id", spec.ID),
		zap.Int("attempt", exec.AttemptCount))
	l.publish(domain.EventTypeNodeStarted, spec.ID, map[string]any{"attempt": exec.AttemptCount})
}

// runAttempt executes one attempt under the node timeout. A node that
// ignores its context is abandoned when the timeout fires.
func (e *Engine) runAttempt(ctx context.Context, spec *domain.NodeSpec, inputs map[string]any) (map[string]any, error) {
	if spec.Policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Policy.Timeout)
		defer cancel()
	}

	type outcome struct {
		output map[string]any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("node %s panicked: %v", spec.ID, r)}
			}
		}()
		output, err := spec.Run(ctx, inputs)
		done <- outcome{output: output, err: err}
	}()

	select {
	case o := <-done:
		return o.output, o.err
	case <-ctx.Done():
		return nil, domain.NewTransientError(spec.ID, fmt.Errorf("attempt timed out after %s: %w", spec.Policy.Timeout, ctx.Err()))
	}
}

func (l *runLoop) handleResult(res attemptResult) {
	l.inFlight--

	spec := l.specs[res.nodeID]
	exec := l.run.Nodes[res.nodeID]

	output, err := res.output, res.err
	if err == nil {
		output, err = validateOutputs(spec, output)
	}
	l.complete(spec, exec, output, err, res.duration)
}

// validateOutputs checks that a node returned exactly its declared keys
func validateOutputs(spec *domain.NodeSpec, output map[string]any) (map[string]any, error) {
	declared := toSet(spec.Outputs)

	var missing, extra []string
	for _, key := range spec.Outputs {
		if _, ok := output[key]; !ok {
			missing = append(missing, key)
		}
	}
	for key := range output {
		if !declared[key] {
			extra = append(extra, key)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		out, err := plainOutput(output)
		if err != nil {
			return nil, domain.NewInvalidOutputError(spec.ID, err)
		}
		return out, nil
	}

	sort.Strings(extra)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing output keys: "+strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		parts = append(parts, "undeclared output keys: "+strings.Join(extra, ", "))
	}
	return nil, domain.NewInvalidOutputError(spec.ID, errors.New(strings.Join(parts, "; ")))
}

// plainOutput round-trips output through JSON, leaving only maps, slices
// and scalars the run owns and the store persists unchanged
func plainOutput(output map[string]any) (map[string]any, error) {
	data, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("output is not JSON encodable: %w", err)
	}
	out := make(map[string]any, len(output))
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode output: %w", err)
	}
	return out, nil
}

// complete closes the running attempt of a node and acts on the outcome
func (l *runLoop) complete(spec *domain.NodeSpec, exec *domain.NodeExecution, output map[string]any, attemptErr error, duration time.Duration) {
	now := time.Now()
	outcome, err := completeAttempt(exec, spec.Policy, output, attemptErr, now)
	if err != nil {
		l.logger.Error("failed to complete attempt", zap.String("node_id", spec.ID), zap.Error(err))
		l.fail(&domain.RunFailure{
			NodeID:   spec.ID,
			Class:    domain.ErrorClassUnclassified,
			Attempts: exec.AttemptCount,
			Message:  err.Error(),
		}, stopFailed)
		return
	}

	fields := []zap.Field{
		zap.String("node_id", spec.ID),
		zap.Int("attempt", exec.AttemptCount),
		zap.Duration("duration", duration),
	}

	switch outcome.Status {
	case domain.NodeStatusSucceeded:
		for k, v := range output {
			l.run.State[k] = v
		}
		l.run.UpdatedAt = now
		l.engine.metrics.RecordNodeAttempt(l.def.Name, spec.ID, string(domain.NodeStatusSucceeded), duration)
		l.logger.Info("node succeeded", fields...)
		l.publish(domain.EventTypeNodeSucceeded, spec.ID, map[string]any{"attempts": exec.AttemptCount})
		l.checkpointNode(exec)

	case domain.NodeStatusFailedRetryable:
		l.engine.metrics.RecordNodeAttempt(l.def.Name, spec.ID, string(outcome.Class), duration)
		l.engine.metrics.RecordNodeRetry(l.def.Name, spec.ID, string(outcome.Class))
		fields = append(fields,
			zap.String("class", string(outcome.Class)),
			zap.Duration("retry_in", outcome.Delay),
			zap.Error(attemptErr))
		if outcome.Class == domain.ErrorClassUnclassified {
			l.logger.Warn("node attempt failed with unclassified error, retrying", fields...)
		} else {
			l.logger.Info("node attempt failed, retrying", fields...)
		}
		l.publish(domain.EventTypeNodeRetrying, spec.ID, map[string]any{
			"attempt": exec.AttemptCount,
			"class":   string(outcome.Class),
			"error":   attemptErr.Error(),
			"delay":   outcome.Delay.String(),
		})
		if l.stopping() {
			l.ready[spec.ID] = true
			l.abandonReady()
			return
		}
		l.scheduleRetry(spec.ID, outcome.Delay)

	case domain.NodeStatusFailed:
		l.engine.metrics.RecordNodeAttempt(l.def.Name, spec.ID, string(outcome.Class), duration)
		fields = append(fields, zap.String("class", string(outcome.Class)), zap.Error(attemptErr))
		l.logger.Error("node failed", fields...)
		l.publish(domain.EventTypeNodeFailed, spec.ID, map[string]any{
			"attempts": exec.AttemptCount,
			"class":    string(outcome.Class),
			"error":    attemptErr.Error(),
		})
		l.checkpointNode(exec)
		l.fail(&domain.RunFailure{
			NodeID:   spec.ID,
			Class:    outcome.Class,
			Attempts: exec.AttemptCount,
			Message:  attemptErr.Error(),
		}, stopFailed)
	}
}

// abandonReady fails retryable nodes once the run is already stopping
func (l *runLoop) abandonReady() {
	now := time.Now()
	for id := range l.ready {
		exec := l.run.Nodes[id]
		if err := abandonRetry(exec, now); err != nil {
			l.logger.Error("failed to abandon retry", zap.String("node_id", id), zap.Error(err))
			continue
		}
		l.publish(domain.EventTypeNodeFailed, id, map[string]any{
			"attempts":  exec.AttemptCount,
			"abandoned": true,
		})
		l.checkpointNode(exec)
	}
	l.ready = make(map[string]bool)
}

func (l *runLoop) scheduleRetry(nodeID string, delay time.Duration) {
	l.waiting[nodeID] = true
	timer := l.engine.after(delay)
	retries, stop := l.retries, l.stop
	go func() {
		select {
		case <-timer:
			select {
			case retries <- nodeID:
			case <-stop:
			}
		case <-stop:
		}
	}()
}

func (l *runLoop) retryDue(nodeID string) {
	if !l.waiting[nodeID] {
		return
	}
	delete(l.waiting, nodeID)
	l.ready[nodeID] = true
}

// checkpointNode persists a node that reached a terminal status
func (l *runLoop) checkpointNode(exec *domain.NodeExecution) {
	if l.storeErr != nil {
		return
	}
	if err := l.engine.store.AppendNodeExecution(l.storeCtx, l.run.ID, exec.Clone()); err != nil {
		l.storeFailed(err)
		return
	}
	if err := l.engine.store.SaveRun(l.storeCtx, l.run); err != nil {
		l.storeFailed(err)
	}
}

// finish skips unreached nodes, assembles the artifact and persists the
// terminal run
func (l *runLoop) finish() (*domain.Artifact, error) {
	for _, spec := range l.def.Nodes {
		exec := l.execFor(spec.ID)
		if exec.Status != domain.NodeStatusNotStarted {
			continue
		}
		reason := "dependencies not satisfied"
		if l.stopping() {
			reason = "run stopped before dispatch"
		}
		l.skip(spec.ID, reason)
	}

	now := time.Now()
	var artifact *domain.Artifact
	status := domain.RunStatusSucceeded

	switch l.cause {
	case stopNone:
		a, err := l.engine.assembler.build(l.def, l.run, now)
		if err != nil {
			l.logger.Error("artifact assembly failed", zap.Error(err))
			l.failure = &domain.RunFailure{Class: domain.Classify(err), Message: err.Error()}
			status = domain.RunStatusFailed
			break
		}
		if err := l.engine.store.SaveArtifact(l.storeCtx, a); err != nil {
			l.storeFailed(err)
			status = domain.RunStatusFailed
			break
		}
		artifact = a
	case stopCancelled:
		status = domain.RunStatusCancelled
	default:
		status = domain.RunStatusFailed
	}

	l.run.Failure = l.failure
	if err := transitionRun(l.run, status, now); err != nil {
		return nil, err
	}
	if err := l.engine.store.SaveRun(l.storeCtx, l.run); err != nil && l.storeErr == nil {
		l.storeErr = domain.NewStoreError("save run", err)
		if errors.Is(err, domain.ErrStoreUnavailable) {
			l.storeErr = err
		}
	}

	duration := now.Sub(*l.run.StartedAt)
	l.engine.metrics.RecordRunCompleted(l.def.Name, string(status), duration)

	fields := []zap.Field{zap.String("status", string(status)), zap.Duration("duration", duration)}
	if l.failure != nil {
		fields = append(fields,
			zap.String("failed_node", l.failure.NodeID),
			zap.String("class", string(l.failure.Class)))
	}
	l.logger.Info("run finished", fields...)

	data := map[string]any{"status": string(status)}
	if l.failure != nil {
		data["failure"] = l.failure
	}
	l.publish(runEventType(status), "", data)

	if l.storeErr != nil {
		return artifact, fmt.Errorf("failed to persist run %s: %w", l.run.ID, l.storeErr)
	}
	return artifact, nil
}

func runEventType(status domain.RunStatus) domain.EventType {
	switch status {
	case domain.RunStatusSucceeded:
		return domain.EventTypeRunSucceeded
	case domain.RunStatusCancelled:
		return domain.EventTypeRunCancelled
	default:
		return domain.EventTypeRunFailed
	}
}

func (l *runLoop) publish(eventType domain.EventType, nodeID string, data map[string]any) {
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     l.run.ID,
		Workflow:  l.def.Name,
		NodeID:    nodeID,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := l.engine.eventBus.Publish(l.storeCtx, domain.TopicRunEvents, event); err != nil {
		l.logger.Warn("failed to publish event",
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}
