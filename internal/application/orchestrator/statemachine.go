package orchestrator

import (
	"fmt"
	"math"
	"time"

	"github.com/aescanero/docgen/pkg/domain"
)

var nodeTransitions = map[domain.NodeStatus][]domain.NodeStatus{
	domain.NodeStatusNotStarted:      {domain.NodeStatusRunning, domain.NodeStatusSkipped},
	domain.NodeStatusRunning:         {domain.NodeStatusSucceeded, domain.NodeStatusFailedRetryable, domain.NodeStatusFailed},
	domain.NodeStatusFailedRetryable: {domain.NodeStatusRunning, domain.NodeStatusFailed},
}

var runTransitions = map[domain.RunStatus][]domain.RunStatus{
	domain.RunStatusPending: {domain.RunStatusRunning, domain.RunStatusFailed, domain.RunStatusCancelled},
	domain.RunStatusRunning: {domain.RunStatusSucceeded, domain.RunStatusFailed, domain.RunStatusCancelled},
}

func allowed[S comparable](table map[S][]S, from, to S) bool {
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transitionNode moves a node execution to a new status
func transitionNode(exec *domain.NodeExecution, to domain.NodeStatus) error {
	if !allowed(nodeTransitions, exec.Status, to) {
		return fmt.Errorf("%w: node %s %s -> %s", domain.ErrInvalidTransition, exec.NodeID, exec.Status, to)
	}
	exec.Status = to
	return nil
}

// transitionRun moves a run to a new status. A run reaches a terminal
// status exactly once.
func transitionRun(run *domain.Run, to domain.RunStatus, now time.Time) error {
	if !allowed(runTransitions, run.Status, to) {
		return fmt.Errorf("%w: run %s %s -> %s", domain.ErrInvalidTransition, run.ID, run.Status, to)
	}
	run.Status = to
	run.UpdatedAt = now
	switch {
	case to == domain.RunStatusRunning:
		run.StartedAt = &now
	case to.IsTerminal():
		run.CompletedAt = &now
	}
	return nil
}

// Backoff returns the delay before the retry that follows the given failed
// attempt (1-based): base * 2^(attempt-1), capped at MaxBackoff when set.
// The sequence is non-decreasing in attempt.
func Backoff(policy domain.NodePolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := policy.BackoffBase
	if base <= 0 {
		return 0
	}

	limit := time.Duration(math.MaxInt64)
	if policy.MaxBackoff > 0 {
		limit = policy.MaxBackoff
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay > limit/2 {
			return limit
		}
		delay *= 2
	}
	if delay > limit {
		return limit
	}
	return delay
}

// beginAttempt moves a node to Running and opens a new attempt record
func beginAttempt(exec *domain.NodeExecution, now time.Time) error {
	if err := transitionNode(exec, domain.NodeStatusRunning); err != nil {
		return err
	}
	exec.AttemptCount++
	if exec.StartedAt == nil {
		exec.StartedAt = &now
	}
	exec.Attempts = append(exec.Attempts, domain.AttemptRecord{
		Number:    exec.AttemptCount,
		StartedAt: now,
	})
	return nil
}

// attemptOutcome is the decision taken after an attempt finishes
type attemptOutcome struct {
	Status domain.NodeStatus
	Class  domain.ErrorClass
	Delay  time.Duration
}

// completeAttempt closes the current attempt and decides the next status.
// Fatal classes fail the node at once. Retryable classes fail it once the
// attempt count exceeds MaxRetries.
func completeAttempt(exec *domain.NodeExecution, policy domain.NodePolicy, output map[string]any, attemptErr error, now time.Time) (attemptOutcome, error) {
	if exec.Status != domain.NodeStatusRunning || len(exec.Attempts) == 0 {
		return attemptOutcome{}, fmt.Errorf("%w: node %s has no running attempt", domain.ErrInvalidTransition, exec.NodeID)
	}
	record := &exec.Attempts[len(exec.Attempts)-1]
	record.FinishedAt = &now

	if attemptErr == nil {
		if err := transitionNode(exec, domain.NodeStatusSucceeded); err != nil {
			return attemptOutcome{}, err
		}
		exec.Output = output
		exec.LastError = nil
		exec.CompletedAt = &now
		return attemptOutcome{Status: domain.NodeStatusSucceeded}, nil
	}

	class := domain.Classify(attemptErr)
	record.Error = attemptErr.Error()
	record.Class = class
	exec.LastError = &domain.NodeError{Class: class, Message: attemptErr.Error()}

	if !class.Retryable() || exec.AttemptCount > policy.MaxRetries {
		if err := transitionNode(exec, domain.NodeStatusFailed); err != nil {
			return attemptOutcome{}, err
		}
		exec.CompletedAt = &now
		return attemptOutcome{Status: domain.NodeStatusFailed, Class: class}, nil
	}

	if err := transitionNode(exec, domain.NodeStatusFailedRetryable); err != nil {
		return attemptOutcome{}, err
	}
	delay := Backoff(policy, exec.AttemptCount)
	record.RetryDelay = delay
	return attemptOutcome{Status: domain.NodeStatusFailedRetryable, Class: class, Delay: delay}, nil
}

// abandonRetry fails a node whose retry will never be dispatched
func abandonRetry(exec *domain.NodeExecution, now time.Time) error {
	if err := transitionNode(exec, domain.NodeStatusFailed); err != nil {
		return err
	}
	exec.CompletedAt = &now
	return nil
}

// skipNode marks a node that will never run
func skipNode(exec *domain.NodeExecution, reason string, now time.Time) error {
	if err := transitionNode(exec, domain.NodeStatusSkipped); err != nil {
		return err
	}
	exec.SkipReason = reason
	exec.CompletedAt = &now
	return nil
}
