package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass classifies failures for the retry policy
type ErrorClass string

const (
	ErrorClassTransient     ErrorClass = "transient"
	ErrorClassInvalidInput  ErrorClass = "invalid_input"
	ErrorClassInvalidOutput ErrorClass = "invalid_output"
	ErrorClassConfiguration ErrorClass = "configuration"
	ErrorClassAssembly      ErrorClass = "assembly"
	ErrorClassUnclassified  ErrorClass = "unclassified"
)

// Retryable reports whether a failure of this class may be retried.
// Unclassified failures are retried like transient ones.
func (c ErrorClass) Retryable() bool {
	return c == ErrorClassTransient || c == ErrorClassUnclassified
}

var (
	ErrTransient         = errors.New("transient failure")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidOutput     = errors.New("invalid output")
	ErrConfiguration     = errors.New("configuration error")
	ErrAssembly          = errors.New("assembly error")
	ErrStoreUnavailable  = errors.New("state store unavailable")
	ErrRunNotFound       = errors.New("run not found")
	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrArtifactExists    = errors.New("artifact already exists")
	ErrRunTerminal       = errors.New("run is in a terminal state")
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrInvalidTransition = errors.New("invalid state transition")
)

var classSentinels = map[ErrorClass]error{
	ErrorClassTransient:     ErrTransient,
	ErrorClassInvalidInput:  ErrInvalidInput,
	ErrorClassInvalidOutput: ErrInvalidOutput,
	ErrorClassConfiguration: ErrConfiguration,
	ErrorClassAssembly:      ErrAssembly,
}

// ClassifiedError attaches an ErrorClass to an error. Op names the node or
// operation that failed.
type ClassifiedError struct {
	Class ErrorClass
	Op    string
	Err   error
}

func (e *ClassifiedError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Class, e.Op, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Is matches the class sentinel, so errors.Is(err, ErrTransient) works for
// any transient ClassifiedError.
func (e *ClassifiedError) Is(target error) bool {
	sentinel, ok := classSentinels[e.Class]
	return ok && target == sentinel
}

func newClassified(class ErrorClass, op string, err error) error {
	if err == nil {
		err = errors.New(string(class))
	}
	return &ClassifiedError{Class: class, Op: op, Err: err}
}

// NewTransientError marks err as transient (timeouts, rate limits, flaky tools)
func NewTransientError(op string, err error) error {
	return newClassified(ErrorClassTransient, op, err)
}

// NewInvalidInputError marks err as a rejection of the request content
func NewInvalidInputError(op string, err error) error {
	return newClassified(ErrorClassInvalidInput, op, err)
}

// NewInvalidOutputError marks err as a malformed node or tool output
func NewInvalidOutputError(op string, err error) error {
	return newClassified(ErrorClassInvalidOutput, op, err)
}

// NewConfigurationError marks err as a wiring or definition problem
func NewConfigurationError(op string, err error) error {
	return newClassified(ErrorClassConfiguration, op, err)
}

// NewAssemblyError marks err as an artifact assembly failure
func NewAssemblyError(op string, err error) error {
	return newClassified(ErrorClassAssembly, op, err)
}

// NewStoreError wraps a backend failure so callers can match ErrStoreUnavailable
func NewStoreError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// Classify returns the class of err. Deadline errors are transient and
// anything without a class is unclassified.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTransient
	}
	return ErrorClassUnclassified
}

// IsTransient reports whether err is retried as a transient failure
func IsTransient(err error) bool {
	return Classify(err) == ErrorClassTransient
}

// IsFatal reports whether err stops a node without retry
func IsFatal(err error) bool {
	return err != nil && !Classify(err).Retryable()
}

// IsConfiguration reports whether err is a configuration error
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsNotFound reports whether err means a run, artifact, document or
// workflow is missing
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrArtifactNotFound) ||
		errors.Is(err, ErrDocumentNotFound) ||
		errors.Is(err, ErrWorkflowNotFound)
}
