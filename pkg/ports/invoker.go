package ports

import (
	"context"
	"time"
)

// InvokeRequest is a single tool or model invocation
type InvokeRequest struct {
	// Tool names the logical operation, used for metrics and mocks
	Tool        string
	Model       string
	System      string
	Prompt      string
	Args        map[string]any
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// InvokeResult is the outcome of a successful invocation
type InvokeResult struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// Invoker calls an LLM or external tool. Failures are classified with
// domain.NewTransientError, domain.NewInvalidInputError or left unclassified.
type Invoker interface {
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResult, error)
}
