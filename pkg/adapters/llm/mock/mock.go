// Package mock provides a deterministic invoker for tests and offline runs.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aescanero/docgen/pkg/ports"
)

// DefaultModel is reported when a request names no model
const DefaultModel = "mock"

type failure struct {
	err       error
	remaining int
}

// Invoker implements ports.Invoker without any network access. Unless a
// response is configured for the tool, the reply is a markdown heading
// naming the tool followed by the first line of the prompt.
type Invoker struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string]*failure
	calls     []ports.InvokeRequest
	latency   time.Duration
}

// New creates a new mock invoker
func New() *Invoker {
	return &Invoker{
		responses: make(map[string]string),
		failures:  make(map[string]*failure),
	}
}

// WithResponse fixes the reply for a tool
func (m *Invoker) WithResponse(tool, content string) *Invoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[tool] = content
	return m
}

// WithError makes the next times calls for a tool fail with err. A negative
// times fails every call.
func (m *Invoker) WithError(tool string, err error, times int) *Invoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[tool] = &failure{err: err, remaining: times}
	return m
}

// WithLatency delays every reply
func (m *Invoker) WithLatency(d time.Duration) *Invoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
	return m
}

// Invoke records the request and returns the configured outcome
func (m *Invoker) Invoke(ctx context.Context, req *ports.InvokeRequest) (*ports.InvokeResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, *req)
	latency := m.latency
	var failErr error
	if f, ok := m.failures[req.Tool]; ok && f.remaining != 0 {
		failErr = f.err
		if f.remaining > 0 {
			f.remaining--
		}
	}
	content, ok := m.responses[req.Tool]
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failErr != nil {
		return nil, failErr
	}

	if !ok {
		content = fmt.Sprintf("## %s\n%s", req.Tool, firstLine(req.Prompt))
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	return &ports.InvokeResult{
		Content:      content,
		Model:        model,
		InputTokens:  len(strings.Fields(req.System)) + len(strings.Fields(req.Prompt)),
		OutputTokens: len(strings.Fields(content)),
		Duration:     latency,
	}, nil
}

// Calls returns every request received so far
func (m *Invoker) Calls() []ports.InvokeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.InvokeRequest(nil), m.calls...)
}

// CallCount returns the number of requests received for a tool
func (m *Invoker) CallCount(tool string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Tool == tool {
			n++
		}
	}
	return n
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
