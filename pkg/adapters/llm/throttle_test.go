package llm

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/docgen/pkg/adapters/llm/mock"
	promcollector "github.com/aescanero/docgen/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestThrottledInvokerAppliesDefaults(t *testing.T) {
	m := mock.New()
	inv := NewThrottledInvoker(m, Defaults{Model: "claude", MaxTokens: 512, Temperature: 0.2, Timeout: time.Second}, 0, 0, nil, zap.NewNop())

	res, err := inv.Invoke(context.Background(), &ports.InvokeRequest{Tool: "t", Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "claude", res.Model)

	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 512, calls[0].MaxTokens)
	assert.Equal(t, 0.2, calls[0].Temperature)
	assert.Equal(t, time.Second, calls[0].Timeout)
}

func TestThrottledInvokerRateLimitIsTransient(t *testing.T) {
	inv := NewThrottledInvoker(mock.New(), Defaults{}, 0.001, 1, nil, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := inv.Invoke(ctx, &ports.InvokeRequest{Tool: "t", Prompt: "a"})
	require.NoError(t, err)

	_, err = inv.Invoke(ctx, &ports.InvokeRequest{Tool: "t", Prompt: "b"})
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestThrottledInvokerRecordsMetrics(t *testing.T) {
	collector := promcollector.NewCollectorWith(prometheus.NewRegistry())
	inv := NewThrottledInvoker(mock.New(), Defaults{Model: "m"}, 0, 0, collector, zap.NewNop())

	_, err := inv.Invoke(context.Background(), &ports.InvokeRequest{Tool: "t", Prompt: "one two"})
	assert.NoError(t, err)
}

func TestNewInvoker(t *testing.T) {
	inv, err := NewInvoker(&Config{Provider: "mock", Model: "m", Logger: zap.NewNop()})
	require.NoError(t, err)
	require.NotNil(t, inv)

	_, err = NewInvoker(&Config{Provider: "anthropic", Logger: zap.NewNop()})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewInvoker(&Config{Provider: "other", Logger: zap.NewNop()})
	assert.Error(t, err)
}
