package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aescanero/docgen/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultResponse(t *testing.T) {
	m := New()

	res, err := m.Invoke(context.Background(), &ports.InvokeRequest{Tool: "summarize", Prompt: "Summarize main.go\nmore"})
	require.NoError(t, err)

	assert.Equal(t, "## summarize\nSummarize main.go", res.Content)
	assert.Equal(t, DefaultModel, res.Model)
	assert.Equal(t, 4, res.OutputTokens)
	assert.Equal(t, 1, m.CallCount("summarize"))
}

func TestConfiguredResponseAndErrors(t *testing.T) {
	boom := errors.New("boom")
	m := New().WithResponse("a", "fixed").WithError("b", boom, 2)
	ctx := context.Background()

	res, err := m.Invoke(ctx, &ports.InvokeRequest{Tool: "a", Model: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", res.Content)
	assert.Equal(t, "m1", res.Model)

	for i := 0; i < 2; i++ {
		_, err = m.Invoke(ctx, &ports.InvokeRequest{Tool: "b"})
		assert.ErrorIs(t, err, boom)
	}
	_, err = m.Invoke(ctx, &ports.InvokeRequest{Tool: "b"})
	assert.NoError(t, err)

	assert.Len(t, m.Calls(), 4)
}

func TestLatencyHonoursContext(t *testing.T) {
	m := New().WithLatency(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Invoke(ctx, &ports.InvokeRequest{Tool: "slow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
