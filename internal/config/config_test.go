package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"LLM_API_KEY": "key"})
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 168*time.Hour, cfg.Store.RunTTL)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 4, cfg.Engine.MaxInFlight)
	assert.Equal(t, time.Second, cfg.Engine.BackoffBase)
	assert.Equal(t, 30, cfg.Documents.SummaryLimit)
	assert.Equal(t, time.Hour, cfg.Timeouts.RunTimeout)
	assert.Equal(t, ":8080", cfg.GetHTTPAddr())
	assert.Equal(t, ":9090", cfg.GetGRPCAddr())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"LLM_PROVIDER":         "mock",
		"STORE_BACKEND":        "badger",
		"BADGER_DIR":           "/var/lib/docgen",
		"ENGINE_MAX_IN_FLIGHT": "2",
		"ENGINE_MAX_RETRIES":   "5",
		"LOG_LEVEL":            "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.Equal(t, "badger", cfg.Store.Backend)
	assert.Equal(t, "/var/lib/docgen", cfg.Badger.Dir)
	assert.Equal(t, 2, cfg.Engine.MaxInFlight)
	assert.Equal(t, 5, cfg.Engine.MaxRetries)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing api key", map[string]string{}, "LLM API key is required"},
		{"unknown provider", map[string]string{"LLM_PROVIDER": "other"}, "unsupported LLM provider"},
		{"unknown store", map[string]string{"LLM_PROVIDER": "mock", "STORE_BACKEND": "sqlite"}, "unsupported store backend"},
		{"unknown events", map[string]string{"LLM_PROVIDER": "mock", "EVENTS_BACKEND": "kafka"}, "unsupported events backend"},
		{"bad port", map[string]string{"LLM_PROVIDER": "mock", "DOCGEN_HTTP_PORT": "70000"}, "invalid HTTP port"},
		{"bad log level", map[string]string{"LLM_PROVIDER": "mock", "LOG_LEVEL": "trace"}, "invalid log level"},
		{"no workers", map[string]string{"LLM_PROVIDER": "mock", "WORKER_POOL_SIZE": "0"}, "worker pool size"},
		{"no in flight", map[string]string{"LLM_PROVIDER": "mock", "ENGINE_MAX_IN_FLIGHT": "0"}, "max in flight"},
		{"unparsable", map[string]string{"LLM_PROVIDER": "mock", "ENGINE_NODE_TIMEOUT": "soon"}, "failed to parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.env)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParsePolicies(t *testing.T) {
	data := []byte(`
workflows:
  document_generation:
    max_in_flight: 2
    nodes:
      file_summarizer:
        timeout: 10m
        max_retries: 5
      change_analyzer:
        backoff_base: 500ms
`)
	policies, err := ParsePolicies(data)
	require.NoError(t, err)

	wf, ok := policies["document_generation"]
	require.True(t, ok)
	require.NotNil(t, wf.MaxInFlight)
	assert.Equal(t, 2, *wf.MaxInFlight)

	summarizer := wf.Nodes["file_summarizer"]
	require.NotNil(t, summarizer.Timeout)
	assert.Equal(t, 10*time.Minute, *summarizer.Timeout)
	require.NotNil(t, summarizer.MaxRetries)
	assert.Equal(t, 5, *summarizer.MaxRetries)
	assert.Nil(t, summarizer.BackoffBase)

	analyzer := wf.Nodes["change_analyzer"]
	require.NotNil(t, analyzer.BackoffBase)
	assert.Equal(t, 500*time.Millisecond, *analyzer.BackoffBase)
}

func TestParsePoliciesRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown field":      "workflows:\n  w:\n    retries: 3\n",
		"negative retries":   "workflows:\n  w:\n    nodes:\n      a:\n        max_retries: -1\n",
		"zero max in flight": "workflows:\n  w:\n    max_in_flight: 0\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePolicies([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadPolicies(t *testing.T) {
	policies, err := LoadPolicies("")
	require.NoError(t, err)
	assert.Nil(t, policies)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflows:\n  w:\n    max_in_flight: 3\n"), 0o600))
	policies, err = LoadPolicies(path)
	require.NoError(t, err)
	assert.Equal(t, 3, *policies["w"].MaxInFlight)

	_, err = LoadPolicies(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	empty, err := ParsePolicies(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
