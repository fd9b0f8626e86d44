package llm

import (
	"fmt"
	"time"

	"github.com/aescanero/docgen/pkg/adapters/llm/anthropic"
	"github.com/aescanero/docgen/pkg/adapters/llm/mock"
	"github.com/aescanero/docgen/pkg/ports"
	"go.uber.org/zap"
)

// Config holds LLM client configuration
type Config struct {
	Provider string
	APIKey   string

	Model          string
	MaxTokens      int
	Temperature    float64
	RequestTimeout time.Duration

	// RequestsPerSecond limits calls across all runs; zero disables it
	RequestsPerSecond float64
	Burst             int

	Metrics ports.MetricsCollector
	Logger  *zap.Logger
}

// NewInvoker creates a rate limited, instrumented invoker for the
// configured provider
func NewInvoker(cfg *Config) (*ThrottledInvoker, error) {
	var next ports.Invoker
	switch cfg.Provider {
	case "anthropic":
		client, err := anthropic.NewClient(cfg.APIKey, cfg.Logger)
		if err != nil {
			return nil, err
		}
		next = client
	case "mock":
		next = mock.New()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	cfg.Logger.Info("LLM invoker configured",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Float64("requests_per_second", cfg.RequestsPerSecond))

	return NewThrottledInvoker(next, Defaults{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.RequestTimeout,
	}, cfg.RequestsPerSecond, cfg.Burst, cfg.Metrics, cfg.Logger), nil
}
