package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Defaults fill request fields left at zero
type Defaults struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// ThrottledInvoker wraps an invoker with request defaults, a shared rate
// limit and invocation metrics
type ThrottledInvoker struct {
	next     ports.Invoker
	defaults Defaults
	limiter  *rate.Limiter
	metrics  ports.MetricsCollector
	logger   *zap.Logger
}

// NewThrottledInvoker creates a new throttled invoker. A non-positive rps
// disables rate limiting; metrics may be nil.
func NewThrottledInvoker(next ports.Invoker, defaults Defaults, rps float64, burst int, metrics ports.MetricsCollector, logger *zap.Logger) *ThrottledInvoker {
	var limiter *rate.Limiter
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &ThrottledInvoker{
		next:     next,
		defaults: defaults,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger,
	}
}

// Invoke waits for the rate limiter and forwards the request
func (t *ThrottledInvoker) Invoke(ctx context.Context, req *ports.InvokeRequest) (*ports.InvokeResult, error) {
	r := *req
	if r.Model == "" {
		r.Model = t.defaults.Model
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = t.defaults.MaxTokens
	}
	if r.Temperature == 0 {
		r.Temperature = t.defaults.Temperature
	}
	if r.Timeout == 0 {
		r.Timeout = t.defaults.Timeout
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			t.record(&r, nil, err, 0)
			return nil, domain.NewTransientError(r.Tool, fmt.Errorf("rate limiter: %w", err))
		}
	}

	start := time.Now()
	res, err := t.next.Invoke(ctx, &r)
	latency := time.Since(start)
	t.record(&r, res, err, latency)

	if err != nil {
		t.logger.Debug("invocation failed",
			zap.String("tool", r.Tool),
			zap.String("model", r.Model),
			zap.Duration("latency", latency),
			zap.Error(err))
		return nil, err
	}

	t.logger.Debug("invocation succeeded",
		zap.String("tool", r.Tool),
		zap.String("model", res.Model),
		zap.Int("input_tokens", res.InputTokens),
		zap.Int("output_tokens", res.OutputTokens),
		zap.Duration("latency", latency))
	return res, nil
}

func (t *ThrottledInvoker) record(req *ports.InvokeRequest, res *ports.InvokeResult, err error, latency time.Duration) {
	if t.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(domain.Classify(err))
	}
	t.metrics.RecordInvocation(req.Tool, req.Model, outcome, latency)
	if res != nil {
		t.metrics.RecordTokens(res.Model, "input", res.InputTokens)
		t.metrics.RecordTokens(res.Model, "output", res.OutputTokens)
	}
}
