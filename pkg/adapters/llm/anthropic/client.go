package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// statusOverloaded is returned by the API when it is temporarily overloaded
const statusOverloaded = 529

// Client implements ports.Invoker against the Anthropic Messages API.
// Retries are left to the workflow engine, so the SDK's own retries are
// disabled.
type Client struct {
	client anthropic.Client
	logger *zap.Logger
}

// NewClient creates a new Anthropic client
func NewClient(apiKey string, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, domain.NewConfigurationError("anthropic", errors.New("API key is required"))
	}

	return &Client{
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		),
		logger: logger,
	}, nil
}

// Invoke sends a single user message and returns the concatenated text of
// the reply
func (c *Client) Invoke(ctx context.Context, req *ports.InvokeRequest) (*ports.InvokeResult, error) {
	if req.Model == "" {
		return nil, domain.NewConfigurationError(req.Tool, errors.New("model is required"))
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, domain.NewInvalidInputError(req.Tool, errors.New("prompt is empty"))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	var opts []option.RequestOption
	if req.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(req.Timeout))
	}

	start := time.Now()
	msg, err := c.client.Messages.New(ctx, params, opts...)
	if err != nil {
		c.logger.Debug("anthropic request failed",
			zap.String("tool", req.Tool),
			zap.String("model", req.Model),
			zap.Error(err))
		return nil, classify(req.Tool, err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, domain.NewInvalidOutputError(req.Tool, errors.New("response contains no text"))
	}

	return &ports.InvokeResult{
		Content:      text.String(),
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		Duration:     time.Since(start),
	}, nil
}

// classify maps SDK and transport failures onto error classes
func classify(tool string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		wrapped := fmt.Errorf("anthropic API status %d: %w", apiErr.StatusCode, err)
		switch classifyStatus(apiErr.StatusCode) {
		case domain.ErrorClassTransient:
			return domain.NewTransientError(tool, wrapped)
		case domain.ErrorClassInvalidInput:
			return domain.NewInvalidInputError(tool, wrapped)
		case domain.ErrorClassConfiguration:
			return domain.NewConfigurationError(tool, wrapped)
		default:
			return wrapped
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTransientError(tool, err)
	}
	return err
}

// classifyStatus maps an HTTP status code to an error class
func classifyStatus(code int) domain.ErrorClass {
	switch {
	case code == http.StatusTooManyRequests,
		code == http.StatusRequestTimeout,
		code == statusOverloaded,
		code >= http.StatusInternalServerError:
		return domain.ErrorClassTransient
	case code == http.StatusBadRequest,
		code == http.StatusRequestEntityTooLarge,
		code == http.StatusUnprocessableEntity:
		return domain.ErrorClassInvalidInput
	case code == http.StatusUnauthorized,
		code == http.StatusForbidden,
		code == http.StatusNotFound:
		return domain.ErrorClassConfiguration
	default:
		return domain.ErrorClassUnclassified
	}
}
