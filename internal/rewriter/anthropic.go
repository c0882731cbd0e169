package rewriter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const DefaultAnthropicModel = anthropic.ModelClaude3_7SonnetLatest

// AnthropicCompleter talks to the Messages API.
type AnthropicCompleter struct {
	client      anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	temperature float64
	logger      *zap.Logger
}

// NewAnthropicCompleter builds a client for the Messages API. An empty
// baseURL keeps the SDK default; extra options are applied last.
func NewAnthropicCompleter(apiKey, baseURL, model string, maxTokens int, temperature float64, logger *zap.Logger, opts ...option.RequestOption) *AnthropicCompleter {
	m := anthropic.Model(model)
	if model == "" {
		m = DefaultAnthropicModel
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	clientOpts = append(clientOpts, opts...)
	return &AnthropicCompleter{
		client:      anthropic.NewClient(clientOpts...),
		model:       m,
		maxTokens:   int64(maxTokens),
		temperature: temperature,
		logger:      logger,
	}
}

func (c *AnthropicCompleter) Name() string {
	return "anthropic"
}

func (c *AnthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return "", err
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("anthropic: response had no text")
	}
	c.logger.Debug("Anthropic completion",
		zap.String("model", string(c.model)),
		zap.Int64("output_tokens", msg.Usage.OutputTokens))
	return strings.TrimSpace(b.String()), nil
}
