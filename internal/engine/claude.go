package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Jojodayolo/testforge/internal/model"
)

// ClaudeClient implements ChatModel using the Anthropic Messages API.
type ClaudeClient struct {
	sdk       anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// ClaudeOption configures the Claude client.
type ClaudeOption func(*claudeConfig)

type claudeConfig struct {
	model     anthropic.Model
	maxTokens int64
	reqOpts   []option.RequestOption
}

// WithClaudeModel sets the model name.
func WithClaudeModel(model string) ClaudeOption {
	return func(c *claudeConfig) {
		if model != "" {
			c.model = anthropic.Model(model)
		}
	}
}

// WithClaudeMaxTokens sets the response token ceiling (default: 4096).
func WithClaudeMaxTokens(n int64) ClaudeOption {
	return func(c *claudeConfig) { c.maxTokens = n }
}

// WithClaudeRequestOptions passes extra SDK options, e.g. option.WithBaseURL.
func WithClaudeRequestOptions(opts ...option.RequestOption) ClaudeOption {
	return func(c *claudeConfig) { c.reqOpts = append(c.reqOpts, opts...) }
}

// NewClaudeClient creates a new Anthropic Claude model client.
func NewClaudeClient(apiKey string, opts ...ClaudeOption) *ClaudeClient {
	cfg := &claudeConfig{
		model:     anthropic.ModelClaudeSonnet4_20250514,
		maxTokens: 4096,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, cfg.reqOpts...)
	return &ClaudeClient{
		sdk:       anthropic.NewClient(reqOpts...),
		model:     cfg.model,
		maxTokens: cfg.maxTokens,
	}
}

// Chat sends the conversation to the Messages API and returns the text of the reply.
// The SDK retries transient failures itself.
func (c *ClaudeClient) Chat(ctx context.Context, system string, msgs []ChatMessage) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range msgs {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == model.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude: %w", err)
	}

	var parts []string
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, text.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("claude: no text content in response")
	}
	return strings.Join(parts, ""), nil
}
