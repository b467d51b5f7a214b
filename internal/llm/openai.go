// Package llm provides the single-turn completion client used by query
// expansion and LLM-prompt reranking. Any OpenAI-compatible chat API
// works; the engine treats completions as best-effort and degrades on
// failure.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Client defaults.
const (
	DefaultEndpoint    = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.3
)

// Config holds configuration for the completion client.
type Config struct {
	APIKey      string
	Endpoint    string
	Model       string
	MaxTokens   int
	Temperature float32
}

// DefaultConfig returns default completion configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:    DefaultEndpoint,
		Model:       DefaultModel,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// Client is a single-turn chat completion client.
type Client struct {
	client *openai.Client
	config Config
}

// New creates a completion client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.Endpoint
	return &Client{client: openai.NewClientWithConfig(clientCfg), config: cfg}, nil
}

// Complete sends prompt as a single user message and returns the model's
// text response.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	slog.Debug("llm_completion",
		slog.String("model", c.config.Model),
		slog.Int("prompt_len", len(prompt)),
		slog.Duration("took", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}
