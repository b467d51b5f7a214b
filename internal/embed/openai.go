package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI client defaults.
const (
	DefaultEndpoint   = "https://api.openai.com/v1"
	DefaultModel      = "text-embedding-3-small"
	DefaultDimensions = 1536
)

// OpenAIConfig holds configuration for the OpenAI-compatible embedding
// client. Any server speaking the OpenAI embeddings API works.
type OpenAIConfig struct {
	APIKey     string
	Endpoint   string
	Model      string
	Dimensions int
}

// DefaultOpenAIConfig returns default embedding configuration.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Endpoint:   DefaultEndpoint,
		Model:      DefaultModel,
		Dimensions: DefaultDimensions,
	}
}

// OpenAIEmbedder generates embeddings through an OpenAI-compatible API.
type OpenAIEmbedder struct {
	client *openai.Client
	config OpenAIConfig
}

// Verify interface implementation at compile time.
var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedding client.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.Endpoint
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
	}, nil
}

// Embed returns the embedding of text. Exactly one request is made per
// call: a failure degrades the query to keyword-only retrieval, and a
// retry would eat into the orchestrator's embedding budget.
func (p *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	start := time.Now()
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.config.Model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	slog.Debug("embedding_generated",
		slog.String("model", p.config.Model),
		slog.Int("dimensions", len(resp.Data[0].Embedding)),
		slog.Duration("took", time.Since(start)))
	return resp.Data[0].Embedding, nil
}

// Dimensions returns the configured embedding dimensionality.
func (p *OpenAIEmbedder) Dimensions() int {
	return p.config.Dimensions
}

// ModelName returns the model identifier.
func (p *OpenAIEmbedder) ModelName() string {
	return p.config.Model
}
