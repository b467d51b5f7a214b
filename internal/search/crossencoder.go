package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Cross-encoder reranking service defaults.
const (
	DefaultCrossEncoderEndpoint = "http://localhost:9659"
	DefaultCrossEncoderModel    = "reranker-small"
	DefaultCrossEncoderTimeout  = 20 * time.Second
)

// CrossEncoderConfig holds configuration for the cross-encoder client.
type CrossEncoderConfig struct {
	// Endpoint is the reranking server base URL.
	Endpoint string

	// Model is the reranker model alias.
	Model string

	// Timeout is the request timeout.
	Timeout time.Duration
}

// DefaultCrossEncoderConfig returns default cross-encoder configuration.
func DefaultCrossEncoderConfig() CrossEncoderConfig {
	return CrossEncoderConfig{
		Endpoint: DefaultCrossEncoderEndpoint,
		Model:    DefaultCrossEncoderModel,
		Timeout:  DefaultCrossEncoderTimeout,
	}
}

// CrossEncoder calls an external pairwise reranking endpoint over HTTP.
type CrossEncoder struct {
	client   *http.Client
	config   CrossEncoderConfig
	endpoint string

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time.
var _ PairReranker = (*CrossEncoder)(nil)

// NewCrossEncoder creates a cross-encoder reranking client.
func NewCrossEncoder(cfg CrossEncoderConfig) *CrossEncoder {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultCrossEncoderEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultCrossEncoderModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCrossEncoderTimeout
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	return &CrossEncoder{client: client, config: cfg, endpoint: cfg.Endpoint}
}

// rerankRequest is the JSON request to the /rerank endpoint.
type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopN      int      `json:"top_n,omitempty"`
}

// rerankResponse is the JSON response from the /rerank endpoint.
type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
	Model            string  `json:"model"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// Rerank scores documents against the query and returns (index, score)
// pairs sorted by score descending.
func (c *CrossEncoder) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RankedIndex, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, fmt.Errorf("cross-encoder client is closed")
	}
	c.mu.RUnlock()

	if len(documents) == 0 {
		return []RankedIndex{}, nil
	}

	start := time.Now()

	reqBody := rerankRequest{
		Query:     query,
		Documents: documents,
		Model:     c.config.Model,
	}
	if topN > 0 {
		reqBody.TopN = topN
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint+"/rerank", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank failed (status %d): %s", resp.StatusCode, string(body))
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	ranked := make([]RankedIndex, len(result.Results))
	for i, r := range result.Results {
		ranked[i] = RankedIndex{Index: r.Index, Score: r.Score}
	}

	slog.Debug("cross_encoder_rerank",
		slog.Int("doc_count", len(documents)),
		slog.Int("returned", len(ranked)),
		slog.Duration("total", time.Since(start)),
		slog.Float64("server_time_ms", result.ProcessingTimeMs))

	return ranked, nil
}

// Available checks if the reranking service is reachable.
func (c *CrossEncoder) Available(ctx context.Context) bool {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	c.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (c *CrossEncoder) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if transport, ok := c.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}
