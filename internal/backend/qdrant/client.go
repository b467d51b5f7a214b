// Package qdrant implements vector search against a Qdrant HTTP endpoint.
// Only the points/search surface is used; collections are created and
// populated by the offline indexing pipeline.
package qdrant

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

	"github.com/maktaba-search/maktaba/internal/backend"
)

// Client defaults.
const (
	DefaultEndpoint = "http://localhost:6333"
	DefaultTimeout  = 10 * time.Second
)

// Config holds configuration for the Qdrant client.
type Config struct {
	// Endpoint is the Qdrant base URL.
	Endpoint string

	// APIKey is sent as the api-key header when non-empty.
	APIKey string

	// Timeout is the per-request timeout.
	Timeout time.Duration
}

// DefaultConfig returns default Qdrant configuration.
func DefaultConfig() Config {
	return Config{Endpoint: DefaultEndpoint, Timeout: DefaultTimeout}
}

// Client is a minimal Qdrant search client.
type Client struct {
	client   *http.Client
	config   Config
	endpoint string

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time.
var _ backend.VectorSearcher = (*Client)(nil)

// New creates a Qdrant client.
func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     60 * time.Second,
		},
	}

	return &Client{client: client, config: cfg, endpoint: cfg.Endpoint}
}

// searchRequest is the JSON body of POST /collections/{name}/points/search.
type searchRequest struct {
	Vector         []float32       `json:"vector"`
	Limit          int             `json:"limit"`
	ScoreThreshold float64         `json:"score_threshold,omitempty"`
	WithPayload    bool            `json:"with_payload"`
	Filter         json.RawMessage `json:"filter,omitempty"`
}

// searchResponse is the JSON response of a points search.
type searchResponse struct {
	Result []struct {
		Score   float64         `json:"score"`
		Payload json.RawMessage `json:"payload"`
	} `json:"result"`
	Status json.RawMessage `json:"status"`
}

// VectorSearch queries one collection by similarity. A missing collection
// maps to backend.ErrIndexNotReady so callers can distinguish "not built"
// from "no matches".
func (c *Client) VectorSearch(ctx context.Context, q backend.VectorQuery) ([]backend.Hit, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, fmt.Errorf("qdrant client is closed")
	}
	c.mu.RUnlock()

	if len(q.Vector) == 0 {
		return []backend.Hit{}, nil
	}

	start := time.Now()

	reqBody := searchRequest{
		Vector:         q.Vector,
		Limit:          q.Limit,
		ScoreThreshold: q.ScoreThreshold,
		WithPayload:    true,
	}
	if len(q.Filter) > 0 {
		filter, err := buildFilter(q.Filter)
		if err != nil {
			return nil, fmt.Errorf("build filter: %w", err)
		}
		reqBody.Filter = filter
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/collections/%s/points/search", c.endpoint, q.Collection)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("api-key", c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("collection %q: %w", q.Collection, backend.ErrIndexNotReady)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vector search failed (status %d): %s", resp.StatusCode, string(body))
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]backend.Hit, 0, len(result.Result))
	for _, r := range result.Result {
		hits = append(hits, backend.Hit{Payload: r.Payload, Score: r.Score})
	}

	slog.Debug("qdrant_search",
		slog.String("collection", q.Collection),
		slog.Int("hits", len(hits)),
		slog.Duration("took", time.Since(start)))

	return hits, nil
}

// buildFilter translates field-equality constraints to Qdrant's match
// filter syntax.
func buildFilter(fields map[string]string) (json.RawMessage, error) {
	type match struct {
		Key   string `json:"key"`
		Match struct {
			Value string `json:"value"`
		} `json:"match"`
	}
	var must []match
	for k, v := range fields {
		m := match{Key: k}
		m.Match.Value = v
		must = append(must, m)
	}
	return json.Marshal(map[string]any{"must": must})
}

// Available checks whether the Qdrant server is reachable.
func (c *Client) Available(ctx context.Context) bool {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	c.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, c.endpoint+"/readyz", nil)
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
func (c *Client) Close() error {
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
