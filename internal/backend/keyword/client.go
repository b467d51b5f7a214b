// Package keyword implements lexical search against the standalone
// keyword-search HTTP service that serves the pre-built inverted indexes.
package keyword

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
	DefaultEndpoint = "http://localhost:7700"
	DefaultTimeout  = 10 * time.Second
)

// Config holds configuration for the keyword-search client.
type Config struct {
	// Endpoint is the service base URL.
	Endpoint string

	// Timeout is the per-request timeout.
	Timeout time.Duration
}

// DefaultConfig returns default keyword-search configuration.
func DefaultConfig() Config {
	return Config{Endpoint: DefaultEndpoint, Timeout: DefaultTimeout}
}

// Client is the keyword-search service client.
type Client struct {
	client   *http.Client
	config   Config
	endpoint string

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time.
var _ backend.LexicalSearcher = (*Client)(nil)

// New creates a keyword-search client.
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

// searchRequest is the JSON body of POST /indexes/{name}/search.
type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
	Fuzzy bool   `json:"fuzzy,omitempty"`
}

// searchResponse is the JSON response of an index search. Payload carries
// the indexed document including any highlighted snippet field.
type searchResponse struct {
	Hits []struct {
		Score   float64         `json:"score"`
		Payload json.RawMessage `json:"payload"`
	} `json:"hits"`
	Took int64 `json:"took_ms"`
}

// LexicalSearch queries one inverted index. A missing index maps to
// backend.ErrIndexNotReady.
func (c *Client) LexicalSearch(ctx context.Context, q backend.LexicalQuery) ([]backend.Hit, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, fmt.Errorf("keyword client is closed")
	}
	c.mu.RUnlock()

	if q.Query == "" {
		return []backend.Hit{}, nil
	}

	start := time.Now()

	jsonData, err := json.Marshal(searchRequest{Query: q.Query, Limit: q.Limit, Fuzzy: q.Fuzzy})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/indexes/%s/search", c.endpoint, q.Index)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("index %q: %w", q.Index, backend.ErrIndexNotReady)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("keyword search failed (status %d): %s", resp.StatusCode, string(body))
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]backend.Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, backend.Hit{Payload: h.Payload, Score: h.Score})
	}

	slog.Debug("keyword_search",
		slog.String("index", q.Index),
		slog.Int("hits", len(hits)),
		slog.Int64("server_ms", result.Took),
		slog.Duration("took", time.Since(start)))

	return hits, nil
}

// Available checks whether the keyword-search service is reachable.
func (c *Client) Available(ctx context.Context) bool {
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
