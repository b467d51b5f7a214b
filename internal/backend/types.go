// Package backend defines the capability interfaces this engine consumes:
// nearest-neighbor vector search and ranked keyword search over pre-built
// indexes. The indexes themselves are built elsewhere; this core only
// queries them. Remote implementations live in the qdrant and keyword
// subpackages, snapshot-backed local implementations in local.
package backend

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrIndexNotReady is returned when a backend reports that the target
// collection or index does not exist. Callers surface this as a distinct
// "service unavailable" condition so "not ready" is never mistaken for
// "no results".
var ErrIndexNotReady = errors.New("index not initialized")

// Hit is one scored document from either backend. The payload is decoded
// by the per-corpus adapter; backends treat it as opaque.
type Hit struct {
	Payload json.RawMessage
	Score   float64
}

// VectorQuery describes one nearest-neighbor lookup.
type VectorQuery struct {
	// Collection names the embedding index to search.
	Collection string

	// Vector is the query embedding.
	Vector []float32

	Limit int

	// ScoreThreshold is a similarity floor applied server-side.
	ScoreThreshold float64

	// Filter optionally restricts matches by payload field equality.
	Filter map[string]string
}

// LexicalQuery describes one ranked keyword lookup.
type LexicalQuery struct {
	// Index names the inverted index to search.
	Index string

	Query string
	Limit int

	// Fuzzy enables approximate term matching where the backend supports it.
	Fuzzy bool
}

// VectorSearcher is a pre-built embedding index queried by similarity.
// Scores are similarity in [0,1] or a comparable monotonic range.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, q VectorQuery) ([]Hit, error)
}

// LexicalSearcher is a pre-built inverted index queried by keywords.
// Scores are unbounded BM25-like relevance scores.
type LexicalSearcher interface {
	LexicalSearch(ctx context.Context, q LexicalQuery) ([]Hit, error)
}
