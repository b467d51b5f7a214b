// Package search implements hybrid retrieval across the three corpora:
// a dense semantic search and a sparse lexical search are issued
// concurrently, their results fused into one deduplicated ranking, and
// optionally reranked by an external cross-encoder or LLM. Reciprocal
// Rank Fusion (RRF) is used only as a sort tiebreak, never as the
// displayed score.
package search

import (
	"context"
	"time"
)

// Item wraps a corpus payload with the retrieval evidence that produced
// it. At least one of SemanticRank / KeywordRank is set (1-based);
// construct items only through SemanticItem and KeywordItem so an item
// with neither rank can never exist.
type Item[T any] struct {
	Payload T

	// SemanticRank is the 1-based position in the vector backend's list,
	// 0 when the item was not returned by semantic search.
	SemanticRank int

	// SemanticScore is the raw similarity score from the vector backend.
	SemanticScore float64

	// KeywordRank is the 1-based position in the lexical backend's list,
	// 0 when the item was not returned by keyword search.
	KeywordRank int

	// KeywordScore is the raw BM25-like score from the lexical backend.
	KeywordScore float64
}

// SemanticItem constructs an item returned by the vector backend.
// rank is 1-based.
func SemanticItem[T any](payload T, rank int, score float64) Item[T] {
	return Item[T]{Payload: payload, SemanticRank: rank, SemanticScore: score}
}

// KeywordItem constructs an item returned by the lexical backend.
// rank is 1-based.
func KeywordItem[T any](payload T, rank int, score float64) Item[T] {
	return Item[T]{Payload: payload, KeywordRank: rank, KeywordScore: score}
}

// InBoth reports whether both retrieval methods returned this item.
func (it Item[T]) InBoth() bool {
	return it.SemanticRank > 0 && it.KeywordRank > 0
}

// Fused is an Item augmented with its fused relevance score. Created by
// Fuse, consumed by the merger, reranker, or orchestrator; never persisted.
type Fused[T any] struct {
	Item[T]

	// FusedScore is the single relevance number the result is sorted by.
	FusedScore float64

	// RRFScore is the pure rank-based score, used only as a tiebreak.
	RRFScore float64

	// SourceQueries records which expanded query indices produced this
	// item (refine mode only; empty in standard mode).
	SourceQueries []int
}

// ExpandedQuery is one phrasing of the user's query produced by the
// expansion service. Element 0 is always the original query.
type ExpandedQuery struct {
	Query  string  `json:"query"`
	Weight float64 `json:"weight"`
	Reason string  `json:"reason"`
}

// WeightedResults is one expanded query's fused result list for a single
// corpus, consumed only by MergeWeighted.
type WeightedResults[T any] struct {
	Results []Fused[T]
	Weight  float64

	// QueryIndex is the position of the producing query in the expanded
	// set (0 = original).
	QueryIndex int
}

// Completer is a single-turn LLM completion used by query expansion and
// LLM-prompt reranking. Implementations return an error on any failure;
// callers degrade rather than retry.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// PairReranker is a cross-encoder batch reranking service.
type PairReranker interface {
	// Rerank scores documents against the query and returns (index, score)
	// pairs sorted by score descending. topN caps the response size;
	// 0 returns all.
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RankedIndex, error)
}

// RankedIndex is one entry of a reranking response: the original position
// of the document and its relevance score.
type RankedIndex struct {
	Index int
	Score float64
}

// Timeouts carries the per-call deadlines for external dependencies.
type Timeouts struct {
	// Embed bounds a single query-embedding call.
	Embed time.Duration

	// Rerank bounds one reranking round trip; model-dependent.
	Rerank time.Duration

	// Expand bounds the query-expansion completion.
	Expand time.Duration
}

// DefaultTimeouts returns the deadlines used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Embed:  5 * time.Second,
		Rerank: 20 * time.Second,
		Expand: 15 * time.Second,
	}
}
