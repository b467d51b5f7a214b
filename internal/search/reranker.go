package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// RerankStrategy selects the second-pass reordering method.
type RerankStrategy string

const (
	// RerankNone passes candidates through unchanged.
	RerankNone RerankStrategy = "none"

	// RerankCrossEncoder batches rendered texts to an external pairwise
	// reranking endpoint.
	RerankCrossEncoder RerankStrategy = "cross_encoder"

	// RerankLLMPrompt serializes candidates as a numbered list inside a
	// ranking prompt and asks an LLM for a permutation.
	RerankLLMPrompt RerankStrategy = "llm_prompt"
)

// ParseRerankStrategy validates a caller-supplied strategy name.
func ParseRerankStrategy(s string) (RerankStrategy, error) {
	switch RerankStrategy(s) {
	case RerankNone, RerankCrossEncoder, RerankLLMPrompt:
		return RerankStrategy(s), nil
	case "":
		return RerankNone, nil
	}
	return "", fmt.Errorf("unknown rerank strategy %q", s)
}

// RerankOutcome reports how a reranking round ended. Order is always a
// full permutation of the input documents: when the service omits or
// mangles part of its response, the unparsed remainder keeps its
// original relative order. Reranking is an enhancement, never a hard
// dependency: timeout and transport errors produce the identity
// permutation with the corresponding flag set.
type RerankOutcome struct {
	Order    []int
	Skipped  bool
	TimedOut bool
}

// Reranker orchestrates one reranking strategy with a hard timeout.
type Reranker struct {
	strategy RerankStrategy
	cross    PairReranker
	llm      Completer
	timeout  time.Duration
}

// NewReranker builds a reranker. cross is required for RerankCrossEncoder,
// llm for RerankLLMPrompt; a missing dependency degrades the strategy to
// RerankNone at call time.
func NewReranker(strategy RerankStrategy, cross PairReranker, llm Completer, timeout time.Duration) *Reranker {
	if timeout <= 0 {
		timeout = DefaultTimeouts().Rerank
	}
	return &Reranker{strategy: strategy, cross: cross, llm: llm, timeout: timeout}
}

// Strategy returns the configured strategy.
func (r *Reranker) Strategy() RerankStrategy {
	if r == nil {
		return RerankNone
	}
	return r.strategy
}

// Rerank reorders documents by relevance to query and returns the
// resulting permutation. len(outcome.Order) always equals len(documents).
func (r *Reranker) Rerank(ctx context.Context, query string, documents []string) RerankOutcome {
	identity := identityOutcome(len(documents))

	if r == nil || r.strategy == RerankNone || len(documents) < 2 {
		return identity
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		order []int
		err   error
	)
	switch r.strategy {
	case RerankCrossEncoder:
		if r.cross == nil {
			return identity
		}
		order, err = r.crossEncoderOrder(callCtx, query, documents)
	case RerankLLMPrompt:
		if r.llm == nil {
			return identity
		}
		order, err = r.llmPromptOrder(callCtx, query, documents)
	default:
		return identity
	}

	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded)
		slog.Warn("reranking skipped, keeping original order",
			slog.String("sub_call", "rerank"),
			slog.String("strategy", string(r.strategy)),
			slog.Bool("timed_out", timedOut),
			slog.String("error", err.Error()))
		identity.Skipped = true
		identity.TimedOut = timedOut
		return identity
	}

	return RerankOutcome{Order: padOrder(order, len(documents))}
}

// crossEncoderOrder asks the pairwise endpoint for a permutation of all
// documents.
func (r *Reranker) crossEncoderOrder(ctx context.Context, query string, documents []string) ([]int, error) {
	ranked, err := r.cross.Rerank(ctx, query, documents, len(documents))
	if err != nil {
		return nil, err
	}

	order := make([]int, 0, len(ranked))
	for _, ri := range ranked {
		order = append(order, ri.Index)
	}
	return order, nil
}

// llmRankPrompt asks for a JSON array of document numbers, best first.
const llmRankPrompt = `You are ranking retrieved texts by relevance to a query.

Query: %s

Documents:
%s

Respond with ONLY a JSON array of document numbers ordered from most to least relevant, e.g. [2,1,3]. Include every number exactly once.`

// llmPromptOrder serializes documents as a numbered list and parses the
// returned permutation defensively: any malformed or partial response
// falls back to original order for the unparsed remainder.
func (r *Reranker) llmPromptOrder(ctx context.Context, query string, documents []string) ([]int, error) {
	var b strings.Builder
	for i, doc := range documents {
		fmt.Fprintf(&b, "%d. %s\n", i+1, truncateDoc(doc, 500))
	}

	raw, err := r.llm.Complete(ctx, fmt.Sprintf(llmRankPrompt, query, b.String()))
	if err != nil {
		return nil, err
	}

	return parseNumberOrder(raw), nil
}

// parseNumberOrder extracts 1-based document numbers from an LLM
// response, dropping anything out of range or repeated. Returns the
// 0-based prefix of the permutation; callers pad the remainder.
func parseNumberOrder(raw string) []int {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil
	}

	var numbers []int
	if err := json.Unmarshal([]byte(raw[start:end+1]), &numbers); err != nil {
		return nil
	}

	order := make([]int, 0, len(numbers))
	for _, n := range numbers {
		order = append(order, n-1)
	}
	return order
}

// padOrder turns a possibly partial, possibly dirty index list into a
// full permutation of n documents: invalid and duplicate indices are
// dropped, and every index the service omitted is appended in original
// order.
func padOrder(order []int, n int) []int {
	seen := make([]bool, n)
	out := make([]int, 0, n)

	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			out = append(out, i)
		}
	}
	return out
}

func identityOutcome(n int) RerankOutcome {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return RerankOutcome{Order: order}
}

// truncateDoc bounds per-document prompt size.
func truncateDoc(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "…"
}
