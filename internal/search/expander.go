package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Expansion defaults.
const (
	// DefaultExpansionCount is how many alternate phrasings are requested
	// per expansion.
	DefaultExpansionCount = 3

	// DefaultOriginalWeight is the fusion weight of the user's own query.
	DefaultOriginalWeight = 1.0

	// DefaultAnswerWeight is the fusion weight of the predicted-answer
	// alternate.
	DefaultAnswerWeight = 0.85

	// DefaultAlternateWeight is the fusion weight of rephrased alternates.
	DefaultAlternateWeight = 0.7

	// DefaultExpansionCacheSize bounds the expansion cache.
	DefaultExpansionCacheSize = 512

	// DefaultExpansionCacheTTL expires cached expansions. Unbounded
	// growth in a long-lived process is a correctness risk, so the cache
	// is an explicit bounded LRU with TTL rather than ambient state.
	DefaultExpansionCacheTTL = 15 * time.Minute

	// reasonOriginal tags the user's own query in the expanded set.
	reasonOriginal = "Original query"
)

// ExpanderConfig configures query expansion.
type ExpanderConfig struct {
	Count           int
	OriginalWeight  float64
	AnswerWeight    float64
	AlternateWeight float64
	CacheSize       int
	CacheTTL        time.Duration
	Timeout         time.Duration
}

// DefaultExpanderConfig returns sensible expansion defaults.
func DefaultExpanderConfig() ExpanderConfig {
	return ExpanderConfig{
		Count:           DefaultExpansionCount,
		OriginalWeight:  DefaultOriginalWeight,
		AnswerWeight:    DefaultAnswerWeight,
		AlternateWeight: DefaultAlternateWeight,
		CacheSize:       DefaultExpansionCacheSize,
		CacheTTL:        DefaultExpansionCacheTTL,
		Timeout:         DefaultTimeouts().Expand,
	}
}

// Expander asks an LLM for alternative phrasings and predicted-answer
// snippets of a query. Results are cached per verbatim query string in a
// bounded, expiring LRU shared across requests.
type Expander struct {
	completer Completer
	cache     *expirable.LRU[string, []ExpandedQuery]
	cfg       ExpanderConfig
}

// NewExpander creates an expander backed by the given completer.
func NewExpander(completer Completer, cfg ExpanderConfig) *Expander {
	if cfg.Count <= 0 {
		cfg.Count = DefaultExpansionCount
	}
	if cfg.OriginalWeight <= 0 {
		cfg.OriginalWeight = DefaultOriginalWeight
	}
	if cfg.AnswerWeight <= 0 {
		cfg.AnswerWeight = DefaultAnswerWeight
	}
	if cfg.AlternateWeight <= 0 {
		cfg.AlternateWeight = DefaultAlternateWeight
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultExpansionCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultExpansionCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeouts().Expand
	}

	return &Expander{
		completer: completer,
		cache:     expirable.NewLRU[string, []ExpandedQuery](cfg.CacheSize, nil, cfg.CacheTTL),
		cfg:       cfg,
	}
}

// expansionPrompt requests a strict JSON-array-of-strings response: the
// first element predicts literal answer text, the rest rephrase or
// translate the query.
const expansionPrompt = `You help retrieve classical Arabic texts. Given a search query, produce %d alternative search strings:
1. The first must be a short prediction of the literal Arabic text that would answer the query.
2. The rest must rephrase or translate the query into Arabic phrasings a classical text would use.

Respond with ONLY a JSON array of %d strings. No commentary, no code fences.

Query: %s`

// Expand returns the expanded query set for q: the original query first
// (weight = configured original weight), then each successful alternate
// with its reason tag and weight. Any failure degrades silently to the
// original query alone. Only successful expansions are cached: a
// transient completion failure must not suppress expansion for the
// cache TTL, so the degraded original-only set is recomputed per call.
func (x *Expander) Expand(ctx context.Context, q string) []ExpandedQuery {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil
	}

	if cached, ok := x.cache.Get(q); ok {
		return cloneExpanded(cached)
	}

	expanded := []ExpandedQuery{{Query: q, Weight: x.cfg.OriginalWeight, Reason: reasonOriginal}}

	alternates := x.requestAlternates(ctx, q)
	for i, alt := range alternates {
		eq := ExpandedQuery{Query: alt, Weight: x.cfg.AlternateWeight, Reason: fmt.Sprintf("Rephrased query %d", i+1)}
		if i == 0 {
			eq.Weight = x.cfg.AnswerWeight
			eq.Reason = "Predicted answer text"
		}
		expanded = append(expanded, eq)
	}

	if len(alternates) > 0 {
		x.cache.Add(q, expanded)
	}
	return cloneExpanded(expanded)
}

// requestAlternates issues the completion and parses the response
// defensively. Returns nil on any failure.
func (x *Expander) requestAlternates(ctx context.Context, q string) []string {
	if x.completer == nil {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, x.cfg.Timeout)
	defer cancel()

	raw, err := x.completer.Complete(callCtx, fmt.Sprintf(expansionPrompt, x.cfg.Count, x.cfg.Count, q))
	if err != nil {
		slog.Warn("query expansion failed, using original query only",
			slog.String("sub_call", "expansion_completion"),
			slog.String("error", err.Error()))
		return nil
	}

	alternates := parseStringArray(raw)
	if len(alternates) == 0 {
		slog.Warn("query expansion returned no usable alternates",
			slog.String("sub_call", "expansion_parse"))
		return nil
	}

	// Drop alternates identical to the original; they add no coverage.
	out := alternates[:0]
	for _, alt := range alternates {
		alt = strings.TrimSpace(alt)
		if alt == "" || alt == q {
			continue
		}
		out = append(out, alt)
	}
	if len(out) > x.cfg.Count {
		out = out[:x.cfg.Count]
	}
	return out
}

// parseStringArray extracts a JSON array of strings from an LLM response,
// tolerating code fences and surrounding prose.
func parseStringArray(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil
	}

	var parsed []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil
	}
	return parsed
}

// cloneExpanded guards cached slices against caller mutation.
func cloneExpanded(in []ExpandedQuery) []ExpandedQuery {
	out := make([]ExpandedQuery, len(in))
	copy(out, in)
	return out
}
