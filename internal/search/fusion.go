package search

import (
	"sort"
)

// Fusion defaults. The two weights deliberately sum to more than one so
// that items confirmed by both methods outrank items found by only one,
// even when the individual scores are moderate.
const (
	// DefaultSemanticWeight scales the raw similarity score.
	DefaultSemanticWeight = 0.8

	// DefaultKeywordWeight scales the normalized lexical score.
	DefaultKeywordWeight = 0.3

	// DefaultLexicalNormK is the half-point of the lexical score
	// normalization curve: a raw score equal to k maps to exactly 0.5.
	DefaultLexicalNormK = 5.0

	// DefaultRRFConstant is the standard RRF smoothing parameter.
	// k=60 is empirically validated across domains.
	DefaultRRFConstant = 60
)

// FusionConfig holds the tunable fusion parameters.
type FusionConfig struct {
	SemanticWeight float64
	KeywordWeight  float64
	LexicalNormK   float64
	RRFConstant    int
}

// DefaultFusionConfig returns the default fusion parameters.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		SemanticWeight: DefaultSemanticWeight,
		KeywordWeight:  DefaultKeywordWeight,
		LexicalNormK:   DefaultLexicalNormK,
		RRFConstant:    DefaultRRFConstant,
	}
}

func (c FusionConfig) withDefaults() FusionConfig {
	if c.SemanticWeight <= 0 {
		c.SemanticWeight = DefaultSemanticWeight
	}
	if c.KeywordWeight <= 0 {
		c.KeywordWeight = DefaultKeywordWeight
	}
	if c.LexicalNormK <= 0 {
		c.LexicalNormK = DefaultLexicalNormK
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = DefaultRRFConstant
	}
	return c
}

// NormalizeLexicalScore maps an unbounded, heavy-tailed BM25-like score
// into [0,1) via raw/(raw+k). Strictly increasing for raw > 0, with a
// stable midpoint: a score equal to k maps to exactly 0.5 regardless of
// the corpus's absolute score magnitudes.
func NormalizeLexicalScore(raw, k float64) float64 {
	if raw <= 0 {
		return 0
	}
	if k <= 0 {
		k = DefaultLexicalNormK
	}
	return raw / (raw + k)
}

// RRFScore sums 1/(K+rank) over the defined ranks. Ranks are 1-based
// throughout this package; 0 is the absent sentinel and contributes
// nothing, so 0-based ranks are unsupported. Used purely as a sort
// tiebreak.
func RRFScore(k int, ranks ...int) float64 {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	var s float64
	for _, r := range ranks {
		if r > 0 {
			s += 1.0 / float64(k+r)
		}
	}
	return s
}

// KeyFunc computes the corpus-specific dedup identity of a payload.
type KeyFunc[T any] func(T) string

// MergeHook lets per-corpus adapters copy display fields when an item
// appears in both lists. dst is the surviving payload, src the other
// occurrence. A nil hook keeps dst untouched.
type MergeHook[T any] func(dst *T, src T)

// Fuse combines one corpus's semantic and keyword result lists into a
// single deduplicated, descending-sorted list.
//
// Scoring per key:
//   - semantic only:  fused = semanticScore
//   - keyword only:   fused = normalizeLexical(keywordScore)
//   - both:           fused = sw*semanticScore + kw*normalizeLexical(keywordScore)
//
// Sort: fused score descending, ties broken by RRF score descending,
// then by key ascending for determinism.
func Fuse[T any](semantic, keyword []Item[T], key KeyFunc[T], cfg FusionConfig, onMerge MergeHook[T]) []Fused[T] {
	cfg = cfg.withDefaults()

	// Return empty slice, not nil, for consistent API behavior.
	if len(semantic) == 0 && len(keyword) == 0 {
		return []Fused[T]{}
	}

	type entry struct {
		item Item[T]
		key  string
	}

	order := make([]string, 0, len(semantic)+len(keyword))
	byKey := make(map[string]*entry, len(semantic)+len(keyword))

	for _, it := range semantic {
		k := key(it.Payload)
		if _, ok := byKey[k]; ok {
			continue // duplicate within one backend's list, first wins
		}
		byKey[k] = &entry{item: it, key: k}
		order = append(order, k)
	}

	for _, it := range keyword {
		k := key(it.Payload)
		e, ok := byKey[k]
		if !ok {
			byKey[k] = &entry{item: it, key: k}
			order = append(order, k)
			continue
		}
		if e.item.KeywordRank > 0 {
			continue
		}
		// Present in both lists: keep the semantic record, copy the
		// lexical evidence, and let the corpus hook pull over the more
		// precise keyword-side display fields.
		e.item.KeywordRank = it.KeywordRank
		e.item.KeywordScore = it.KeywordScore
		if onMerge != nil {
			onMerge(&e.item.Payload, it.Payload)
		}
	}

	results := make([]Fused[T], 0, len(order))
	for _, k := range order {
		e := byKey[k]
		results = append(results, Fused[T]{
			Item:       e.item,
			FusedScore: fusedScore(e.item, cfg),
			RRFScore:   RRFScore(cfg.RRFConstant, e.item.SemanticRank, e.item.KeywordRank),
		})
	}

	sortFused(results, key)
	return results
}

// fusedScore computes the per-item fused relevance per the method
// branches above.
func fusedScore[T any](it Item[T], cfg FusionConfig) float64 {
	switch {
	case it.InBoth():
		return cfg.SemanticWeight*it.SemanticScore +
			cfg.KeywordWeight*NormalizeLexicalScore(it.KeywordScore, cfg.LexicalNormK)
	case it.SemanticRank > 0:
		return it.SemanticScore
	default:
		return NormalizeLexicalScore(it.KeywordScore, cfg.LexicalNormK)
	}
}

// sortFused orders by fused score descending, RRF descending, key
// ascending.
func sortFused[T any](results []Fused[T], key KeyFunc[T]) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		if results[i].RRFScore != results[j].RRFScore {
			return results[i].RRFScore > results[j].RRFScore
		}
		return key(results[i].Payload) < key(results[j].Payload)
	})
}
