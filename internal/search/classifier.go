package search

import (
	"strings"
	"unicode/utf8"

	"github.com/maktaba-search/maktaba/internal/textnorm"
)

// Strategy selects how semantic and lexical evidence are combined for a
// query.
type Strategy string

const (
	// StrategyHybrid runs both retrieval methods and fuses their scores.
	// Used when the query is in Arabic script: lexical matching against
	// the Arabic-indexed text is reliable.
	StrategyHybrid Strategy = "hybrid"

	// StrategySemanticOnly skips lexical retrieval. Cross-lingual queries
	// rely on the embedding space; keyword matching of non-Arabic text
	// against Arabic indexes has near-zero recall and only adds latency.
	StrategySemanticOnly Strategy = "semantic_only"
)

// DefaultMinSemanticChars is the minimum effective character count below
// which semantic search is skipped. Shorter queries lack embeddable
// content and produce high-variance nearest-neighbor noise.
const DefaultMinSemanticChars = 4

// Classification is the outcome of inspecting a raw query string.
// SkipKeyword is derived by the caller from Strategy, not set here.
type Classification struct {
	IsArabicScript bool
	Strategy       Strategy
	SkipSemantic   bool

	// QuotedPhrase is true when the user wrapped text in any quotation
	// mark variant, signalling literal-match intent.
	QuotedPhrase bool
}

// Classify inspects the raw query and decides which retrieval methods
// should run and how their results combine.
func Classify(query string, minSemanticChars int) Classification {
	if minSemanticChars <= 0 {
		minSemanticChars = DefaultMinSemanticChars
	}

	c := Classification{
		IsArabicScript: textnorm.HasArabicScript(query),
		QuotedPhrase:   isQuotedPhrase(query),
	}

	if c.IsArabicScript {
		c.Strategy = StrategyHybrid
	} else {
		c.Strategy = StrategySemanticOnly
	}

	// Quoted phrases force literal matching: semantic search cannot honor
	// an exact-phrase request and may dilute the results.
	if c.QuotedPhrase {
		c.SkipSemantic = true
		// A quoted non-Arabic query would otherwise skip both methods;
		// literal intent overrides the script heuristic.
		c.Strategy = StrategyHybrid
		return c
	}

	if effectiveLength(query) < minSemanticChars {
		c.SkipSemantic = true
	}

	return c
}

// isQuotedPhrase reports whether the query contains a quotation mark
// variant, including guillemets and Unicode smart quotes.
func isQuotedPhrase(query string) bool {
	for _, r := range strings.TrimSpace(query) {
		if textnorm.IsQuoteRune(r) {
			return true
		}
	}
	return false
}

// effectiveLength counts query characters after whitespace and quote
// normalization.
func effectiveLength(query string) int {
	q := textnorm.StripQuotes(query)
	q = strings.Join(strings.Fields(q), "")
	return utf8.RuneCountInString(q)
}
