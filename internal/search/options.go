package search

import (
	"fmt"
	"strings"
	"unicode/utf8"

	merr "github.com/maktaba-search/maktaba/internal/errors"
)

// Request limits.
const (
	// DefaultLimit is the default number of results per corpus.
	DefaultLimit = 10

	// MaxLimit is the maximum allowed results per corpus.
	MaxLimit = 100

	// MaxQueryRunes is the maximum accepted query length.
	MaxQueryRunes = 500
)

// Limits caps the result count per corpus.
type Limits struct {
	Passages   int
	Verses     int
	Narrations int
}

// DefaultLimits returns the default per-corpus limits.
func DefaultLimits() Limits {
	return Limits{Passages: DefaultLimit, Verses: DefaultLimit, Narrations: DefaultLimit}
}

func clampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

func (l Limits) withDefaults() Limits {
	return Limits{
		Passages:   clampLimit(l.Passages),
		Verses:     clampLimit(l.Verses),
		Narrations: clampLimit(l.Narrations),
	}
}

// CorpusFlags selects which corpora a request searches. The zero value
// means all three.
type CorpusFlags struct {
	Passages   bool
	Verses     bool
	Narrations bool
}

// AllCorpora enables every corpus.
func AllCorpora() CorpusFlags {
	return CorpusFlags{Passages: true, Verses: true, Narrations: true}
}

func (f CorpusFlags) none() bool {
	return !f.Passages && !f.Verses && !f.Narrations
}

// ParseCorpusFlags parses a comma-separated corpus list
// ("passages,verses,narrations").
func ParseCorpusFlags(s string) (CorpusFlags, error) {
	if strings.TrimSpace(s) == "" {
		return AllCorpora(), nil
	}
	var f CorpusFlags
	for _, part := range strings.Split(s, ",") {
		switch strings.TrimSpace(part) {
		case "passages":
			f.Passages = true
		case "verses":
			f.Verses = true
		case "narrations":
			f.Narrations = true
		case "":
		default:
			return CorpusFlags{}, fmt.Errorf("unknown corpus %q", strings.TrimSpace(part))
		}
	}
	if f.none() {
		f = AllCorpora()
	}
	return f, nil
}

// Options configures a single search request.
type Options struct {
	// Limits caps results per corpus; zero values use defaults.
	Limits Limits

	// Corpora selects which corpora to search; zero value means all.
	Corpora CorpusFlags

	// Rerank selects the second-pass reordering strategy.
	Rerank RerankStrategy

	// Refine enables the expand → fan out → merge → unified rerank flow.
	Refine bool

	// Debug attaches per-result match statistics to the response.
	Debug bool
}

func (o Options) withDefaults() Options {
	o.Limits = o.Limits.withDefaults()
	if o.Corpora.none() {
		o.Corpora = AllCorpora()
	}
	if o.Rerank == "" {
		o.Rerank = RerankNone
	}
	return o
}

// validateRequest checks caller input before any retrieval begins.
// Violations are fatal to the request.
func validateRequest(query string, opts Options) error {
	if strings.TrimSpace(query) == "" {
		return merr.ValidationError(merr.ErrCodeQueryEmpty, "query must not be empty")
	}
	if utf8.RuneCountInString(query) > MaxQueryRunes {
		return merr.ValidationError(merr.ErrCodeQueryTooLong,
			fmt.Sprintf("query exceeds %d characters", MaxQueryRunes))
	}
	if _, err := ParseRerankStrategy(string(opts.Rerank)); err != nil {
		return merr.ValidationError(merr.ErrCodeInvalidMode, err.Error())
	}
	return nil
}
