package search

import (
	"github.com/maktaba-search/maktaba/internal/corpus"
)

// DebugReport exposes per-result match statistics for relevance tuning.
type DebugReport struct {
	Strategy     Strategy `json:"strategy"`
	Cutoff       float64  `json:"cutoff"`
	SkipSemantic bool     `json:"skip_semantic"`
	QuotedPhrase bool     `json:"quoted_phrase"`

	Entries []DebugEntry `json:"entries"`
}

// DebugEntry is the retrieval evidence behind one returned result.
type DebugEntry struct {
	Corpus        corpus.Kind `json:"corpus"`
	Key           string      `json:"key"`
	SemanticRank  int         `json:"semantic_rank,omitempty"`
	SemanticScore float64     `json:"semantic_score,omitempty"`
	KeywordRank   int         `json:"keyword_rank,omitempty"`
	KeywordScore  float64     `json:"keyword_score,omitempty"`
	FusedScore    float64     `json:"fused_score"`
	RRFScore      float64     `json:"rrf_score"`
	SourceQueries []int       `json:"source_queries,omitempty"`
}

func buildDebugReport(res *Results) *DebugReport {
	report := &DebugReport{
		Strategy:     res.Classification.Strategy,
		Cutoff:       res.Cutoff,
		SkipSemantic: res.Classification.SkipSemantic,
		QuotedPhrase: res.Classification.QuotedPhrase,
	}
	report.Entries = append(report.Entries, debugEntries(corpus.KindPassage, res.Passages, corpus.Passage.Key)...)
	report.Entries = append(report.Entries, debugEntries(corpus.KindVerse, res.Verses, corpus.Verse.Key)...)
	report.Entries = append(report.Entries, debugEntries(corpus.KindNarration, res.Narrations, corpus.Narration.Key)...)
	return report
}

func debugEntries[T any](kind corpus.Kind, list []Fused[T], key KeyFunc[T]) []DebugEntry {
	entries := make([]DebugEntry, 0, len(list))
	for _, f := range list {
		entries = append(entries, DebugEntry{
			Corpus:        kind,
			Key:           key(f.Payload),
			SemanticRank:  f.SemanticRank,
			SemanticScore: f.SemanticScore,
			KeywordRank:   f.KeywordRank,
			KeywordScore:  f.KeywordScore,
			FusedScore:    f.FusedScore,
			RRFScore:      f.RRFScore,
			SourceQueries: f.SourceQueries,
		})
	}
	return entries
}
