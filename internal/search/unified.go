package search

import (
	"context"
	"sort"

	"github.com/maktaba-search/maktaba/internal/corpus"
)

// taggedCandidate is one cross-corpus reranking candidate: the corpus it
// came from, its position in that corpus's merged list, and its rendered
// text.
type taggedCandidate struct {
	kind  corpus.Kind
	idx   int
	text  string
	score float64
}

// unifiedRerank runs one reranking round over candidates drawn from all
// three corpora, so the model judges passages, verses and narrations
// against each other instead of within silos. Results are split back into
// per-corpus lists; items that did not make the candidate pool keep their
// merged order behind the reranked head.
func (e *Engine) unifiedRerank(ctx context.Context, rr *Reranker, query string, res *Results) (skipped, timedOut bool) {
	cands := make([]taggedCandidate, 0, res.Total())
	for i, f := range res.Passages {
		cands = append(cands, taggedCandidate{corpus.KindPassage, i, e.passages.render(f.Payload), f.FusedScore})
	}
	for i, f := range res.Verses {
		cands = append(cands, taggedCandidate{corpus.KindVerse, i, e.verses.render(f.Payload), f.FusedScore})
	}
	for i, f := range res.Narrations {
		cands = append(cands, taggedCandidate{corpus.KindNarration, i, e.narrations.render(f.Payload), f.FusedScore})
	}
	if len(cands) < 2 {
		return false, false
	}

	// The pool is shared across corpora: the best-fused candidates compete
	// regardless of origin.
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})
	if len(cands) > e.cfg.RerankPool {
		cands = cands[:e.cfg.RerankPool]
	}

	docs := make([]string, len(cands))
	for i, c := range cands {
		docs[i] = c.text
	}

	outcome := rr.Rerank(ctx, query, docs)

	orderByKind := map[corpus.Kind][]int{}
	for _, pos := range outcome.Order {
		c := cands[pos]
		orderByKind[c.kind] = append(orderByKind[c.kind], c.idx)
	}

	res.Passages = reorderSelected(res.Passages, orderByKind[corpus.KindPassage])
	res.Verses = reorderSelected(res.Verses, orderByKind[corpus.KindVerse])
	res.Narrations = reorderSelected(res.Narrations, orderByKind[corpus.KindNarration])

	return outcome.Skipped, outcome.TimedOut
}

// reorderSelected moves the indexed items to the front in the given
// order; everything unselected follows in its existing order.
func reorderSelected[T any](list []Fused[T], order []int) []Fused[T] {
	if len(order) == 0 {
		return list
	}

	taken := make([]bool, len(list))
	out := make([]Fused[T], 0, len(list))
	for _, idx := range order {
		if idx < 0 || idx >= len(list) || taken[idx] {
			continue
		}
		taken[idx] = true
		out = append(out, list[idx])
	}
	for i := range list {
		if !taken[i] {
			out = append(out, list[i])
		}
	}
	return out
}
