package search

import (
	"sort"
)

// SnippetFunc reports the display snippet of a payload, used by the
// merger to decide which occurrence carries the richer rendering.
type SnippetFunc[T any] func(T) string

// MergeWeighted deduplicates one corpus's result sets across expanded
// queries. Sets must be ordered as the expanded queries were generated
// (original query first).
//
// For each logical item the occurrence with the higher weight-scaled
// score (weight * fusedScore) wins the scoring fields, so a low-weighted
// expanded query can never demote an item's legitimate high score from
// the original query, while an expanded query can still surface an item
// the original missed entirely. Independently of which occurrence wins
// the score, the richer display payload is kept: a keyword-highlighted
// snippet beats a plain semantic one.
func MergeWeighted[T any](sets []WeightedResults[T], key KeyFunc[T], snippet SnippetFunc[T], onMerge MergeHook[T]) []Fused[T] {
	if len(sets) == 0 {
		return []Fused[T]{}
	}

	type entry struct {
		fused  Fused[T]
		scaled float64
		key    string
	}

	order := make([]string, 0, 64)
	byKey := make(map[string]*entry, 64)

	for _, set := range sets {
		weight := set.Weight
		if weight <= 0 {
			weight = 1.0
		}

		for _, r := range set.Results {
			k := key(r.Payload)
			scaled := weight * r.FusedScore

			e, ok := byKey[k]
			if !ok {
				f := r
				f.SourceQueries = []int{set.QueryIndex}
				byKey[k] = &entry{fused: f, scaled: scaled, key: k}
				order = append(order, k)
				continue
			}

			e.fused.SourceQueries = appendQueryIndex(e.fused.SourceQueries, set.QueryIndex)

			if scaled > e.scaled {
				// Incoming occurrence wins the score; preserve the
				// existing payload's snippet if it is the richer one.
				kept := e.fused.Payload
				prov := e.fused.SourceQueries
				e.fused = r
				e.fused.SourceQueries = prov
				e.scaled = scaled
				if snippet != nil && onMerge != nil && snippet(kept) != "" && snippet(r.Payload) == "" {
					onMerge(&e.fused.Payload, kept)
				}
				continue
			}

			// Existing occurrence keeps the score; still adopt a
			// highlighted snippet the new occurrence may carry.
			if snippet != nil && onMerge != nil && snippet(r.Payload) != "" && snippet(e.fused.Payload) == "" {
				onMerge(&e.fused.Payload, r.Payload)
			}
		}
	}

	results := make([]Fused[T], 0, len(order))
	for _, k := range order {
		results = append(results, byKey[k].fused)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		if results[i].RRFScore != results[j].RRFScore {
			return results[i].RRFScore > results[j].RRFScore
		}
		return key(results[i].Payload) < key(results[j].Payload)
	})

	return results
}

// appendQueryIndex records provenance without duplicates; the slice stays
// tiny (one entry per expanded query).
func appendQueryIndex(indices []int, idx int) []int {
	for _, existing := range indices {
		if existing == idx {
			return indices
		}
	}
	return append(indices, idx)
}
