package local

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/maktaba-search/maktaba/internal/backend"
)

// Vector is an in-memory HNSW vector backend holding one graph per
// collection. Vectors are normalized on insert; scores are cosine
// similarity in [0,1].
type Vector struct {
	mu          sync.RWMutex
	collections map[string]*vectorCollection
}

type vectorCollection struct {
	graph      *hnsw.Graph[uint64]
	payloads   map[uint64]json.RawMessage
	dimensions int
	nextKey    uint64
}

// Verify interface implementation at compile time.
var _ backend.VectorSearcher = (*Vector)(nil)

// NewVector creates an empty vector backend.
func NewVector() *Vector {
	return &Vector{collections: make(map[string]*vectorCollection)}
}

// IndexCollection builds one named graph over docs. Documents without an
// embedding are skipped; mismatched dimensions fail the build.
func (v *Vector) IndexCollection(name string, docs []Document) error {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance

	col := &vectorCollection{
		graph:    graph,
		payloads: make(map[uint64]json.RawMessage, len(docs)),
	}

	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			continue
		}
		if col.dimensions == 0 {
			col.dimensions = len(doc.Embedding)
		} else if len(doc.Embedding) != col.dimensions {
			return fmt.Errorf("document %s: dimension mismatch: expected %d, got %d",
				doc.Key, col.dimensions, len(doc.Embedding))
		}

		vec := make([]float32, len(doc.Embedding))
		copy(vec, doc.Embedding)
		normalizeInPlace(vec)

		key := col.nextKey
		col.nextKey++
		col.graph.Add(hnsw.MakeNode(key, vec))
		col.payloads[key] = doc.Payload
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.collections[name] = col
	return nil
}

// VectorSearch queries one collection by cosine similarity, applying the
// score threshold and optional payload-equality filter client-side.
func (v *Vector) VectorSearch(ctx context.Context, q backend.VectorQuery) ([]backend.Hit, error) {
	v.mu.RLock()
	col, ok := v.collections[q.Collection]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", q.Collection, backend.ErrIndexNotReady)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if col.graph.Len() == 0 || len(q.Vector) == 0 {
		return []backend.Hit{}, nil
	}
	if col.dimensions > 0 && len(q.Vector) != col.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d",
			col.dimensions, len(q.Vector))
	}

	query := make([]float32, len(q.Vector))
	copy(query, q.Vector)
	normalizeInPlace(query)

	// Oversample when filtering so the threshold and filter still leave
	// enough survivors.
	k := q.Limit
	if len(q.Filter) > 0 {
		k *= 4
	}
	nodes := col.graph.Search(query, k)

	hits := make([]backend.Hit, 0, q.Limit)
	for _, node := range nodes {
		score := 1.0 - float64(col.graph.Distance(query, node.Value))
		if score < q.ScoreThreshold {
			continue
		}
		payload := col.payloads[node.Key]
		if len(q.Filter) > 0 && !matchesFilter(payload, q.Filter) {
			continue
		}
		hits = append(hits, backend.Hit{Payload: payload, Score: score})
		if len(hits) == q.Limit {
			break
		}
	}
	return hits, nil
}

// matchesFilter checks payload field equality. Unparseable payloads
// never match a filter.
func matchesFilter(payload json.RawMessage, filter map[string]string) bool {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return false
	}
	for k, want := range filter {
		got, ok := fields[k]
		if !ok || fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

func normalizeInPlace(vec []float32) {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
