package local

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/maktaba-search/maktaba/internal/backend"
	"github.com/maktaba-search/maktaba/internal/textnorm"
)

const (
	// ArabicNormFilterName is the registered name of the diacritic and
	// letter-variant normalization filter.
	ArabicNormFilterName = "arabic_normalize"

	// ArabicAnalyzerName is the registered name of the Arabic analyzer.
	ArabicAnalyzerName = "arabic_text"
)

func init() {
	_ = registry.RegisterTokenFilter(ArabicNormFilterName, arabicNormFilterConstructor)
}

// bleveDocument is the indexed document shape.
type bleveDocument struct {
	Content string `json:"content"`
}

// Lexical is an in-memory bleve keyword backend holding one index per
// collection. Scores are bleve's BM25-family relevance scores.
type Lexical struct {
	mu      sync.RWMutex
	indexes map[string]bleve.Index
	docs    map[string]map[string]Document
}

// Verify interface implementation at compile time.
var _ backend.LexicalSearcher = (*Lexical)(nil)

// NewLexical creates an empty lexical backend.
func NewLexical() (*Lexical, error) {
	return &Lexical{
		indexes: make(map[string]bleve.Index),
		docs:    make(map[string]map[string]Document),
	}, nil
}

// IndexCollection builds one named in-memory index over docs.
func (l *Lexical) IndexCollection(name string, docs []Document) error {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return err
	}
	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	batch := idx.NewBatch()
	byKey := make(map[string]Document, len(docs))
	for _, doc := range docs {
		if err := batch.Index(doc.Key, bleveDocument{Content: doc.Text}); err != nil {
			return fmt.Errorf("index document %s: %w", doc.Key, err)
		}
		byKey[doc.Key] = doc
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.indexes[name] = idx
	l.docs[name] = byKey
	return nil
}

// LexicalSearch queries one index. Hits carry the snapshot payload with
// the highlighted fragment injected as the snippet field.
func (l *Lexical) LexicalSearch(ctx context.Context, q backend.LexicalQuery) ([]backend.Hit, error) {
	l.mu.RLock()
	idx, ok := l.indexes[q.Index]
	byKey := l.docs[q.Index]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("index %q: %w", q.Index, backend.ErrIndexNotReady)
	}

	if strings.TrimSpace(q.Query) == "" {
		return []backend.Hit{}, nil
	}

	matchQuery := bleve.NewMatchQuery(q.Query)
	matchQuery.SetField("content")
	if q.Fuzzy {
		matchQuery.SetFuzziness(1)
	}

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = q.Limit
	searchRequest.Highlight = bleve.NewHighlight()

	result, err := idx.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]backend.Hit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		doc, ok := byKey[hit.ID]
		if !ok {
			continue
		}
		payload := doc.Payload
		if fragments := hit.Fragments["content"]; len(fragments) > 0 {
			payload = injectSnippet(payload, strings.Join(fragments, " … "))
		}
		hits = append(hits, backend.Hit{Payload: payload, Score: hit.Score})
	}
	return hits, nil
}

// injectSnippet sets the snippet field on a JSON payload. On any decode
// failure the payload is returned untouched.
func injectSnippet(payload json.RawMessage, snippet string) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return payload
	}
	enc, err := json.Marshal(snippet)
	if err != nil {
		return payload
	}
	fields["snippet"] = enc
	out, err := json.Marshal(fields)
	if err != nil {
		return payload
	}
	return out
}

// Close releases all indexes.
func (l *Lexical) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for name, idx := range l.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close index %s: %w", name, err)
		}
	}
	l.indexes = make(map[string]bleve.Index)
	l.docs = make(map[string]map[string]Document)
	return firstErr
}

// createIndexMapping builds the mapping with the Arabic analyzer as
// default: unicode tokenization, lowercasing for any Latin content, then
// diacritic stripping and letter-variant folding so surface variants of
// the same word collide in the index.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(ArabicAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			ArabicNormFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = ArabicAnalyzerName
	return indexMapping, nil
}

func arabicNormFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &arabicNormFilter{}, nil
}

// arabicNormFilter implements analysis.TokenFilter.
type arabicNormFilter struct{}

// Filter normalizes each token's term; tokens that normalize to nothing
// (pure diacritic runs) are dropped.
func (f *arabicNormFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		normalized := textnorm.Normalize(string(token.Term))
		if normalized == "" {
			continue
		}
		token.Term = []byte(normalized)
		result = append(result, token)
	}
	return result
}
