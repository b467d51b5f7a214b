package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktaba-search/maktaba/internal/backend"
	"github.com/maktaba-search/maktaba/internal/corpus"
	merr "github.com/maktaba-search/maktaba/internal/errors"
)

// --- Test fakes ---

type fakeVector struct {
	mu      sync.Mutex
	hits    map[string][]backend.Hit
	err     error
	queried []string
}

func (f *fakeVector) VectorSearch(ctx context.Context, q backend.VectorQuery) ([]backend.Hit, error) {
	f.mu.Lock()
	f.queried = append(f.queried, q.Collection)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return f.hits[q.Collection], nil
}

func (f *fakeVector) collections() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queried...)
}

type fakeLexical struct {
	mu      sync.Mutex
	hits    map[string][]backend.Hit
	byQuery map[string][]backend.Hit
	err     error
	queried []string
}

func (f *fakeLexical) LexicalSearch(ctx context.Context, q backend.LexicalQuery) ([]backend.Hit, error) {
	f.mu.Lock()
	f.queried = append(f.queried, q.Index)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.byQuery != nil {
		return f.byQuery[q.Query], nil
	}
	return f.hits[q.Index], nil
}

func (f *fakeLexical) indexes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queried...)
}

type fakeEmbedder struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

func (f *fakeEmbedder) Dimensions() int   { return 4 }
func (f *fakeEmbedder) ModelName() string { return "fake-embedder" }

type fakeMetadata struct{}

func (fakeMetadata) BookInfo(ctx context.Context, bookID int64) (string, string, error) {
	if bookID == 404 {
		return "", "", fmt.Errorf("book %d not found", bookID)
	}
	return fmt.Sprintf("Book %d", bookID), "Author", nil
}

func (fakeMetadata) CollectionInfo(ctx context.Context, collectionID int64) (string, error) {
	return fmt.Sprintf("Collection %d", collectionID), nil
}

func verseHit(t *testing.T, book, verse int, text string, score float64) backend.Hit {
	t.Helper()
	payload, err := json.Marshal(corpus.Verse{BookNumber: book, VerseNumber: verse, Text: text})
	require.NoError(t, err)
	return backend.Hit{Payload: payload, Score: score}
}

func passageHit(t *testing.T, bookID int64, page int, text string, score float64) backend.Hit {
	t.Helper()
	payload, err := json.Marshal(corpus.Passage{BookID: bookID, PageNumber: page, Text: text})
	require.NoError(t, err)
	return backend.Hit{Payload: payload, Score: score}
}

const arabicQuery = "الرحمة في القرآن"

// --- Validation ---

func TestEngine_RejectsInvalidInput(t *testing.T) {
	e := NewEngine(&fakeVector{}, &fakeLexical{}, &fakeEmbedder{})

	tests := []struct {
		name     string
		query    string
		opts     Options
		wantCode string
	}{
		{"empty query", "   ", Options{}, merr.ErrCodeQueryEmpty},
		{"too long query", strings.Repeat("ن", MaxQueryRunes+1), Options{}, merr.ErrCodeQueryTooLong},
		{"unknown rerank strategy", "query text", Options{Rerank: "bm25"}, merr.ErrCodeInvalidMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Search(context.Background(), tt.query, tt.opts)
			require.Error(t, err)

			var me *merr.MaktabaError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.wantCode, me.Code)
			assert.True(t, merr.IsFatal(err))
		})
	}
}

// --- Standard flow ---

func TestEngine_StandardHybridFusesBothMethods(t *testing.T) {
	vector := &fakeVector{hits: map[string][]backend.Hit{
		"verses": {
			verseHit(t, 1, 1, "verse one", 0.9),
			verseHit(t, 1, 2, "verse two", 0.6),
		},
	}}
	lexical := &fakeLexical{hits: map[string][]backend.Hit{
		"verses": {
			verseHit(t, 1, 2, "verse two", 5.0),
			verseHit(t, 2, 255, "verse other", 3.0),
		},
	}}
	e := NewEngine(vector, lexical, &fakeEmbedder{})

	res, err := e.Search(context.Background(), arabicQuery, Options{Corpora: CorpusFlags{Verses: true}})
	require.NoError(t, err)

	require.Len(t, res.Verses, 3)
	assert.Equal(t, StrategyHybrid, res.Classification.Strategy)

	// Semantic-only 0.9 first, both-methods 0.63 second, keyword-only
	// 3/(3+5)=0.375 last.
	assert.Equal(t, "1:1", res.Verses[0].Payload.Key())
	assert.Equal(t, "1:2", res.Verses[1].Payload.Key())
	assert.Equal(t, "2:255", res.Verses[2].Payload.Key())

	assert.True(t, res.Verses[1].InBoth())
	assert.InDelta(t, 0.63, res.Verses[1].FusedScore, 1e-9)
}

func TestEngine_EnglishQuerySkipsKeywordSearch(t *testing.T) {
	vector := &fakeVector{hits: map[string][]backend.Hit{
		"verses": {verseHit(t, 1, 1, "verse", 0.8)},
	}}
	lexical := &fakeLexical{}
	e := NewEngine(vector, lexical, &fakeEmbedder{})

	res, err := e.Search(context.Background(), "mercy of God", Options{Corpora: CorpusFlags{Verses: true}})
	require.NoError(t, err)

	assert.Equal(t, StrategySemanticOnly, res.Classification.Strategy)
	assert.Empty(t, lexical.indexes(), "lexical backend must not be queried")
	require.Len(t, res.Verses, 1)
}

func TestEngine_QuotedPhraseSkipsSemanticSearch(t *testing.T) {
	vector := &fakeVector{}
	lexical := &fakeLexical{hits: map[string][]backend.Hit{
		"verses": {verseHit(t, 1, 1, "بسم الله", 6.0)},
	}}
	e := NewEngine(vector, lexical, &fakeEmbedder{})

	res, err := e.Search(context.Background(), `"بسم الله"`, Options{Corpora: CorpusFlags{Verses: true}})
	require.NoError(t, err)

	assert.True(t, res.Classification.SkipSemantic)
	assert.Empty(t, vector.collections(), "vector backend must not be queried")
	require.Len(t, res.Verses, 1)
}

func TestEngine_KeywordFailureDegradesToSemantic(t *testing.T) {
	vector := &fakeVector{hits: map[string][]backend.Hit{
		"verses": {verseHit(t, 1, 1, "verse", 0.8)},
	}}
	lexical := &fakeLexical{err: errors.New("connection refused")}
	e := NewEngine(vector, lexical, &fakeEmbedder{})

	res, err := e.Search(context.Background(), arabicQuery, Options{Corpora: CorpusFlags{Verses: true}})

	require.NoError(t, err, "a failing lexical backend must not fail the request")
	require.Len(t, res.Verses, 1)
	assert.Equal(t, "1:1", res.Verses[0].Payload.Key())
}

func TestEngine_EmbeddingFailureDegradesToKeyword(t *testing.T) {
	vector := &fakeVector{hits: map[string][]backend.Hit{
		"verses": {verseHit(t, 1, 1, "verse", 0.8)},
	}}
	lexical := &fakeLexical{hits: map[string][]backend.Hit{
		"verses": {verseHit(t, 2, 2, "keyword verse", 4.0)},
	}}
	e := NewEngine(vector, lexical, &fakeEmbedder{err: errors.New("model offline")})

	res, err := e.Search(context.Background(), arabicQuery, Options{Corpora: CorpusFlags{Verses: true}})

	require.NoError(t, err)
	assert.Empty(t, vector.collections(), "vector search must not run without an embedding")
	require.Len(t, res.Verses, 1)
	assert.Equal(t, "2:2", res.Verses[0].Payload.Key())
}

func TestEngine_NilEmbedderFallsBackToKeyword(t *testing.T) {
	lexical := &fakeLexical{hits: map[string][]backend.Hit{
		"verses": {verseHit(t, 1, 1, "verse", 4.0)},
	}}
	e := NewEngine(&fakeVector{}, lexical, nil)

	// An English query would normally be semantic-only; without an
	// embedder the engine reroutes it through the lexical index.
	res, err := e.Search(context.Background(), "mercy of God", Options{Corpora: CorpusFlags{Verses: true}})

	require.NoError(t, err)
	require.Len(t, res.Verses, 1)
}

func TestEngine_IndexNotReadyFailsRequest(t *testing.T) {
	lexical := &fakeLexical{err: fmt.Errorf("index %q: %w", "verses", backend.ErrIndexNotReady)}
	e := NewEngine(&fakeVector{}, lexical, &fakeEmbedder{})

	_, err := e.Search(context.Background(), arabicQuery, Options{Corpora: CorpusFlags{Verses: true}})

	require.Error(t, err)
	var me *merr.MaktabaError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, merr.ErrCodeIndexNotReady, me.Code)
}

func TestEngine_CorpusSelection(t *testing.T) {
	vector := &fakeVector{hits: map[string][]backend.Hit{
		"verses":   {verseHit(t, 1, 1, "verse", 0.8)},
		"passages": {passageHit(t, 10, 5, "passage", 0.9)},
	}}
	e := NewEngine(vector, &fakeLexical{}, &fakeEmbedder{})

	res, err := e.Search(context.Background(), "mercy of God", Options{Corpora: CorpusFlags{Verses: true}})
	require.NoError(t, err)

	assert.Len(t, res.Verses, 1)
	assert.Empty(t, res.Passages)
	assert.Equal(t, []string{"verses"}, vector.collections())
}

func TestEngine_LimitTruncatesResults(t *testing.T) {
	var hits []backend.Hit
	for i := 1; i <= 20; i++ {
		hits = append(hits, verseHit(t, 1, i, fmt.Sprintf("verse %d", i), 1.0-float64(i)*0.01))
	}
	vector := &fakeVector{hits: map[string][]backend.Hit{"verses": hits}}
	e := NewEngine(vector, &fakeLexical{}, &fakeEmbedder{})

	res, err := e.Search(context.Background(), "mercy of God",
		Options{Corpora: CorpusFlags{Verses: true}, Limits: Limits{Verses: 3}})
	require.NoError(t, err)

	assert.Len(t, res.Verses, 3)
}

func TestEngine_MetadataEnrichment(t *testing.T) {
	vector := &fakeVector{hits: map[string][]backend.Hit{
		"passages": {
			passageHit(t, 7, 12, "text", 0.9),
			passageHit(t, 404, 1, "orphan", 0.8),
		},
	}}
	e := NewEngine(vector, &fakeLexical{}, &fakeEmbedder{}, WithMetadata(fakeMetadata{}))

	res, err := e.Search(context.Background(), "mercy of God", Options{Corpora: CorpusFlags{Passages: true}})
	require.NoError(t, err)

	require.Len(t, res.Passages, 2)
	assert.Equal(t, "Book 7", res.Passages[0].Payload.BookTitle)
	assert.Equal(t, "Author", res.Passages[0].Payload.AuthorName)
	// A failed lookup degrades: the result ships without the title.
	assert.Empty(t, res.Passages[1].Payload.BookTitle)
}

func TestEngine_DebugReport(t *testing.T) {
	vector := &fakeVector{hits: map[string][]backend.Hit{
		"verses": {verseHit(t, 1, 1, "verse", 0.8)},
	}}
	e := NewEngine(vector, &fakeLexical{}, &fakeEmbedder{})

	res, err := e.Search(context.Background(), "mercy of God",
		Options{Corpora: CorpusFlags{Verses: true}, Debug: true})
	require.NoError(t, err)

	require.NotNil(t, res.Debug)
	assert.Equal(t, StrategySemanticOnly, res.Debug.Strategy)
	require.Len(t, res.Debug.Entries, 1)
	assert.Equal(t, corpus.KindVerse, res.Debug.Entries[0].Corpus)
	assert.Equal(t, "1:1", res.Debug.Entries[0].Key)
	assert.Equal(t, 0.8, res.Debug.Entries[0].FusedScore)
}

// --- Refine flow ---

func TestEngine_RefineMergesAcrossExpandedQueries(t *testing.T) {
	alternate := "الرحمه الالهيه"
	lexical := &fakeLexical{byQuery: map[string][]backend.Hit{
		arabicQuery: {verseHit(t, 1, 1, "original hit", 5.0)},
		alternate:   {verseHit(t, 2, 2, "expanded hit", 5.0)},
	}}
	completer := &fakeCompleter{response: fmt.Sprintf(`[%q]`, alternate)}
	e := NewEngine(&fakeVector{}, lexical, nil,
		WithExpander(NewExpander(completer, DefaultExpanderConfig())))

	res, err := e.Search(context.Background(), arabicQuery,
		Options{Corpora: CorpusFlags{Verses: true}, Refine: true})
	require.NoError(t, err)

	require.Len(t, res.Expanded, 2)
	assert.Equal(t, arabicQuery, res.Expanded[0].Query)

	require.Len(t, res.Verses, 2)
	// The original query's hit carries full weight and sorts first on the
	// tie; provenance points each item at its producing query.
	keys := map[string][]int{}
	for _, v := range res.Verses {
		keys[v.Payload.Key()] = v.SourceQueries
	}
	assert.Equal(t, []int{0}, keys["1:1"])
	assert.Equal(t, []int{1}, keys["2:2"])
}

func TestEngine_RefineWithoutExpanderUsesOriginalOnly(t *testing.T) {
	lexical := &fakeLexical{hits: map[string][]backend.Hit{
		"verses": {verseHit(t, 1, 1, "hit", 4.0)},
	}}
	e := NewEngine(&fakeVector{}, lexical, nil)

	res, err := e.Search(context.Background(), arabicQuery,
		Options{Corpora: CorpusFlags{Verses: true}, Refine: true})
	require.NoError(t, err)

	require.Len(t, res.Expanded, 1)
	assert.Equal(t, "Original query", res.Expanded[0].Reason)
	require.Len(t, res.Verses, 1)
}

func TestEngine_RefineUnifiedRerankTimeoutDegrades(t *testing.T) {
	lexical := &fakeLexical{hits: map[string][]backend.Hit{
		"verses": {
			verseHit(t, 1, 1, "first", 6.0),
			verseHit(t, 1, 2, "second", 4.0),
		},
	}}
	e := NewEngine(&fakeVector{}, lexical, nil,
		WithCompleter(slowCompleter{}),
		WithConfig(Config{Timeouts: Timeouts{Rerank: time.Millisecond}}))

	res, err := e.Search(context.Background(), arabicQuery,
		Options{Corpora: CorpusFlags{Verses: true}, Refine: true, Rerank: RerankLLMPrompt})
	require.NoError(t, err)

	assert.True(t, res.RerankSkipped)
	assert.True(t, res.RerankTimedOut)
	// Fused order is preserved when the reranker times out.
	require.Len(t, res.Verses, 2)
	assert.Equal(t, "1:1", res.Verses[0].Payload.Key())
}

func TestEngine_StandardRerankReordersWithinCorpus(t *testing.T) {
	lexical := &fakeLexical{hits: map[string][]backend.Hit{
		"verses": {
			verseHit(t, 1, 1, "first", 6.0),
			verseHit(t, 1, 2, "second", 4.0),
		},
	}}
	cross := &fakePairReranker{ranked: []RankedIndex{{Index: 1, Score: 0.99}, {Index: 0, Score: 0.10}}}
	e := NewEngine(&fakeVector{}, lexical, nil, WithCrossEncoder(cross))

	res, err := e.Search(context.Background(), arabicQuery,
		Options{Corpora: CorpusFlags{Verses: true}, Rerank: RerankCrossEncoder})
	require.NoError(t, err)

	assert.False(t, res.RerankSkipped)
	require.Len(t, res.Verses, 2)
	assert.Equal(t, "1:2", res.Verses[0].Payload.Key())
	assert.Equal(t, "1:1", res.Verses[1].Payload.Key())
}

func TestEngine_UndecodablePayloadIsDropped(t *testing.T) {
	vector := &fakeVector{hits: map[string][]backend.Hit{
		"verses": {
			{Payload: json.RawMessage(`not json`), Score: 0.99},
			verseHit(t, 1, 1, "good", 0.8),
		},
	}}
	e := NewEngine(vector, &fakeLexical{}, &fakeEmbedder{})

	res, err := e.Search(context.Background(), "mercy of God", Options{Corpora: CorpusFlags{Verses: true}})
	require.NoError(t, err)

	require.Len(t, res.Verses, 1)
	assert.Equal(t, "1:1", res.Verses[0].Payload.Key())
}
