package local

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktaba-search/maktaba/internal/backend"
)

func doc(t *testing.T, key, text string, embedding []float32) Document {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"key": key, "text": text})
	require.NoError(t, err)
	return Document{Key: key, Text: text, Payload: payload, Embedding: embedding}
}

// --- Lexical ---

func TestLexical_UnknownIndexNotReady(t *testing.T) {
	l, err := NewLexical()
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	_, err = l.LexicalSearch(context.Background(), backend.LexicalQuery{Index: "missing", Query: "x", Limit: 5})
	assert.True(t, errors.Is(err, backend.ErrIndexNotReady))
}

func TestLexical_SearchAndHighlight(t *testing.T) {
	l, err := NewLexical()
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	require.NoError(t, l.IndexCollection("verses", []Document{
		doc(t, "1:1", "بسم الله الرحمن الرحيم", nil),
		doc(t, "1:2", "الحمد لله رب العالمين", nil),
	}))

	hits, err := l.LexicalSearch(context.Background(), backend.LexicalQuery{Index: "verses", Query: "الحمد", Limit: 5})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Greater(t, hits[0].Score, 0.0)

	// The payload gains a highlighted snippet.
	var payload struct {
		Key     string `json:"key"`
		Snippet string `json:"snippet"`
	}
	require.NoError(t, json.Unmarshal(hits[0].Payload, &payload))
	assert.Equal(t, "1:2", payload.Key)
	assert.NotEmpty(t, payload.Snippet)
}

func TestLexical_NormalizationMatchesVariants(t *testing.T) {
	l, err := NewLexical()
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	// Indexed fully vocalized; queried bare with letter variants.
	require.NoError(t, l.IndexCollection("verses", []Document{
		doc(t, "1:1", "الرَّحْمَة المُهْدَاة", nil),
	}))

	hits, err := l.LexicalSearch(context.Background(), backend.LexicalQuery{Index: "verses", Query: "الرحمه", Limit: 5})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestLexical_EmptyQuery(t *testing.T) {
	l, err := NewLexical()
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	require.NoError(t, l.IndexCollection("verses", nil))

	hits, err := l.LexicalSearch(context.Background(), backend.LexicalQuery{Index: "verses", Query: "  ", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

// --- Vector ---

func TestVector_UnknownCollectionNotReady(t *testing.T) {
	v := NewVector()
	_, err := v.VectorSearch(context.Background(), backend.VectorQuery{Collection: "missing", Vector: []float32{1}, Limit: 5})
	assert.True(t, errors.Is(err, backend.ErrIndexNotReady))
}

func TestVector_SearchRanksBySimilarity(t *testing.T) {
	v := NewVector()
	require.NoError(t, v.IndexCollection("verses", []Document{
		doc(t, "close", "", []float32{1, 0, 0}),
		doc(t, "far", "", []float32{0, 1, 0}),
		doc(t, "mid", "", []float32{1, 1, 0}),
	}))

	hits, err := v.VectorSearch(context.Background(), backend.VectorQuery{
		Collection: "verses",
		Vector:     []float32{1, 0, 0},
		Limit:      3,
	})
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestVector_ScoreThresholdFilters(t *testing.T) {
	v := NewVector()
	require.NoError(t, v.IndexCollection("verses", []Document{
		doc(t, "close", "", []float32{1, 0, 0}),
		doc(t, "orthogonal", "", []float32{0, 1, 0}),
	}))

	hits, err := v.VectorSearch(context.Background(), backend.VectorQuery{
		Collection:     "verses",
		Vector:         []float32{1, 0, 0},
		Limit:          5,
		ScoreThreshold: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestVector_DimensionMismatch(t *testing.T) {
	v := NewVector()
	require.NoError(t, v.IndexCollection("verses", []Document{
		doc(t, "a", "", []float32{1, 0, 0}),
	}))

	_, err := v.VectorSearch(context.Background(), backend.VectorQuery{
		Collection: "verses",
		Vector:     []float32{1, 0},
		Limit:      5,
	})
	assert.Error(t, err)
}

// --- Snapshot ---

func TestLoadSnapshot(t *testing.T) {
	dir := t.TempDir()
	lines := `{"key":"1:1","text":"بسم الله","payload":{"book_number":1,"verse_number":1},"embedding":[0.1,0.2]}
{"key":"1:2","text":"الحمد لله","payload":{"book_number":1,"verse_number":2},"embedding":[0.3,0.4]}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "verses.jsonl"), []byte(lines), 0o644))

	snap, err := LoadSnapshot(dir)
	require.NoError(t, err)
	require.Len(t, snap.Collections["verses"], 2)
	assert.Equal(t, "1:1", snap.Collections["verses"][0].Key)

	vector, lexical, err := Build(snap)
	require.NoError(t, err)
	defer func() { _ = lexical.Close() }()

	hits, err := lexical.LexicalSearch(context.Background(), backend.LexicalQuery{Index: "verses", Query: "الحمد", Limit: 5})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	vhits, err := vector.VectorSearch(context.Background(), backend.VectorQuery{Collection: "verses", Vector: []float32{0.1, 0.2}, Limit: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, vhits)
}

func TestLoadSnapshot_MalformedLineFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "verses.jsonl"), []byte("{broken\n"), 0o644))

	_, err := LoadSnapshot(dir)
	assert.Error(t, err)
}

func TestLoadSnapshot_MissingKeyFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "verses.jsonl"), []byte(`{"text":"x","payload":{}}`+"\n"), 0o644))

	_, err := LoadSnapshot(dir)
	assert.Error(t, err)
}

func TestLoadSnapshot_EmptyDirFails(t *testing.T) {
	_, err := LoadSnapshot(t.TempDir())
	assert.Error(t, err)
}
