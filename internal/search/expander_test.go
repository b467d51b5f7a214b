package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompleter returns canned responses and counts calls.
type fakeCompleter struct {
	response string
	err      error
	calls    atomic.Int64
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestExpander_OriginalFirstWithWeights(t *testing.T) {
	completer := &fakeCompleter{response: `["نص الجواب المتوقع", "صيغة أخرى", "ترجمة عربية"]`}
	x := NewExpander(completer, DefaultExpanderConfig())

	expanded := x.Expand(context.Background(), "شروط الصلاة")

	require.Len(t, expanded, 4)

	assert.Equal(t, "شروط الصلاة", expanded[0].Query)
	assert.Equal(t, 1.0, expanded[0].Weight)
	assert.Equal(t, "Original query", expanded[0].Reason)

	assert.Equal(t, "نص الجواب المتوقع", expanded[1].Query)
	assert.Equal(t, 0.85, expanded[1].Weight)
	assert.Equal(t, "Predicted answer text", expanded[1].Reason)

	assert.Equal(t, 0.7, expanded[2].Weight)
	assert.Equal(t, 0.7, expanded[3].Weight)
}

func TestExpander_CacheHitSkipsCompletion(t *testing.T) {
	completer := &fakeCompleter{response: `["a", "b", "c"]`}
	x := NewExpander(completer, DefaultExpanderConfig())

	first := x.Expand(context.Background(), "query one")
	second := x.Expand(context.Background(), "query one")

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), completer.calls.Load(), "second call must be served from cache")
}

func TestExpander_CachedSliceIsIsolated(t *testing.T) {
	completer := &fakeCompleter{response: `["a", "b"]`}
	x := NewExpander(completer, DefaultExpanderConfig())

	first := x.Expand(context.Background(), "query")
	first[0].Query = "mutated"

	second := x.Expand(context.Background(), "query")
	assert.Equal(t, "query", second[0].Query)
}

func TestExpander_CompletionFailureDegradesToOriginal(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("service down")}
	x := NewExpander(completer, DefaultExpanderConfig())

	expanded := x.Expand(context.Background(), "some query")

	require.Len(t, expanded, 1)
	assert.Equal(t, "some query", expanded[0].Query)
	assert.Equal(t, 1.0, expanded[0].Weight)
}

func TestExpander_FailureIsNotCached(t *testing.T) {
	// Given: a completer that fails once, then recovers.
	completer := &fakeCompleter{err: errors.New("service down")}
	x := NewExpander(completer, DefaultExpanderConfig())

	degraded := x.Expand(context.Background(), "some query")
	require.Len(t, degraded, 1)

	// When: the service recovers and the same query arrives again.
	completer.err = nil
	completer.response = `["alt one", "alt two"]`
	recovered := x.Expand(context.Background(), "some query")

	// Then: a fresh completion runs; the degraded set was not memoized.
	assert.Equal(t, int64(2), completer.calls.Load())
	require.Len(t, recovered, 3)
	assert.Equal(t, "alt one", recovered[1].Query)

	// Successful expansions still cache.
	x.Expand(context.Background(), "some query")
	assert.Equal(t, int64(2), completer.calls.Load())
}

func TestExpander_MalformedResponseDegradesToOriginal(t *testing.T) {
	for _, response := range []string{"not json at all", "{}", "[]", `[1, 2, 3]`} {
		completer := &fakeCompleter{response: response}
		x := NewExpander(completer, DefaultExpanderConfig())

		expanded := x.Expand(context.Background(), "query "+response)
		require.Len(t, expanded, 1, "response %q", response)
	}
}

func TestExpander_ToleratesCodeFences(t *testing.T) {
	completer := &fakeCompleter{response: "```json\n[\"alt one\", \"alt two\"]\n```"}
	x := NewExpander(completer, DefaultExpanderConfig())

	expanded := x.Expand(context.Background(), "query")

	require.Len(t, expanded, 3)
	assert.Equal(t, "alt one", expanded[1].Query)
}

func TestExpander_DropsDuplicatesOfOriginal(t *testing.T) {
	completer := &fakeCompleter{response: `["my query", "different phrasing"]`}
	x := NewExpander(completer, DefaultExpanderConfig())

	expanded := x.Expand(context.Background(), "my query")

	require.Len(t, expanded, 2)
	assert.Equal(t, "different phrasing", expanded[1].Query)
}

func TestExpander_NilCompleter(t *testing.T) {
	x := NewExpander(nil, DefaultExpanderConfig())

	expanded := x.Expand(context.Background(), "query")

	require.Len(t, expanded, 1)
	assert.Equal(t, "Original query", expanded[0].Reason)
}

func TestExpander_EmptyQuery(t *testing.T) {
	x := NewExpander(&fakeCompleter{}, DefaultExpanderConfig())
	assert.Nil(t, x.Expand(context.Background(), "   "))
}
