package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePairReranker returns a canned ranking.
type fakePairReranker struct {
	ranked []RankedIndex
	err    error
}

func (f *fakePairReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RankedIndex, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ranked, nil
}

// slowCompleter blocks until the context ends.
type slowCompleter struct{}

func (slowCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestParseRerankStrategy(t *testing.T) {
	for _, valid := range []string{"none", "cross_encoder", "llm_prompt"} {
		s, err := ParseRerankStrategy(valid)
		require.NoError(t, err)
		assert.Equal(t, RerankStrategy(valid), s)
	}

	s, err := ParseRerankStrategy("")
	require.NoError(t, err)
	assert.Equal(t, RerankNone, s)

	_, err = ParseRerankStrategy("bm25")
	assert.Error(t, err)
}

func TestReranker_NoneIsIdentity(t *testing.T) {
	rr := NewReranker(RerankNone, nil, nil, time.Second)

	outcome := rr.Rerank(context.Background(), "q", []string{"a", "b", "c"})

	assert.Equal(t, []int{0, 1, 2}, outcome.Order)
	assert.False(t, outcome.Skipped)
	assert.False(t, outcome.TimedOut)
}

func TestReranker_NilReceiverIsIdentity(t *testing.T) {
	var rr *Reranker
	outcome := rr.Rerank(context.Background(), "q", []string{"a", "b"})
	assert.Equal(t, []int{0, 1}, outcome.Order)
}

func TestReranker_SingleDocumentSkipsCall(t *testing.T) {
	rr := NewReranker(RerankCrossEncoder, &fakePairReranker{err: errors.New("must not be called")}, nil, time.Second)

	outcome := rr.Rerank(context.Background(), "q", []string{"only"})

	assert.Equal(t, []int{0}, outcome.Order)
	assert.False(t, outcome.Skipped)
}

func TestReranker_CrossEncoderOrder(t *testing.T) {
	cross := &fakePairReranker{ranked: []RankedIndex{{Index: 2, Score: 0.9}, {Index: 0, Score: 0.5}, {Index: 1, Score: 0.1}}}
	rr := NewReranker(RerankCrossEncoder, cross, nil, time.Second)

	outcome := rr.Rerank(context.Background(), "q", []string{"a", "b", "c"})

	assert.Equal(t, []int{2, 0, 1}, outcome.Order)
	assert.False(t, outcome.Skipped)
}

func TestReranker_CrossEncoderPartialResponsePadded(t *testing.T) {
	// The service only returned one index; the remainder keeps original
	// order behind it.
	cross := &fakePairReranker{ranked: []RankedIndex{{Index: 1, Score: 0.9}}}
	rr := NewReranker(RerankCrossEncoder, cross, nil, time.Second)

	outcome := rr.Rerank(context.Background(), "q", []string{"a", "b", "c"})

	assert.Equal(t, []int{1, 0, 2}, outcome.Order)
}

func TestReranker_ErrorFallsBackToIdentity(t *testing.T) {
	cross := &fakePairReranker{err: errors.New("connection refused")}
	rr := NewReranker(RerankCrossEncoder, cross, nil, time.Second)

	outcome := rr.Rerank(context.Background(), "q", []string{"a", "b"})

	assert.Equal(t, []int{0, 1}, outcome.Order)
	assert.True(t, outcome.Skipped)
	assert.False(t, outcome.TimedOut)
}

func TestReranker_TimeoutSetsTimedOut(t *testing.T) {
	// Given: an LLM that never answers and a 1ms budget.
	rr := NewReranker(RerankLLMPrompt, nil, slowCompleter{}, time.Millisecond)

	outcome := rr.Rerank(context.Background(), "q", []string{"a", "b", "c"})

	// Then: identity order with both degradation flags set.
	assert.Equal(t, []int{0, 1, 2}, outcome.Order)
	assert.True(t, outcome.Skipped)
	assert.True(t, outcome.TimedOut)
}

func TestReranker_MissingDependencyDegrades(t *testing.T) {
	rr := NewReranker(RerankCrossEncoder, nil, nil, time.Second)
	outcome := rr.Rerank(context.Background(), "q", []string{"a", "b"})
	assert.Equal(t, []int{0, 1}, outcome.Order)

	rr = NewReranker(RerankLLMPrompt, nil, nil, time.Second)
	outcome = rr.Rerank(context.Background(), "q", []string{"a", "b"})
	assert.Equal(t, []int{0, 1}, outcome.Order)
}

func TestReranker_LLMPromptOrder(t *testing.T) {
	completer := &fakeCompleter{response: "The best order is [3, 1, 2]."}
	rr := NewReranker(RerankLLMPrompt, nil, completer, time.Second)

	outcome := rr.Rerank(context.Background(), "q", []string{"a", "b", "c"})

	// 1-based response becomes a 0-based permutation.
	assert.Equal(t, []int{2, 0, 1}, outcome.Order)
}

func TestParseNumberOrder(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []int
	}{
		{"plain array", "[2,1,3]", []int{1, 0, 2}},
		{"surrounded by prose", "Ranking: [1, 3, 2] as requested", []int{0, 2, 1}},
		{"no array", "first, then second", nil},
		{"not numbers", `["a","b"]`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseNumberOrder(tt.raw))
		})
	}
}

func TestPadOrder(t *testing.T) {
	// Duplicates and out-of-range entries are dropped, omissions appended.
	assert.Equal(t, []int{1, 0, 2, 3}, padOrder([]int{1, 1, 7, -2, 0}, 4))
	assert.Equal(t, []int{0, 1, 2}, padOrder(nil, 3))
	assert.Equal(t, []int{2, 1, 0}, padOrder([]int{2, 1, 0}, 3))
}
