package search

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maktaba-search/maktaba/internal/backend"
	"github.com/maktaba-search/maktaba/internal/corpus"
	"github.com/maktaba-search/maktaba/internal/embed"
	merr "github.com/maktaba-search/maktaba/internal/errors"
	"github.com/maktaba-search/maktaba/internal/telemetry"
)

// Engine defaults.
const (
	// DefaultBaseCutoff is the baseline semantic similarity floor before
	// the dynamic short-query bonus.
	DefaultBaseCutoff = 0.20

	// DefaultCandidateMultiplier oversamples each backend relative to the
	// requested limit so fusion and reranking have room to reorder.
	DefaultCandidateMultiplier = 2

	// DefaultRerankPool caps how many candidates a reranking round sees.
	DefaultRerankPool = 30
)

// Default collection and index names, one per corpus.
const (
	DefaultPassageCollection   = "passages"
	DefaultVerseCollection     = "verses"
	DefaultNarrationCollection = "narrations"
)

// Config holds the engine's tunable parameters. The zero value is usable;
// every field falls back to its default.
type Config struct {
	Fusion FusionConfig

	// BaseCutoff is the semantic score floor; DynamicCutoff raises it for
	// short queries.
	BaseCutoff float64

	// MinSemanticChars is the effective-length floor below which semantic
	// search is skipped.
	MinSemanticChars int

	// CandidateMultiplier scales backend fetch limits relative to the
	// requested result limit.
	CandidateMultiplier int

	// RerankPool caps reranking candidate counts.
	RerankPool int

	Timeouts Timeouts

	// Per-corpus vector collection names.
	PassageCollection   string
	VerseCollection     string
	NarrationCollection string

	// Per-corpus lexical index names.
	PassageIndex   string
	VerseIndex     string
	NarrationIndex string
}

func (c Config) withDefaults() Config {
	c.Fusion = c.Fusion.withDefaults()
	if c.BaseCutoff <= 0 {
		c.BaseCutoff = DefaultBaseCutoff
	}
	if c.MinSemanticChars <= 0 {
		c.MinSemanticChars = DefaultMinSemanticChars
	}
	if c.CandidateMultiplier <= 0 {
		c.CandidateMultiplier = DefaultCandidateMultiplier
	}
	if c.RerankPool <= 0 {
		c.RerankPool = DefaultRerankPool
	}
	if c.Timeouts.Embed <= 0 {
		c.Timeouts.Embed = DefaultTimeouts().Embed
	}
	if c.Timeouts.Rerank <= 0 {
		c.Timeouts.Rerank = DefaultTimeouts().Rerank
	}
	if c.Timeouts.Expand <= 0 {
		c.Timeouts.Expand = DefaultTimeouts().Expand
	}
	if c.PassageCollection == "" {
		c.PassageCollection = DefaultPassageCollection
	}
	if c.VerseCollection == "" {
		c.VerseCollection = DefaultVerseCollection
	}
	if c.NarrationCollection == "" {
		c.NarrationCollection = DefaultNarrationCollection
	}
	if c.PassageIndex == "" {
		c.PassageIndex = c.PassageCollection
	}
	if c.VerseIndex == "" {
		c.VerseIndex = c.VerseCollection
	}
	if c.NarrationIndex == "" {
		c.NarrationIndex = c.NarrationCollection
	}
	return c
}

// MetadataProvider fills display metadata (book titles, collection names)
// after fusion. Lookup failures degrade: the result ships without the
// extra metadata.
type MetadataProvider interface {
	BookInfo(ctx context.Context, bookID int64) (title, author string, err error)
	CollectionInfo(ctx context.Context, collectionID int64) (title string, err error)
}

// Results is one search response. Per-corpus slices are always non-nil
// for requested corpora and sorted best-first.
type Results struct {
	Query      string
	Passages   []Fused[corpus.Passage]
	Verses     []Fused[corpus.Verse]
	Narrations []Fused[corpus.Narration]

	// Expanded lists the query set actually searched (refine mode only;
	// element 0 is the original query).
	Expanded []ExpandedQuery

	Classification Classification
	Cutoff         float64

	// RerankSkipped / RerankTimedOut report second-pass degradation.
	RerankSkipped  bool
	RerankTimedOut bool

	// Debug is populated only when Options.Debug is set.
	Debug *DebugReport
}

// Total returns the number of results across all corpora.
func (r *Results) Total() int {
	return len(r.Passages) + len(r.Verses) + len(r.Narrations)
}

// corpusSpec binds one corpus's generic hooks to its backend names.
type corpusSpec[T any] struct {
	kind       corpus.Kind
	collection string
	index      string
	key        KeyFunc[T]
	snippet    SnippetFunc[T]
	render     func(T) string
	onMerge    MergeHook[T]
}

// Engine orchestrates hybrid retrieval across the three corpora. All
// external dependencies except the two backends are optional; a missing
// dependency disables its feature rather than failing requests.
type Engine struct {
	vector   backend.VectorSearcher
	lexical  backend.LexicalSearcher
	embedder embed.Embedder

	expander *Expander
	cross    PairReranker
	llm      Completer
	meta     MetadataProvider
	metrics  *telemetry.Metrics

	cfg Config

	passages   corpusSpec[corpus.Passage]
	verses     corpusSpec[corpus.Verse]
	narrations corpusSpec[corpus.Narration]
}

// Option configures optional engine dependencies.
type Option func(*Engine)

// WithConfig overrides the engine configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithExpander enables refine-mode query expansion.
func WithExpander(x *Expander) Option {
	return func(e *Engine) { e.expander = x }
}

// WithCrossEncoder enables the cross_encoder reranking strategy.
func WithCrossEncoder(c PairReranker) Option {
	return func(e *Engine) { e.cross = c }
}

// WithCompleter enables the llm_prompt reranking strategy.
func WithCompleter(c Completer) Option {
	return func(e *Engine) { e.llm = c }
}

// WithMetadata enables post-fusion metadata enrichment.
func WithMetadata(m MetadataProvider) Option {
	return func(e *Engine) { e.meta = m }
}

// WithMetrics enables per-query telemetry.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a search engine over the given backends. embedder may
// be nil, which pins every request to keyword-only retrieval.
func NewEngine(vector backend.VectorSearcher, lexical backend.LexicalSearcher, embedder embed.Embedder, opts ...Option) *Engine {
	e := &Engine{vector: vector, lexical: lexical, embedder: embedder}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg = e.cfg.withDefaults()

	e.passages = corpusSpec[corpus.Passage]{
		kind:       corpus.KindPassage,
		collection: e.cfg.PassageCollection,
		index:      e.cfg.PassageIndex,
		key:        corpus.Passage.Key,
		snippet:    func(p corpus.Passage) string { return p.Snippet },
		render:     corpus.Passage.Render,
		onMerge: func(dst *corpus.Passage, src corpus.Passage) {
			if src.Snippet != "" {
				dst.Snippet = src.Snippet
			}
			if dst.Text == "" {
				dst.Text = src.Text
			}
		},
	}
	e.verses = corpusSpec[corpus.Verse]{
		kind:       corpus.KindVerse,
		collection: e.cfg.VerseCollection,
		index:      e.cfg.VerseIndex,
		key:        corpus.Verse.Key,
		snippet:    func(v corpus.Verse) string { return v.Snippet },
		render:     corpus.Verse.Render,
		onMerge: func(dst *corpus.Verse, src corpus.Verse) {
			if src.Snippet != "" {
				dst.Snippet = src.Snippet
			}
			if dst.ChapterName == "" {
				dst.ChapterName = src.ChapterName
			}
		},
	}
	e.narrations = corpusSpec[corpus.Narration]{
		kind:       corpus.KindNarration,
		collection: e.cfg.NarrationCollection,
		index:      e.cfg.NarrationIndex,
		key:        corpus.Narration.Key,
		snippet:    func(n corpus.Narration) string { return n.Snippet },
		render:     corpus.Narration.Render,
		onMerge: func(dst *corpus.Narration, src corpus.Narration) {
			if src.Snippet != "" {
				dst.Snippet = src.Snippet
			}
			if dst.Grade == "" {
				dst.Grade = src.Grade
			}
		},
	}
	return e
}

// Search runs one query through the full pipeline. Validation errors and
// index-not-ready conditions fail the request; every other external
// failure degrades.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Results, error) {
	opts = opts.withDefaults()
	if err := validateRequest(query, opts); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)

	start := time.Now()

	cls := Classify(query, e.cfg.MinSemanticChars)
	if e.embedder == nil {
		cls.SkipSemantic = true
	}
	// A short non-Arabic query would otherwise run nothing at all; fall
	// back to keyword retrieval so the request still has a chance.
	if cls.SkipSemantic && cls.Strategy != StrategyHybrid {
		slog.Debug("semantic skipped with no lexical route, forcing hybrid",
			slog.String("query", query))
		cls.Strategy = StrategyHybrid
	}
	cutoff := DynamicCutoff(query, e.cfg.BaseCutoff)

	var (
		res *Results
		err error
	)
	if opts.Refine {
		res, err = e.refineSearch(ctx, query, cls, cutoff, opts)
	} else {
		res, err = e.standardSearch(ctx, query, cls, cutoff, opts)
	}
	if err != nil {
		return nil, err
	}

	e.enrich(ctx, res)
	if opts.Debug {
		res.Debug = buildDebugReport(res)
	}
	e.record(query, opts, res, time.Since(start))

	return res, nil
}

// standardSearch is the single-query flow: keyword searches and the query
// embedding start concurrently, semantic searches follow as soon as the
// embedding resolves, then each corpus is fused, optionally reranked, and
// truncated.
func (e *Engine) standardSearch(ctx context.Context, query string, cls Classification, cutoff float64, opts Options) (*Results, error) {
	res := &Results{
		Query:          query,
		Classification: cls,
		Cutoff:         cutoff,
		Passages:       []Fused[corpus.Passage]{},
		Verses:         []Fused[corpus.Verse]{},
		Narrations:     []Fused[corpus.Narration]{},
	}

	emb := e.resolveEmbedding(ctx, query, cls)

	g, gctx := errgroup.WithContext(ctx)
	if opts.Corpora.Passages {
		g.Go(func() error {
			fused, err := retrieveCorpus(gctx, e, e.passages, query, cls, cutoff, opts.Limits.Passages, emb)
			res.Passages = fused
			return err
		})
	}
	if opts.Corpora.Verses {
		g.Go(func() error {
			fused, err := retrieveCorpus(gctx, e, e.verses, query, cls, cutoff, opts.Limits.Verses, emb)
			res.Verses = fused
			return err
		})
	}
	if opts.Corpora.Narrations {
		g.Go(func() error {
			fused, err := retrieveCorpus(gctx, e, e.narrations, query, cls, cutoff, opts.Limits.Narrations, emb)
			res.Narrations = fused
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if opts.Rerank != RerankNone {
		rr := e.newReranker(opts.Rerank)
		var skipped, timedOut bool
		res.Passages, skipped, timedOut = rerankCorpus(ctx, rr, query, res.Passages, e.passages.render, e.cfg.RerankPool)
		res.RerankSkipped = res.RerankSkipped || skipped
		res.RerankTimedOut = res.RerankTimedOut || timedOut
		res.Verses, skipped, timedOut = rerankCorpus(ctx, rr, query, res.Verses, e.verses.render, e.cfg.RerankPool)
		res.RerankSkipped = res.RerankSkipped || skipped
		res.RerankTimedOut = res.RerankTimedOut || timedOut
		res.Narrations, skipped, timedOut = rerankCorpus(ctx, rr, query, res.Narrations, e.narrations.render, e.cfg.RerankPool)
		res.RerankSkipped = res.RerankSkipped || skipped
		res.RerankTimedOut = res.RerankTimedOut || timedOut
	}

	res.Passages = truncateFused(res.Passages, opts.Limits.Passages)
	res.Verses = truncateFused(res.Verses, opts.Limits.Verses)
	res.Narrations = truncateFused(res.Narrations, opts.Limits.Narrations)

	return res, nil
}

// refineSearch is the multi-query flow: expand, fan out every expanded
// query through the standard per-corpus retrieval, merge weighted results
// per corpus, then rerank all corpora in one unified round.
func (e *Engine) refineSearch(ctx context.Context, query string, cls Classification, cutoff float64, opts Options) (*Results, error) {
	expanded := e.expandQuery(ctx, query)

	res := &Results{
		Query:          query,
		Classification: cls,
		Cutoff:         cutoff,
		Expanded:       expanded,
		Passages:       []Fused[corpus.Passage]{},
		Verses:         []Fused[corpus.Verse]{},
		Narrations:     []Fused[corpus.Narration]{},
	}

	type subQuery struct {
		cls    Classification
		cutoff float64
		emb    *embedFuture
	}
	subs := make([]subQuery, len(expanded))
	for i, eq := range expanded {
		subCls := Classify(eq.Query, e.cfg.MinSemanticChars)
		if e.embedder == nil {
			subCls.SkipSemantic = true
		}
		if subCls.SkipSemantic && subCls.Strategy != StrategyHybrid {
			subCls.Strategy = StrategyHybrid
		}
		subs[i] = subQuery{
			cls:    subCls,
			cutoff: DynamicCutoff(eq.Query, e.cfg.BaseCutoff),
			emb:    e.resolveEmbedding(ctx, eq.Query, subCls),
		}
	}

	passageSets := make([]WeightedResults[corpus.Passage], len(expanded))
	verseSets := make([]WeightedResults[corpus.Verse], len(expanded))
	narrationSets := make([]WeightedResults[corpus.Narration], len(expanded))

	g, gctx := errgroup.WithContext(ctx)
	for i := range expanded {
		eq, sub := expanded[i], subs[i]
		g.Go(func() error {
			sg, sctx := errgroup.WithContext(gctx)
			if opts.Corpora.Passages {
				sg.Go(func() error {
					fused, err := retrieveCorpus(sctx, e, e.passages, eq.Query, sub.cls, sub.cutoff, opts.Limits.Passages, sub.emb)
					passageSets[i] = WeightedResults[corpus.Passage]{Results: fused, Weight: eq.Weight, QueryIndex: i}
					return err
				})
			}
			if opts.Corpora.Verses {
				sg.Go(func() error {
					fused, err := retrieveCorpus(sctx, e, e.verses, eq.Query, sub.cls, sub.cutoff, opts.Limits.Verses, sub.emb)
					verseSets[i] = WeightedResults[corpus.Verse]{Results: fused, Weight: eq.Weight, QueryIndex: i}
					return err
				})
			}
			if opts.Corpora.Narrations {
				sg.Go(func() error {
					fused, err := retrieveCorpus(sctx, e, e.narrations, eq.Query, sub.cls, sub.cutoff, opts.Limits.Narrations, sub.emb)
					narrationSets[i] = WeightedResults[corpus.Narration]{Results: fused, Weight: eq.Weight, QueryIndex: i}
					return err
				})
			}
			return sg.Wait()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if opts.Corpora.Passages {
		res.Passages = MergeWeighted(passageSets, e.passages.key, e.passages.snippet, e.passages.onMerge)
	}
	if opts.Corpora.Verses {
		res.Verses = MergeWeighted(verseSets, e.verses.key, e.verses.snippet, e.verses.onMerge)
	}
	if opts.Corpora.Narrations {
		res.Narrations = MergeWeighted(narrationSets, e.narrations.key, e.narrations.snippet, e.narrations.onMerge)
	}

	if opts.Rerank != RerankNone {
		rr := e.newReranker(opts.Rerank)
		res.RerankSkipped, res.RerankTimedOut = e.unifiedRerank(ctx, rr, query, res)
	}

	res.Passages = truncateFused(res.Passages, opts.Limits.Passages)
	res.Verses = truncateFused(res.Verses, opts.Limits.Verses)
	res.Narrations = truncateFused(res.Narrations, opts.Limits.Narrations)

	return res, nil
}

// expandQuery returns the expanded query set, degrading to the original
// query alone when expansion is unavailable.
func (e *Engine) expandQuery(ctx context.Context, query string) []ExpandedQuery {
	if e.expander == nil {
		return []ExpandedQuery{{Query: query, Weight: DefaultOriginalWeight, Reason: reasonOriginal}}
	}
	expanded := e.expander.Expand(ctx, query)
	if len(expanded) == 0 {
		return []ExpandedQuery{{Query: query, Weight: DefaultOriginalWeight, Reason: reasonOriginal}}
	}
	return expanded
}

func (e *Engine) newReranker(strategy RerankStrategy) *Reranker {
	return NewReranker(strategy, e.cross, e.llm, e.cfg.Timeouts.Rerank)
}

// embedFuture lets the keyword searches start immediately while the
// embedding resolves in the background. wait returns nil when the
// embedding failed, was skipped, or the context ended first.
type embedFuture struct {
	done chan struct{}
	vec  []float32
}

func (f *embedFuture) wait(ctx context.Context) []float32 {
	select {
	case <-f.done:
		return f.vec
	case <-ctx.Done():
		return nil
	}
}

// resolveEmbedding kicks off the query embedding with its own deadline.
// Failure is a degradation: the request continues keyword-only.
func (e *Engine) resolveEmbedding(ctx context.Context, query string, cls Classification) *embedFuture {
	f := &embedFuture{done: make(chan struct{})}
	if cls.SkipSemantic || e.embedder == nil {
		close(f.done)
		return f
	}

	go func() {
		defer close(f.done)

		embedCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Embed)
		defer cancel()

		vec, err := e.embedder.Embed(embedCtx, query)
		if err != nil {
			slog.Warn("query embedding failed, degrading to keyword-only",
				slog.String("sub_call", "embed"),
				slog.String("model", e.embedder.ModelName()),
				slog.String("error", err.Error()))
			return
		}
		f.vec = vec
	}()
	return f
}

// retrieveCorpus runs one corpus's keyword and semantic searches
// concurrently and fuses the lists. Backend failures degrade to empty
// lists; only an uninitialized index fails the request.
func retrieveCorpus[T any](ctx context.Context, e *Engine, spec corpusSpec[T], query string, cls Classification, cutoff float64, limit int, emb *embedFuture) ([]Fused[T], error) {
	fetchLimit := clampLimit(limit) * e.cfg.CandidateMultiplier

	var semantic, keyword []Item[T]

	g, gctx := errgroup.WithContext(ctx)

	if cls.Strategy == StrategyHybrid {
		g.Go(func() error {
			hits, err := e.lexical.LexicalSearch(gctx, backend.LexicalQuery{
				Index: spec.index,
				Query: query,
				Limit: fetchLimit,
			})
			if err != nil {
				if isIndexNotReady(err) {
					return merr.New(merr.ErrCodeIndexNotReady, "lexical index not initialized", err).
						WithDetail("corpus", string(spec.kind))
				}
				slog.Warn("keyword search failed, substituting empty results",
					slog.String("sub_call", "keyword_search"),
					slog.String("corpus", string(spec.kind)),
					slog.String("error", err.Error()))
				return nil
			}
			keyword = decodeHits[T](hits, spec.kind, KeywordItem[T])
			return nil
		})
	}

	if !cls.SkipSemantic {
		g.Go(func() error {
			vec := emb.wait(gctx)
			if vec == nil {
				return nil
			}
			hits, err := e.vector.VectorSearch(gctx, backend.VectorQuery{
				Collection:     spec.collection,
				Vector:         vec,
				Limit:          fetchLimit,
				ScoreThreshold: cutoff,
			})
			if err != nil {
				if isIndexNotReady(err) {
					return merr.New(merr.ErrCodeIndexNotReady, "vector collection not initialized", err).
						WithDetail("corpus", string(spec.kind))
				}
				slog.Warn("semantic search failed, substituting empty results",
					slog.String("sub_call", "semantic_search"),
					slog.String("corpus", string(spec.kind)),
					slog.String("error", err.Error()))
				return nil
			}
			semantic = decodeHits[T](hits, spec.kind, SemanticItem[T])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Fuse(semantic, keyword, spec.key, e.cfg.Fusion, spec.onMerge), nil
}

func isIndexNotReady(err error) bool {
	return errors.Is(err, backend.ErrIndexNotReady)
}

// decodeHits converts backend hits to retrieval items, dropping payloads
// that fail to decode. rank is 1-based over the surviving items.
func decodeHits[T any](hits []backend.Hit, kind corpus.Kind, mk func(T, int, float64) Item[T]) []Item[T] {
	items := make([]Item[T], 0, len(hits))
	for _, h := range hits {
		var payload T
		if err := json.Unmarshal(h.Payload, &payload); err != nil {
			slog.Warn("dropping undecodable hit",
				slog.String("corpus", string(kind)),
				slog.String("error", err.Error()))
			continue
		}
		items = append(items, mk(payload, len(items)+1, h.Score))
	}
	return items
}

// rerankCorpus reranks the head of one corpus's fused list, leaving the
// tail beyond the pool in its fused order.
func rerankCorpus[T any](ctx context.Context, rr *Reranker, query string, list []Fused[T], render func(T) string, pool int) ([]Fused[T], bool, bool) {
	if len(list) < 2 {
		return list, false, false
	}

	head := len(list)
	if pool > 0 && head > pool {
		head = pool
	}

	docs := make([]string, head)
	for i := 0; i < head; i++ {
		docs[i] = render(list[i].Payload)
	}

	outcome := rr.Rerank(ctx, query, docs)

	out := make([]Fused[T], 0, len(list))
	for _, idx := range outcome.Order {
		out = append(out, list[idx])
	}
	out = append(out, list[head:]...)

	return out, outcome.Skipped, outcome.TimedOut
}

func truncateFused[T any](list []Fused[T], limit int) []Fused[T] {
	limit = clampLimit(limit)
	if len(list) > limit {
		return list[:limit]
	}
	return list
}

// enrich fills book and collection metadata on the final result slices.
// Lookup failures are logged and skipped.
func (e *Engine) enrich(ctx context.Context, res *Results) {
	if e.meta == nil {
		return
	}

	for i := range res.Passages {
		p := &res.Passages[i].Payload
		if p.BookTitle != "" {
			continue
		}
		title, author, err := e.meta.BookInfo(ctx, p.BookID)
		if err != nil {
			slog.Debug("book metadata lookup failed",
				slog.Int64("book_id", p.BookID),
				slog.String("error", err.Error()))
			continue
		}
		p.BookTitle = title
		p.AuthorName = author
	}

	for i := range res.Narrations {
		n := &res.Narrations[i].Payload
		if n.CollectionTitle != "" {
			continue
		}
		title, err := e.meta.CollectionInfo(ctx, n.CollectionID)
		if err != nil {
			slog.Debug("collection metadata lookup failed",
				slog.Int64("collection_id", n.CollectionID),
				slog.String("error", err.Error()))
			continue
		}
		n.CollectionTitle = title
	}
}

// record emits one telemetry event per completed query.
func (e *Engine) record(query string, opts Options, res *Results, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}

	mode := "standard"
	if opts.Refine {
		mode = "refine"
	}
	e.metrics.Observe(telemetry.QueryEvent{
		Query:           query,
		Mode:            mode,
		Strategy:        string(res.Classification.Strategy),
		RerankStrategy:  string(opts.Rerank),
		LatencyMs:       elapsed.Milliseconds(),
		ResultCount:     res.Total(),
		ZeroResults:     res.Total() == 0,
		SemanticSkipped: res.Classification.SkipSemantic,
		RerankSkipped:   res.RerankSkipped,
		RerankTimedOut:  res.RerankTimedOut,
		ExpandedQueries: len(res.Expanded),
	})
}
