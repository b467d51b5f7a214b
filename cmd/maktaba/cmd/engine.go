package cmd

import (
	"fmt"
	"log/slog"

	"github.com/maktaba-search/maktaba/internal/backend"
	"github.com/maktaba-search/maktaba/internal/backend/keyword"
	"github.com/maktaba-search/maktaba/internal/backend/local"
	"github.com/maktaba-search/maktaba/internal/backend/qdrant"
	"github.com/maktaba-search/maktaba/internal/config"
	"github.com/maktaba-search/maktaba/internal/embed"
	"github.com/maktaba-search/maktaba/internal/llm"
	"github.com/maktaba-search/maktaba/internal/search"
	"github.com/maktaba-search/maktaba/internal/store"
	"github.com/maktaba-search/maktaba/internal/telemetry"
)

// buildEngine wires the search engine from configuration. The returned
// cleanup closes whatever was opened; it is safe to call once.
func buildEngine(cfg *config.Config) (*search.Engine, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	vector, lexical, backendCleanup, err := buildBackends(cfg)
	if err != nil {
		return nil, nil, err
	}
	if backendCleanup != nil {
		cleanups = append(cleanups, backendCleanup)
	}

	var embedder embed.Embedder
	if cfg.Embeddings.APIKey != "" {
		base, err := embed.NewOpenAIEmbedder(embed.OpenAIConfig{
			APIKey:     cfg.Embeddings.APIKey,
			Endpoint:   cfg.Embeddings.Endpoint,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("embedder: %w", err)
		}
		embedder = embed.NewCachedEmbedder(base, cfg.Embeddings.CacheSize)
	} else {
		slog.Warn("no embedding api key configured, semantic search disabled")
	}

	opts := []search.Option{
		search.WithConfig(engineConfig(cfg)),
		search.WithMetrics(telemetry.NewMetrics(200)),
	}

	if cfg.LLM.APIKey != "" {
		completer, err := llm.New(llm.Config{
			APIKey:   cfg.LLM.APIKey,
			Endpoint: cfg.LLM.Endpoint,
			Model:    cfg.LLM.Model,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("llm: %w", err)
		}
		opts = append(opts,
			search.WithCompleter(completer),
			search.WithExpander(search.NewExpander(completer, search.DefaultExpanderConfig())))
	}

	if cfg.Reranker.Endpoint != "" {
		cross := search.NewCrossEncoder(search.CrossEncoderConfig{
			Endpoint: cfg.Reranker.Endpoint,
			Model:    cfg.Reranker.Model,
			Timeout:  cfg.Reranker.Timeout,
		})
		cleanups = append(cleanups, func() { _ = cross.Close() })
		opts = append(opts, search.WithCrossEncoder(cross))
	}

	if cfg.Catalog.Path != "" {
		catalog, err := store.Open(cfg.Catalog.Path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("catalog: %w", err)
		}
		cached := store.NewCachedStore(catalog, cfg.Catalog.CacheSize)
		cleanups = append(cleanups, func() { _ = cached.Close() })
		opts = append(opts, search.WithMetadata(cached))
	}

	return search.NewEngine(vector, lexical, embedder, opts...), cleanup, nil
}

// buildBackends selects remote services or snapshot-backed local indexes.
func buildBackends(cfg *config.Config) (backend.VectorSearcher, backend.LexicalSearcher, func(), error) {
	switch cfg.Backends.Mode {
	case "local":
		snap, err := local.LoadSnapshot(cfg.Backends.SnapshotDir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load snapshot: %w", err)
		}
		vector, lexical, err := local.Build(snap)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("build local indexes: %w", err)
		}
		return vector, lexical, func() { _ = lexical.Close() }, nil

	default:
		vector := qdrant.New(qdrant.Config{
			Endpoint: cfg.Backends.Qdrant.Endpoint,
			APIKey:   cfg.Backends.Qdrant.APIKey,
			Timeout:  cfg.Backends.Qdrant.Timeout,
		})
		lexical := keyword.New(keyword.Config{
			Endpoint: cfg.Backends.Keyword.Endpoint,
			Timeout:  cfg.Backends.Keyword.Timeout,
		})
		cleanup := func() {
			_ = vector.Close()
			_ = lexical.Close()
		}
		return vector, lexical, cleanup, nil
	}
}

func engineConfig(cfg *config.Config) search.Config {
	return search.Config{
		Fusion: search.FusionConfig{
			SemanticWeight: cfg.Search.SemanticWeight,
			KeywordWeight:  cfg.Search.KeywordWeight,
			LexicalNormK:   cfg.Search.LexicalNormK,
			RRFConstant:    cfg.Search.RRFConstant,
		},
		BaseCutoff:          cfg.Search.BaseCutoff,
		MinSemanticChars:    cfg.Search.MinSemanticChars,
		CandidateMultiplier: cfg.Search.CandidateMultiplier,
		RerankPool:          cfg.Search.RerankPool,
		PassageCollection:   cfg.Backends.PassageCollection,
		VerseCollection:     cfg.Backends.VerseCollection,
		NarrationCollection: cfg.Backends.NarrationCollection,
	}
}
