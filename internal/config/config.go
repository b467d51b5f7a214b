// Package config loads maktaba configuration from YAML with environment
// overrides. Precedence: defaults, then the config file, then MAKTABA_*
// environment variables. Secrets (API keys) are environment-only and
// never read from the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	merr "github.com/maktaba-search/maktaba/internal/errors"
)

// Config is the root configuration.
type Config struct {
	Search     SearchConfig     `yaml:"search"`
	Backends   BackendsConfig   `yaml:"backends"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	LLM        LLMConfig        `yaml:"llm"`
	Reranker   RerankerConfig   `yaml:"reranker"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SearchConfig tunes fusion and orchestration.
type SearchConfig struct {
	SemanticWeight      float64 `yaml:"semantic_weight"`
	KeywordWeight       float64 `yaml:"keyword_weight"`
	LexicalNormK        float64 `yaml:"lexical_norm_k"`
	RRFConstant         int     `yaml:"rrf_constant"`
	BaseCutoff          float64 `yaml:"base_cutoff"`
	MinSemanticChars    int     `yaml:"min_semantic_chars"`
	CandidateMultiplier int     `yaml:"candidate_multiplier"`
	RerankPool          int     `yaml:"rerank_pool"`
	DefaultLimit        int     `yaml:"default_limit"`
}

// BackendsConfig selects and locates the retrieval backends.
type BackendsConfig struct {
	// Mode is "remote" (Qdrant + keyword service) or "local" (snapshot).
	Mode string `yaml:"mode"`

	Qdrant  QdrantConfig  `yaml:"qdrant"`
	Keyword KeywordConfig `yaml:"keyword"`

	// SnapshotDir holds the *.jsonl collection snapshots for local mode.
	SnapshotDir string `yaml:"snapshot_dir"`

	// Collection names, shared between vector collections and lexical
	// indexes.
	PassageCollection   string `yaml:"passage_collection"`
	VerseCollection     string `yaml:"verse_collection"`
	NarrationCollection string `yaml:"narration_collection"`
}

// QdrantConfig locates the vector backend.
type QdrantConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"-"`
	Timeout  time.Duration `yaml:"timeout"`
}

// KeywordConfig locates the lexical backend.
type KeywordConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"-"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`

	Timeout time.Duration `yaml:"timeout"`
}

// LLMConfig configures the completion service used by expansion and
// llm_prompt reranking.
type LLMConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"-"`
	Model    string `yaml:"model"`
}

// RerankerConfig configures the cross-encoder service.
type RerankerConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CatalogConfig locates the metadata catalog.
type CatalogConfig struct {
	Path      string `yaml:"path"`
	CacheSize int    `yaml:"cache_size"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			SemanticWeight:      0.8,
			KeywordWeight:       0.3,
			LexicalNormK:        5.0,
			RRFConstant:         60,
			BaseCutoff:          0.20,
			MinSemanticChars:    4,
			CandidateMultiplier: 2,
			RerankPool:          30,
			DefaultLimit:        10,
		},
		Backends: BackendsConfig{
			Mode:                "remote",
			Qdrant:              QdrantConfig{Endpoint: "http://localhost:6333", Timeout: 10 * time.Second},
			Keyword:             KeywordConfig{Endpoint: "http://localhost:7700", Timeout: 10 * time.Second},
			PassageCollection:   "passages",
			VerseCollection:     "verses",
			NarrationCollection: "narrations",
		},
		Embeddings: EmbeddingsConfig{
			Endpoint:   "https://api.openai.com/v1",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			CacheSize:  1024,
			Timeout:    5 * time.Second,
		},
		LLM: LLMConfig{
			Endpoint: "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
		},
		Reranker: RerankerConfig{
			Endpoint: "http://localhost:9659",
			Model:    "reranker-small",
			Timeout:  20 * time.Second,
		},
		Catalog: CatalogConfig{CacheSize: 4096},
		Logging: LoggingConfig{Level: "info", Format: "auto"},
	}
}

// Load reads the config at path over the defaults, then applies
// environment overrides. An empty path loads defaults and environment
// only; a named path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, merr.New(merr.ErrCodeConfigNotFound,
					fmt.Sprintf("config file %s not found", path), err)
			}
			return nil, merr.New(merr.ErrCodeConfigInvalid,
				fmt.Sprintf("read config %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, merr.New(merr.ErrCodeConfigInvalid,
				fmt.Sprintf("parse config %s", path), err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays MAKTABA_* environment variables.
func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("MAKTABA_BACKEND_MODE", &cfg.Backends.Mode)
	setString("MAKTABA_QDRANT_ENDPOINT", &cfg.Backends.Qdrant.Endpoint)
	setString("MAKTABA_QDRANT_API_KEY", &cfg.Backends.Qdrant.APIKey)
	setString("MAKTABA_KEYWORD_ENDPOINT", &cfg.Backends.Keyword.Endpoint)
	setString("MAKTABA_SNAPSHOT_DIR", &cfg.Backends.SnapshotDir)

	setString("MAKTABA_EMBED_ENDPOINT", &cfg.Embeddings.Endpoint)
	setString("MAKTABA_EMBED_API_KEY", &cfg.Embeddings.APIKey)
	setString("MAKTABA_EMBED_MODEL", &cfg.Embeddings.Model)
	setInt("MAKTABA_EMBED_DIMENSIONS", &cfg.Embeddings.Dimensions)

	setString("MAKTABA_LLM_ENDPOINT", &cfg.LLM.Endpoint)
	setString("MAKTABA_LLM_API_KEY", &cfg.LLM.APIKey)
	setString("MAKTABA_LLM_MODEL", &cfg.LLM.Model)

	setString("MAKTABA_RERANKER_ENDPOINT", &cfg.Reranker.Endpoint)
	setString("MAKTABA_RERANKER_MODEL", &cfg.Reranker.Model)

	setString("MAKTABA_CATALOG_PATH", &cfg.Catalog.Path)

	setString("MAKTABA_LOG_LEVEL", &cfg.Logging.Level)
	setString("MAKTABA_LOG_FORMAT", &cfg.Logging.Format)

	// OPENAI_API_KEY is the conventional fallback for both OpenAI-backed
	// services when the specific keys are unset.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.Embeddings.APIKey == "" {
			cfg.Embeddings.APIKey = key
		}
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = key
		}
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behavior.
func (c *Config) Validate() error {
	if c.Backends.Mode != "remote" && c.Backends.Mode != "local" {
		return merr.New(merr.ErrCodeConfigInvalid,
			fmt.Sprintf("backends.mode must be remote or local, got %q", c.Backends.Mode), nil)
	}
	if c.Backends.Mode == "local" && c.Backends.SnapshotDir == "" {
		return merr.New(merr.ErrCodeConfigInvalid,
			"backends.snapshot_dir is required in local mode", nil)
	}
	if c.Search.SemanticWeight <= 0 || c.Search.KeywordWeight <= 0 {
		return merr.New(merr.ErrCodeConfigInvalid,
			"search weights must be positive", nil)
	}
	if c.Search.LexicalNormK <= 0 {
		return merr.New(merr.ErrCodeConfigInvalid,
			"search.lexical_norm_k must be positive", nil)
	}
	if c.Search.BaseCutoff < 0 || c.Search.BaseCutoff >= 1 {
		return merr.New(merr.ErrCodeConfigInvalid,
			"search.base_cutoff must be in [0,1)", nil)
	}
	return nil
}
