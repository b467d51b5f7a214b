package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merr "github.com/maktaba-search/maktaba/internal/errors"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.8, cfg.Search.SemanticWeight)
	assert.Equal(t, "remote", cfg.Backends.Mode)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Search, cfg.Search)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maktaba.yaml")
	content := `
search:
  semantic_weight: 0.7
  rerank_pool: 50
backends:
  mode: local
  snapshot_dir: /data/snapshots
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.Search.SemanticWeight)
	assert.Equal(t, 50, cfg.Search.RerankPool)
	assert.Equal(t, "local", cfg.Backends.Mode)
	assert.Equal(t, "/data/snapshots", cfg.Backends.SnapshotDir)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unmentioned fields keep their defaults.
	assert.Equal(t, 0.3, cfg.Search.KeywordWeight)
	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
}

func TestLoad_MissingNamedFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	var me *merr.MaktabaError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, merr.ErrCodeConfigNotFound, me.Code)
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: ["), 0o644))

	_, err := Load(path)
	assert.True(t, errors.Is(err, &merr.MaktabaError{Code: merr.ErrCodeConfigInvalid}))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MAKTABA_BACKEND_MODE", "local")
	t.Setenv("MAKTABA_SNAPSHOT_DIR", "/tmp/snap")
	t.Setenv("MAKTABA_EMBED_MODEL", "text-embedding-3-large")
	t.Setenv("MAKTABA_EMBED_DIMENSIONS", "3072")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Backends.Mode)
	assert.Equal(t, "/tmp/snap", cfg.Backends.SnapshotDir)
	assert.Equal(t, "text-embedding-3-large", cfg.Embeddings.Model)
	assert.Equal(t, 3072, cfg.Embeddings.Dimensions)
}

func TestLoad_OpenAIKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-shared")
	t.Setenv("MAKTABA_LLM_API_KEY", "sk-llm")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-shared", cfg.Embeddings.APIKey)
	assert.Equal(t, "sk-llm", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Backends.Mode = "hybrid" }},
		{"local without snapshot dir", func(c *Config) { c.Backends.Mode = "local"; c.Backends.SnapshotDir = "" }},
		{"zero semantic weight", func(c *Config) { c.Search.SemanticWeight = 0 }},
		{"negative keyword weight", func(c *Config) { c.Search.KeywordWeight = -1 }},
		{"zero norm k", func(c *Config) { c.Search.LexicalNormK = 0 }},
		{"cutoff out of range", func(c *Config) { c.Search.BaseCutoff = 1.0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			var me *merr.MaktabaError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, merr.ErrCodeConfigInvalid, me.Code)
		})
	}
}
