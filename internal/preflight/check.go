// Package preflight validates that the retrieval backends and external
// services a configuration names are actually reachable before serving
// queries. Required checks gate startup; optional ones only warn, since
// the engine degrades without those services anyway.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/maktaba-search/maktaba/internal/config"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a degraded but serviceable state.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Required bool        `json:"required"`
}

// IsCritical reports whether this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Prober reports whether a remote service answers its health endpoint.
// The backend and reranker clients all satisfy it.
type Prober interface {
	Available(ctx context.Context) bool
}

// Checker runs readiness checks for one configuration.
type Checker struct {
	cfg    *config.Config
	output io.Writer

	vector      Prober
	keyword     Prober
	crossEncode Prober
}

// Option configures a Checker.
type Option func(*Checker)

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.output = w }
}

// WithVectorProber sets the vector backend probe (remote mode).
func WithVectorProber(p Prober) Option {
	return func(c *Checker) { c.vector = p }
}

// WithKeywordProber sets the keyword backend probe (remote mode).
func WithKeywordProber(p Prober) Option {
	return func(c *Checker) { c.keyword = p }
}

// WithCrossEncoderProber sets the reranking service probe.
func WithCrossEncoderProber(p Prober) Option {
	return func(c *Checker) { c.crossEncode = p }
}

// New creates a Checker for cfg.
func New(cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{cfg: cfg, output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check applicable to the configuration.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	var results []CheckResult

	if c.cfg.Backends.Mode == "local" {
		results = append(results, c.CheckSnapshotDir())
	} else {
		results = append(results, c.checkService(ctx, "vector_backend", c.vector, c.cfg.Backends.Qdrant.Endpoint, true))
		results = append(results, c.checkService(ctx, "keyword_backend", c.keyword, c.cfg.Backends.Keyword.Endpoint, true))
	}

	results = append(results, c.CheckEmbeddingsKey())
	results = append(results, c.CheckLLMKey())
	results = append(results, c.checkService(ctx, "cross_encoder", c.crossEncode, c.cfg.Reranker.Endpoint, false))
	results = append(results, c.CheckCatalog())

	return results
}

// CheckSnapshotDir verifies that local mode has collection snapshots to
// load.
func (c *Checker) CheckSnapshotDir() CheckResult {
	result := CheckResult{Name: "snapshot_dir", Required: true}

	dir := c.cfg.Backends.SnapshotDir
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	switch {
	case err != nil || len(matches) == 0:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("no collection snapshots in %s", dir)
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d collection(s) in %s", len(matches), dir)
	}
	return result
}

// CheckEmbeddingsKey verifies the embedding service is usable. Missing
// credentials only warn: queries fall back to keyword-only retrieval.
func (c *Checker) CheckEmbeddingsKey() CheckResult {
	result := CheckResult{Name: "embeddings"}
	if c.cfg.Embeddings.APIKey == "" {
		result.Status = StatusWarn
		result.Message = "no API key; semantic search disabled, keyword-only"
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("model %s", c.cfg.Embeddings.Model)
	return result
}

// CheckLLMKey verifies the completion service is usable. Missing
// credentials only warn: refine mode runs on the original query and
// llm_prompt reranking degrades to fused order.
func (c *Checker) CheckLLMKey() CheckResult {
	result := CheckResult{Name: "llm"}
	if c.cfg.LLM.APIKey == "" {
		result.Status = StatusWarn
		result.Message = "no API key; query expansion and llm_prompt reranking disabled"
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("model %s", c.cfg.LLM.Model)
	return result
}

// CheckCatalog verifies the metadata catalog exists. Results render
// without titles and author names when it is absent.
func (c *Checker) CheckCatalog() CheckResult {
	result := CheckResult{Name: "catalog"}
	if c.cfg.Catalog.Path == "" {
		result.Status = StatusWarn
		result.Message = "no catalog path; results omit book and collection metadata"
		return result
	}
	if _, err := os.Stat(c.cfg.Catalog.Path); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("catalog %s not readable", c.cfg.Catalog.Path)
		return result
	}
	result.Status = StatusPass
	result.Message = c.cfg.Catalog.Path
	return result
}

func (c *Checker) checkService(ctx context.Context, name string, p Prober, endpoint string, required bool) CheckResult {
	result := CheckResult{Name: name, Required: required}

	if p == nil {
		result.Status = StatusWarn
		result.Message = "not configured"
		if required {
			result.Status = StatusFail
		}
		return result
	}
	if !p.Available(ctx) {
		result.Message = fmt.Sprintf("%s not reachable", endpoint)
		result.Status = StatusWarn
		if required {
			result.Status = StatusFail
		}
		return result
	}
	result.Status = StatusPass
	result.Message = endpoint
	return result
}

// HasCriticalFailures reports whether any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a one-word summary for the results.
func SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status == StatusWarn {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "Maktaba System Check")
	_, _ = fmt.Fprintln(c.output, "====================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(SummaryStatus(results)))
}
