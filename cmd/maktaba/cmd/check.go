package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maktaba-search/maktaba/internal/backend/keyword"
	"github.com/maktaba-search/maktaba/internal/backend/qdrant"
	"github.com/maktaba-search/maktaba/internal/preflight"
	"github.com/maktaba-search/maktaba/internal/search"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that the configured backends and services are reachable",
		Long: `Check probes every service the current configuration names and
reports which are reachable. Required backends failing means search
cannot run; optional services failing means the engine degrades
(keyword-only retrieval, no expansion, no reranking).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			opts := []preflight.Option{preflight.WithOutput(cmd.OutOrStdout())}

			if cfg.Backends.Mode != "local" {
				vector := qdrant.New(qdrant.Config{
					Endpoint: cfg.Backends.Qdrant.Endpoint,
					APIKey:   cfg.Backends.Qdrant.APIKey,
					Timeout:  cfg.Backends.Qdrant.Timeout,
				})
				defer func() { _ = vector.Close() }()
				lexical := keyword.New(keyword.Config{
					Endpoint: cfg.Backends.Keyword.Endpoint,
					Timeout:  cfg.Backends.Keyword.Timeout,
				})
				defer func() { _ = lexical.Close() }()
				opts = append(opts,
					preflight.WithVectorProber(vector),
					preflight.WithKeywordProber(lexical))
			}

			if cfg.Reranker.Endpoint != "" {
				cross := search.NewCrossEncoder(search.CrossEncoderConfig{
					Endpoint: cfg.Reranker.Endpoint,
					Model:    cfg.Reranker.Model,
					Timeout:  cfg.Reranker.Timeout,
				})
				defer func() { _ = cross.Close() }()
				opts = append(opts, preflight.WithCrossEncoderProber(cross))
			}

			checker := preflight.New(cfg, opts...)
			results := checker.RunAll(cmd.Context())
			checker.PrintResults(results)

			if preflight.HasCriticalFailures(results) {
				return fmt.Errorf("required checks failed")
			}
			return nil
		},
	}
}
