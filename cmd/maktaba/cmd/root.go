// Package cmd provides the CLI commands for maktaba.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maktaba-search/maktaba/internal/config"
	"github.com/maktaba-search/maktaba/internal/logging"
	"github.com/maktaba-search/maktaba/pkg/version"
)

var (
	configPath string
	debugMode  bool
)

// NewRootCmd creates the root command for the maktaba CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maktaba",
		Short: "Hybrid search over a classical Arabic text library",
		Long: `Maktaba answers natural-language queries across three corpora:
book passages, scripture verses, and short narrations.

Each query runs dense semantic search and sparse keyword search in
parallel; the results are fused, optionally expanded into multiple
phrasings, and optionally reranked by an external model.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("maktaba version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (YAML)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig loads configuration and installs the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logCfg := logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if debugMode {
		logCfg.Level = "debug"
	}
	logging.Setup(logCfg)

	return cfg, nil
}
