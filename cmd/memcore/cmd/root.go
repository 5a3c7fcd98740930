// Package cmd provides the CLI commands for memcore.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/contextvault/memcore/internal/config"
	"github.com/contextvault/memcore/internal/logging"
)

var (
	dataDirFlag string
	debugMode   bool
	plainOutput bool
	loggingDone func()
)

// NewRootCmd creates the root command for the memcore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memcore",
		Short: "Local-first long-term memory store for AI coding sessions",
		Long: `memcore keeps a decaying, clustered graph of past coding-assistant
sessions on disk and serves hybrid BM25 + semantic retrieval over it.

It runs entirely locally: transcripts are ingested into chunks, embedded,
linked by conversational edges, periodically reclustered, and queried
through assemble_context.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Override the configured data directory")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.memcore/logs/")
	cmd.PersistentFlags().BoolVar(&plainOutput, "plain", false, "Disable colored/TTY-aware output")

	cmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		logCfg := logging.DefaultConfig()
		if debugMode {
			logCfg = logging.DebugConfig()
		}
		logger, cleanup, err := logging.Setup(logCfg)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		loggingDone = cleanup
		slog.SetDefault(logger)
		return nil
	}
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingDone != nil {
			loggingDone()
			loggingDone = nil
		}
	}

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newRecollectCmd())
	cmd.AddCommand(newMaintainCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig assembles configuration for the current directory, applying
// --data-dir as the highest-precedence override.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}
	if dataDirFlag != "" {
		cfg.Paths.DataDir = dataDirFlag
	}
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.Paths.DataDir, err)
	}
	return cfg, nil
}
