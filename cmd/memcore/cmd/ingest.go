package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/contextvault/memcore/internal/cliutil"
	"github.com/contextvault/memcore/internal/ingest"
)

var transcriptExtensions = []string{".json"}

func newIngestCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest transcript files into the memory store",
		Long: `Walk the configured transcript directory once, parsing and storing every
session found. With --watch, keep running and ingest new or changed
transcript files as they appear.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Keep watching the transcript directory after the initial scan")
	return cmd
}

func runIngest(cmd *cobra.Command, watch bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg, nil)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer eng.close()

	w := cliutil.NewWriter(cmd.OutOrStdout(), plainOutput)

	watcher, err := ingest.NewTranscriptWatcher(transcriptExtensions, 200*time.Millisecond)
	if err != nil {
		return fmt.Errorf("create transcript watcher: %w", err)
	}
	scanner := ingest.NewScanner(watcher, eng.ingest, defaultParseFunc, eng.log)

	ctx := cmd.Context()
	w.Successf("scanning %s", cfg.Paths.TranscriptDir)
	if err := scanner.ScanExisting(ctx, cfg.Paths.TranscriptDir, transcriptExtensions); err != nil {
		return fmt.Errorf("scan transcripts: %w", err)
	}
	w.Success("initial scan complete")

	if !watch {
		return nil
	}

	w.Successf("watching %s for changes", cfg.Paths.TranscriptDir)
	return scanner.Run(ctx, cfg.Paths.TranscriptDir)
}
