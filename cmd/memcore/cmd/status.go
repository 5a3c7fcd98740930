package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/contextvault/memcore/internal/cliutil"
)

// statusInfo is the JSON/plain-text shape reported by `memcore status`.
type statusInfo struct {
	DataDir       string `json:"data_dir"`
	TotalChunks   int    `json:"total_chunks"`
	VectorCount   int    `json:"vector_count"`
	KeywordDocs   int    `json:"keyword_docs"`
	MetadataBytes int64  `json:"metadata_bytes"`
	Dimensions    int    `json:"dimensions"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store health and size",
		Long: `Display information about the current memory store including:
  - Number of stored chunks and vectors
  - Keyword index document count
  - On-disk size of the metadata database`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg, nil)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer eng.close()

	info, err := collectStatus(ctx, eng)
	if err != nil {
		return fmt.Errorf("collect status: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	w := cliutil.NewWriter(cmd.OutOrStdout(), plainOutput)
	w.Label("data dir", info.DataDir)
	w.Label("chunks", fmt.Sprintf("%d", info.TotalChunks))
	w.Label("vectors", fmt.Sprintf("%d", info.VectorCount))
	w.Label("keyword docs", fmt.Sprintf("%d", info.KeywordDocs))
	w.Label("dimensions", fmt.Sprintf("%d", info.Dimensions))
	w.Label("metadata size", fmt.Sprintf("%d bytes", info.MetadataBytes))
	return nil
}

func collectStatus(ctx context.Context, eng *engine) (statusInfo, error) {
	info := statusInfo{
		DataDir:    eng.cfg.Paths.DataDir,
		Dimensions: eng.cfg.Vectors.Dimensions,
	}

	chunkCount, err := eng.metadata.CountChunks(ctx)
	if err != nil {
		return info, err
	}
	info.TotalChunks = chunkCount
	info.VectorCount = eng.vectors.Count()

	if stats := eng.keyword.Stats(); stats != nil {
		info.KeywordDocs = stats.DocumentCount
	}

	metaPath := filepath.Join(eng.cfg.Paths.DataDir, "memory.db")
	if stat, err := os.Stat(metaPath); err == nil {
		info.MetadataBytes = stat.Size()
	}

	return info, nil
}
