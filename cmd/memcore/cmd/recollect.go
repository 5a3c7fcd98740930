package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/contextvault/memcore/internal/cliutil"
	"github.com/contextvault/memcore/internal/retrieval"
)

func newRecollectCmd() *cobra.Command {
	var (
		maxTokens  int
		sessionID  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "recollect <query>",
		Short: "Run assemble_context for a query and print the assembled text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecollect(cmd, strings.Join(args, " "), maxTokens, sessionID, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Override the configured response token budget")
	cmd.Flags().StringVar(&sessionID, "session", "", "Current session id; its chunks get the recency boost")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the full response as JSON")

	return cmd
}

func runRecollect(cmd *cobra.Command, query string, maxTokens int, sessionID string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg, nil)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer eng.close()

	resp, err := eng.retrieval.AssembleContext(cmd.Context(), retrieval.Request{
		Query:            query,
		CurrentSessionID: sessionID,
		MaxTokens:        maxTokens,
	})
	if err != nil {
		return fmt.Errorf("assemble context: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	w := cliutil.NewWriter(cmd.OutOrStdout(), plainOutput)
	fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
	w.Newline()
	w.Label("tokens", fmt.Sprintf("%d", resp.TokenCount))
	w.Label("chunks included", fmt.Sprintf("%d of %d considered", len(resp.Chunks), resp.TotalConsidered))
	w.Label("duration", fmt.Sprintf("%dms", resp.DurationMs))
	return nil
}
