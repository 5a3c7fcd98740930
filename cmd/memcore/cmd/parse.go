package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/contextvault/memcore/internal/ingest"
)

// transcriptFile is the on-disk shape defaultParseFunc expects: a single
// JSON document per session. Real deployments parse whatever transcript
// format their coding assistant actually writes; this is a stand-in that
// lets ingest/serve run end to end against a simple, documented format
// rather than leaving ParseFunc unimplemented.
type transcriptFile struct {
	SessionID   string               `json:"session_id"`
	SessionSlug string               `json:"session_slug"`
	LeadAgentID string               `json:"lead_agent_id"`
	Turns       []transcriptFileTurn `json:"turns"`
}

type transcriptFileTurn struct {
	Index           int                     `json:"index"`
	AgentID         string                  `json:"agent_id"`
	StartTime       time.Time               `json:"start_time"`
	UserText        string                  `json:"user_text"`
	AssistantBlocks []transcriptFileBlock   `json:"assistant_blocks"`
	ToolExchanges   []transcriptFileToolXch `json:"tool_exchanges"`
}

type transcriptFileBlock struct {
	Type    string              `json:"type"`
	Text    string              `json:"text,omitempty"`
	ToolUse *transcriptFileTool `json:"tool_use,omitempty"`
}

type transcriptFileTool struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

type transcriptFileToolXch struct {
	ToolUseID string `json:"tool_use_id"`
	Result    string `json:"result"`
}

// defaultParseFunc reads one transcriptFile JSON document and converts it
// into the turns ingest.Pipeline.IngestSession expects.
func defaultParseFunc(_ context.Context, path string) (sessionID, sessionSlug, leadAgentID string, turns []ingest.Turn, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", "", nil, fmt.Errorf("read transcript %s: %w", path, err)
	}

	var doc transcriptFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", "", "", nil, fmt.Errorf("decode transcript %s: %w", path, err)
	}

	turns = make([]ingest.Turn, len(doc.Turns))
	for i, t := range doc.Turns {
		blocks := make([]ingest.AssistantBlock, len(t.AssistantBlocks))
		for j, b := range t.AssistantBlocks {
			block := ingest.AssistantBlock{Type: b.Type, Text: b.Text}
			if b.ToolUse != nil {
				block.ToolUse = &ingest.ToolUse{ID: b.ToolUse.ID, Name: b.ToolUse.Name, Input: b.ToolUse.Input}
			}
			blocks[j] = block
		}

		exchanges := make([]ingest.ToolExchange, len(t.ToolExchanges))
		for j, x := range t.ToolExchanges {
			exchanges[j] = ingest.ToolExchange{ToolUseID: x.ToolUseID, Result: x.Result}
		}

		turns[i] = ingest.Turn{
			Index:           t.Index,
			AgentID:         t.AgentID,
			StartTime:       t.StartTime,
			UserText:        t.UserText,
			AssistantBlocks: blocks,
			ToolExchanges:   exchanges,
		}
	}

	return doc.SessionID, doc.SessionSlug, doc.LeadAgentID, turns, nil
}
