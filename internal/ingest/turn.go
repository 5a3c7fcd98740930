// Package ingest assembles parsed session turns into chunks, embeds and
// indexes them, runs edge detection, and watches the transcript directory
// for new sessions to pick up. Transcript file parsing itself stays an
// external collaborator: this package only ever consumes already parsed
// Turn values.
package ingest

import "time"

// ToolUse is a single assistant tool invocation within a turn.
type ToolUse struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolExchange pairs a tool_use id with its stringified result.
type ToolExchange struct {
	ToolUseID string
	Result    string
}

// AssistantBlock is one block of an assistant's turn response. Type is
// either "text" or "tool_use"; ToolUse is set only for the latter.
type AssistantBlock struct {
	Type    string
	Text    string
	ToolUse *ToolUse
}

// Turn is one exchange in a session transcript, already parsed by the
// external transcript reader. AgentID identifies which agent produced the
// turn; it is empty for solo sessions and set per-turn in team sessions
// where a lead agent and one or more sub-agents interleave.
type Turn struct {
	Index           int
	AgentID         string
	StartTime       time.Time
	UserText        string
	AssistantBlocks []AssistantBlock
	ToolExchanges   []ToolExchange
	RawMessages     []string
}
