package ingest

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/contextvault/memcore/internal/store"
	"github.com/contextvault/memcore/internal/tokencount"
)

// defaultChunkTokenBudget bounds how many turns from the same agent get
// merged into a single chunk before a new one starts: chosen to keep
// chunks small enough for focused retrieval while avoiding a chunk per
// turn for long uninterrupted tool-use runs.
const defaultChunkTokenBudget = 800

var fencedCodeBlockCountPattern = regexp.MustCompile("(?s)```.*?```")

// Assembler groups a session's turns into chunks.
type Assembler struct {
	counter     tokencount.Counter
	tokenBudget int
}

// NewAssembler builds an Assembler using counter to estimate chunk sizes.
func NewAssembler(counter tokencount.Counter) *Assembler {
	return &Assembler{counter: counter, tokenBudget: defaultChunkTokenBudget}
}

// Assemble groups turns into contiguous same-agent runs bounded by the
// token budget and converts each run into a Chunk. Turns are sorted by
// Index first; the caller need not pre-sort them.
func (a *Assembler) Assemble(sessionID, sessionSlug string, turns []Turn) []*store.Chunk {
	if len(turns) == 0 {
		return nil
	}
	sorted := make([]Turn, len(turns))
	copy(sorted, turns)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	var chunks []*store.Chunk
	start := 0
	tokens := 0
	for i := range sorted {
		turnTokens := a.counter.Count(turnText(sorted[i]))
		if i > start && (sorted[i].AgentID != sorted[start].AgentID || tokens+turnTokens > a.tokenBudget) {
			chunks = append(chunks, a.buildChunk(sessionID, sessionSlug, sorted, start, i))
			start = i
			tokens = 0
		}
		tokens += turnTokens
	}
	chunks = append(chunks, a.buildChunk(sessionID, sessionSlug, sorted, start, len(sorted)))
	return chunks
}

func (a *Assembler) buildChunk(sessionID, sessionSlug string, turns []Turn, start, end int) *store.Chunk {
	group := turns[start:end]
	var content strings.Builder
	var indices []int
	toolUseCount := 0
	for _, t := range group {
		indices = append(indices, t.Index)
		content.WriteString(turnText(t))
		content.WriteString("\n")
		for _, block := range t.AssistantBlocks {
			if block.Type == "tool_use" {
				toolUseCount++
			}
		}
		toolUseCount += len(t.ToolExchanges)
	}

	endTime := group[len(group)-1].StartTime
	if end < len(turns) {
		endTime = turns[end].StartTime
	}

	text := content.String()
	return &store.Chunk{
		ID:             chunkID(sessionID, group[0].Index),
		SessionID:      sessionID,
		SessionSlug:    sessionSlug,
		AgentID:        group[0].AgentID,
		TurnIndices:    indices,
		StartTime:      group[0].StartTime,
		EndTime:        endTime,
		Content:        text,
		ApproxTokens:   a.counter.Count(text),
		CodeBlockCount: len(fencedCodeBlockCountPattern.FindAllString(text, -1)),
		ToolUseCount:   toolUseCount,
		CreatedAt:      time.Now(),
	}
}

func turnText(t Turn) string {
	var b strings.Builder
	if t.UserText != "" {
		b.WriteString(t.UserText)
		b.WriteString("\n")
	}
	for _, block := range t.AssistantBlocks {
		if block.Type == "tool_use" && block.ToolUse != nil {
			b.WriteString(fmt.Sprintf("%s(%v)\n", block.ToolUse.Name, block.ToolUse.Input))
			continue
		}
		b.WriteString(block.Text)
		b.WriteString("\n")
	}
	for _, ex := range t.ToolExchanges {
		b.WriteString(ex.Result)
		b.WriteString("\n")
	}
	return b.String()
}

func chunkID(sessionID string, firstTurnIndex int) string {
	return sessionID + ":" + strconv.Itoa(firstTurnIndex)
}
