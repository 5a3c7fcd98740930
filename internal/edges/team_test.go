package edges

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextvault/memcore/internal/store"
)

func agentChunk(id, agentID string, start time.Time, content string) *store.Chunk {
	return &store.Chunk{
		ID:        id,
		AgentID:   agentID,
		StartTime: start,
		EndTime:   start.Add(time.Minute),
		Content:   content,
		CreatedAt: start,
	}
}

func TestDetectTeamSpawnEdgesLinksLeadToTeammateFirstChunk(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	lead := agentChunk("lead-1", "lead", base, `Task(team_name="researcher", prompt="look into X")`)
	teammateFirst := agentChunk("researcher-1", "researcher", base.Add(time.Minute), "starting research")
	teammateSecond := agentChunk("researcher-2", "researcher", base.Add(2*time.Minute), "found something")

	out := DetectTeamSpawnEdges([]*store.Chunk{lead, teammateFirst, teammateSecond})

	require.Len(t, out, 1)
	assert.Equal(t, "lead-1", out[0].SourceChunkID)
	assert.Equal(t, "researcher-1", out[0].TargetChunkID)
	assert.Equal(t, store.EdgeTeamSpawn, out[0].EdgeType)
}

func TestDetectTeamSpawnEdgesIgnoresUnknownTeamName(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	lead := agentChunk("lead-1", "lead", base, `Task(team_name="ghost", prompt="x")`)

	out := DetectTeamSpawnEdges([]*store.Chunk{lead})

	assert.Empty(t, out)
}

func TestDetectSendMessageEdgesTeamReportViaReceiveMarker(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	teammate := agentChunk("researcher-1", "researcher", base, `SendMessage(to="lead", message="done")`)
	leadChunk := agentChunk("lead-2", "lead", base.Add(time.Hour), `<cross-session-message from="researcher"> done </cross-session-message>`)

	out := DetectSendMessageEdges([]*store.Chunk{teammate, leadChunk}, "lead")

	require.Len(t, out, 1)
	assert.Equal(t, "researcher-1", out[0].SourceChunkID)
	assert.Equal(t, "lead-2", out[0].TargetChunkID)
	assert.Equal(t, store.EdgeTeamReport, out[0].EdgeType)
}

func TestDetectSendMessageEdgesPeerMessageWhenRecipientNotLead(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	sender := agentChunk("researcher-1", "researcher", base, `SendMessage(to="writer", message="here are notes")`)
	recipient := agentChunk("writer-1", "writer", base.Add(5*time.Second), "got the notes")

	out := DetectSendMessageEdges([]*store.Chunk{sender, recipient}, "lead")

	require.Len(t, out, 1)
	assert.Equal(t, store.EdgePeerMessage, out[0].EdgeType)
	assert.Equal(t, "writer-1", out[0].TargetChunkID)
}

func TestDetectSendMessageEdgesFallsBackToTimestampProximity(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	sender := agentChunk("researcher-1", "researcher", base, `SendMessage(to="lead", message="done")`)
	tooFar := agentChunk("lead-far", "lead", base.Add(time.Hour), "unrelated later work")
	nearMatch := agentChunk("lead-near", "lead", base.Add(10*time.Second), "ok thanks")

	out := DetectSendMessageEdges([]*store.Chunk{sender, tooFar, nearMatch}, "lead")

	require.Len(t, out, 1)
	assert.Equal(t, "lead-near", out[0].TargetChunkID)
}

func TestDetectSendMessageEdgesNoMatchWithinWindowYieldsNothing(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	sender := agentChunk("researcher-1", "researcher", base, `SendMessage(to="lead", message="done")`)
	farLead := agentChunk("lead-far", "lead", base.Add(time.Hour), "unrelated later work")

	out := DetectSendMessageEdges([]*store.Chunk{sender, farLead}, "lead")

	assert.Empty(t, out)
}
