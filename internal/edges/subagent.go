package edges

import (
	"regexp"

	"github.com/contextvault/memcore/internal/store"
)

const briefWeight = 0.9
const debriefWeight = 0.85

// subAgentSpawnPattern matches a Task/Agent/SubAgent tool invocation that
// spawns a sub-agent, capturing its agent id from either call-style or
// JSON-style transcripts.
var subAgentSpawnPattern = regexp.MustCompile(`(?i)\b(?:Task|Agent|SubAgent)\s*\([^)]*\bagent_id["'\s:=]+"?([\w.\-]+)"?|"agent_id"\s*:\s*"([\w.\-]+)"`)

// DetectSubAgentEdges links a parent's spawning chunk to the sub-agent's
// first chunk (brief), and the sub-agent's final chunk back to the
// parent's first chunk that starts at or after that final chunk ends
// (debrief).
func DetectSubAgentEdges(chunks []*store.Chunk) []*store.Edge {
	byAgent := chunksByAgent(chunks)
	var out []*store.Edge

	for _, c := range chunks {
		for _, m := range subAgentSpawnPattern.FindAllStringSubmatch(c.Content, -1) {
			agentID := firstMatch(m[1:])
			if agentID == "" || agentID == c.AgentID {
				continue
			}
			subChunks, ok := byAgent[agentID]
			if !ok || len(subChunks) == 0 {
				continue
			}

			first := subChunks[0]
			out = append(out, &store.Edge{
				ID:            "br-" + c.ID + "-" + first.ID,
				SourceChunkID: c.ID,
				TargetChunkID: first.ID,
				EdgeType:      store.EdgeBrief,
				InitialWeight: briefWeight,
				CreatedAt:     c.CreatedAt,
			})

			last := subChunks[len(subChunks)-1]
			receiving := firstChunkAfter(byAgent[c.AgentID], last)
			if receiving == nil {
				continue
			}
			out = append(out, &store.Edge{
				ID:            "db-" + last.ID + "-" + receiving.ID,
				SourceChunkID: last.ID,
				TargetChunkID: receiving.ID,
				EdgeType:      store.EdgeDebrief,
				InitialWeight: debriefWeight,
				CreatedAt:     receiving.CreatedAt,
			})
		}
	}
	return out
}

// firstChunkAfter returns the earliest chunk in parentChunks (sorted by
// start time) that begins at or after ref's end, or nil if none does.
func firstChunkAfter(parentChunks []*store.Chunk, ref *store.Chunk) *store.Chunk {
	var best *store.Chunk
	for _, pc := range parentChunks {
		if pc.StartTime.Before(ref.EndTime) {
			continue
		}
		if best == nil || pc.StartTime.Before(best.StartTime) {
			best = pc
		}
	}
	return best
}
