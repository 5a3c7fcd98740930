package edges

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/contextvault/memcore/internal/store"
)

// receiveMarkerWindow bounds the fallback timestamp-proximity match for a
// SendMessage edge when no receive-marker is found in the recipient's
// turns ( team-session rules).
const receiveMarkerWindow = 30 * time.Second

const teamSpawnWeight = 0.9
const teamReportWeight = 0.8
const peerMessageWeight = 0.7

// taskTeamSpawnPattern matches a Task tool invocation carrying a
// team_name argument, in either call-style (`Task(..., team_name="x", ...)`)
// or JSON-style (`"team_name": "x"`) transcripts.
var taskTeamSpawnPattern = regexp.MustCompile(`(?i)\bTask\s*\([^)]*\bteam_name["'\s:=]+"?([\w.\-]+)"?|"team_name"\s*:\s*"([\w.\-]+)"`)

// sendMessagePattern matches a SendMessage tool invocation and captures
// its recipient ("to" argument).
var sendMessagePattern = regexp.MustCompile(`(?i)\bSendMessage\s*\([^)]*\bto["'\s:=]+"?([\w.\-]+)"?|"to"\s*:\s*"([\w.\-]+)"`)

// crossSessionReceiveMarkerPattern matches the receive-marker a recipient's
// transcript embeds when it gets a cross-session message, capturing the
// sender's name.
var crossSessionReceiveMarkerPattern = regexp.MustCompile(`<cross-session-message\s+from="([\w.\-]+)"`)

func firstMatch(groups []string) string {
	for _, g := range groups {
		if g != "" {
			return g
		}
	}
	return ""
}

// DetectTeamSpawnEdges finds Task(team_name=...) invocations in the lead's
// chunks and links the lead's containing chunk to the named teammate's
// first chunk (by AgentID and start time).
func DetectTeamSpawnEdges(chunks []*store.Chunk) []*store.Edge {
	firstByAgent := firstChunkByAgent(chunks)
	var out []*store.Edge
	for _, c := range chunks {
		matches := taskTeamSpawnPattern.FindAllStringSubmatch(c.Content, -1)
		for _, m := range matches {
			teamName := firstMatch(m[1:])
			if teamName == "" {
				continue
			}
			target, ok := firstByAgent[teamName]
			if !ok || target.ID == c.ID {
				continue
			}
			out = append(out, &store.Edge{
				ID:            "ts-" + c.ID + "-" + target.ID,
				SourceChunkID: c.ID,
				TargetChunkID: target.ID,
				EdgeType:      store.EdgeTeamSpawn,
				InitialWeight: teamSpawnWeight,
				CreatedAt:     c.CreatedAt,
			})
		}
	}
	return out
}

// DetectSendMessageEdges finds SendMessage invocations and links the
// sender's chunk to the recipient's matching chunk: a team-report edge
// when the recipient is leadAgentID, a peer-message edge otherwise.
// Matching prefers a <cross-session-message from="sender"> marker in the
// recipient's turns, falling back to timestamp proximity within 30s.
func DetectSendMessageEdges(chunks []*store.Chunk, leadAgentID string) []*store.Edge {
	byAgent := chunksByAgent(chunks)
	var out []*store.Edge
	for _, c := range chunks {
		matches := sendMessagePattern.FindAllStringSubmatch(c.Content, -1)
		for _, m := range matches {
			recipient := firstMatch(m[1:])
			if recipient == "" || recipient == c.AgentID {
				continue
			}
			target := findReceiveTarget(byAgent[recipient], c)
			if target == nil {
				continue
			}
			edgeType := store.EdgePeerMessage
			weight := peerMessageWeight
			if recipient == leadAgentID {
				edgeType = store.EdgeTeamReport
				weight = teamReportWeight
			}
			out = append(out, &store.Edge{
				ID:            "sm-" + c.ID + "-" + target.ID,
				SourceChunkID: c.ID,
				TargetChunkID: target.ID,
				EdgeType:      edgeType,
				InitialWeight: weight,
				CreatedAt:     c.CreatedAt,
			})
		}
	}
	return out
}

// findReceiveTarget locates the chunk in a recipient's turns that received
// sender's message: first by an explicit receive-marker naming the
// sender, then by nearest start time within receiveMarkerWindow.
func findReceiveTarget(recipientChunks []*store.Chunk, sender *store.Chunk) *store.Chunk {
	for _, rc := range recipientChunks {
		for _, m := range crossSessionReceiveMarkerPattern.FindAllStringSubmatch(rc.Content, -1) {
			if strings.EqualFold(m[1], sender.AgentID) {
				return rc
			}
		}
	}

	var best *store.Chunk
	var bestGap time.Duration
	for _, rc := range recipientChunks {
		gap := rc.StartTime.Sub(sender.StartTime)
		if gap < 0 {
			gap = -gap
		}
		if gap > receiveMarkerWindow {
			continue
		}
		if best == nil || gap < bestGap {
			best, bestGap = rc, gap
		}
	}
	return best
}

func firstChunkByAgent(chunks []*store.Chunk) map[string]*store.Chunk {
	grouped := chunksByAgent(chunks)
	out := make(map[string]*store.Chunk, len(grouped))
	for agent, cs := range grouped {
		out[agent] = cs[0]
	}
	return out
}

func chunksByAgent(chunks []*store.Chunk) map[string][]*store.Chunk {
	out := make(map[string][]*store.Chunk)
	for _, c := range chunks {
		out[c.AgentID] = append(out[c.AgentID], c)
	}
	for agent := range out {
		sort.Slice(out[agent], func(i, j int) bool {
			return out[agent][i].StartTime.Before(out[agent][j].StartTime)
		})
	}
	return out
}
