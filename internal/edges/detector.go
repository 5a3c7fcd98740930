// Package edges implements ingest-time edge detection —
// topic-shift-gated within-chain classification, intra-/inter-turn
// structure, and team/sub-agent coordination edges.
package edges

import "github.com/contextvault/memcore/internal/store"

// Detector runs every edge detector over a session's chunks.
type Detector struct {
	// LeadAgentID identifies the team lead for a team session, used to
	// tell a team-report edge (recipient is the lead) apart from a
	// peer-message edge (recipient is another teammate). Leave empty for
	// a solo session; team/sub-agent detectors then produce nothing.
	LeadAgentID string
}

// New builds a Detector for a team session with the given lead agent id.
// Pass an empty string for solo sessions.
func New(leadAgentID string) *Detector {
	return &Detector{LeadAgentID: leadAgentID}
}

// DetectAll runs every detector over chunks (assumed to belong to one
// session) and returns the full edge set ready for CreateOrBoostEdge.
func (d *Detector) DetectAll(chunks []*store.Chunk) []*store.Edge {
	var out []*store.Edge
	out = append(out, BuildWithinChainEdges(chunks)...)
	out = append(out, BuildIntraTurnEdges(chunks)...)
	out = append(out, BuildInterTurnEdges(chunks)...)

	if d.LeadAgentID != "" {
		out = append(out, DetectTeamSpawnEdges(chunks)...)
		out = append(out, DetectSendMessageEdges(chunks, d.LeadAgentID)...)
		out = append(out, DetectSubAgentEdges(chunks)...)
	}
	return out
}
