package edges

import (
	"fmt"
	"sort"

	"github.com/contextvault/memcore/internal/store"
)

// intraTurnWeight and interTurnWeight are the fixed initial weights for
// structural edges: they record the transcript's own turn order, which is
// never ambiguous, so there is no confidence scale to derive them from.
const intraTurnWeight = 1.0
const interTurnWeight = 0.8

// withinChainWeightFloor is the minimum initial weight a classified
// within-chain edge receives, independent of Classification.Confidence,
// so a low-confidence "adjacent" link still carries some traversal weight.
const withinChainWeightFloor = 0.2

// BuildWithinChainEdges links each session-adjacent pair of chunks (sorted
// by start time) per step 1-2: gated by topic shift, then typed
// by the classifier priority chain.
func BuildWithinChainEdges(chunks []*store.Chunk) []*store.Edge {
	ordered := sortedByStartTime(chunks)
	var out []*store.Edge
	for i := 1; i < len(ordered); i++ {
		prev, next := ordered[i-1], ordered[i]
		if Gate(prev, next) {
			continue
		}
		c := Classify(prev, next)
		ref := c.Reference
		weight := c.Confidence
		if weight < withinChainWeightFloor {
			weight = withinChainWeightFloor
		}
		out = append(out, &store.Edge{
			ID:            fmt.Sprintf("wc-%s-%s", prev.ID, next.ID),
			SourceChunkID: prev.ID,
			TargetChunkID: next.ID,
			EdgeType:      store.EdgeWithinChain,
			ReferenceType: &ref,
			InitialWeight: weight,
			CreatedAt:     next.CreatedAt,
		})
	}
	return out
}

// BuildIntraTurnEdges connects consecutive chunks that share a turn index
//. These never pass through topic-shift gating: two
// chunks carved out of the same turn are structurally related by
// construction.
func BuildIntraTurnEdges(chunks []*store.Chunk) []*store.Edge {
	ordered := sortedByStartTime(chunks)
	var out []*store.Edge
	for i := 1; i < len(ordered); i++ {
		prev, next := ordered[i-1], ordered[i]
		if !sameTurn(prev, next) {
			continue
		}
		out = append(out, &store.Edge{
			ID:            fmt.Sprintf("it-%s-%s", prev.ID, next.ID),
			SourceChunkID: prev.ID,
			TargetChunkID: next.ID,
			EdgeType:      store.EdgeForward,
			InitialWeight: intraTurnWeight,
			CreatedAt:     next.CreatedAt,
		})
	}
	return out
}

// BuildInterTurnEdges connects the last chunk of turn T to the first chunk
// of turn T+1, covering the handoff gap intra-turn
// edges don't.
func BuildInterTurnEdges(chunks []*store.Chunk) []*store.Edge {
	groups := groupByTurn(chunks)
	if len(groups) < 2 {
		return nil
	}

	var out []*store.Edge
	for i := 1; i < len(groups); i++ {
		lastOfPrev := groups[i-1][len(groups[i-1])-1]
		firstOfNext := groups[i][0]
		out = append(out, &store.Edge{
			ID:            fmt.Sprintf("xt-%s-%s", lastOfPrev.ID, firstOfNext.ID),
			SourceChunkID: lastOfPrev.ID,
			TargetChunkID: firstOfNext.ID,
			EdgeType:      store.EdgeForward,
			InitialWeight: interTurnWeight,
			CreatedAt:     firstOfNext.CreatedAt,
		})
	}
	return out
}

func sortedByStartTime(chunks []*store.Chunk) []*store.Chunk {
	out := append([]*store.Chunk(nil), chunks...)
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func sameTurn(a, b *store.Chunk) bool {
	if len(a.TurnIndices) == 0 || len(b.TurnIndices) == 0 {
		return false
	}
	return a.TurnIndices[len(a.TurnIndices)-1] == b.TurnIndices[0]
}

// groupByTurn buckets chunks (already sorted by start time within each
// bucket) by their lowest turn index, preserving first-seen order.
func groupByTurn(chunks []*store.Chunk) [][]*store.Chunk {
	ordered := sortedByStartTime(chunks)

	var turnOrder []int
	byTurn := make(map[int][]*store.Chunk)
	for _, c := range ordered {
		if len(c.TurnIndices) == 0 {
			continue
		}
		turn := c.TurnIndices[0]
		if _, ok := byTurn[turn]; !ok {
			turnOrder = append(turnOrder, turn)
		}
		byTurn[turn] = append(byTurn[turn], c)
	}

	out := make([][]*store.Chunk, 0, len(turnOrder))
	for _, turn := range turnOrder {
		out = append(out, byTurn[turn])
	}
	return out
}
