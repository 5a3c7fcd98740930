package retrieval

import (
	"context"

	"github.com/contextvault/memcore/internal/store"
)

// mergeCandidates implements step 7: boost hit weights, then
// merge with graph-traversal results, deduping by max weight. The source
// tag of the higher-weight entry wins.
func mergeCandidates(hits, traversed []candidate, mergeBoost float64) []candidate {
	byID := make(map[string]candidate, len(hits)+len(traversed))
	var order []string

	upsert := func(c candidate) {
		if existing, ok := byID[c.chunkID]; !ok || c.weight > existing.weight {
			if !ok {
				order = append(order, c.chunkID)
			}
			byID[c.chunkID] = c
		}
	}

	for _, h := range hits {
		boosted := h
		boosted.weight = h.weight * mergeBoost
		upsert(boosted)
	}
	for _, t := range traversed {
		upsert(t)
	}

	out := make([]candidate, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// applyRecencyBoost implements step 8: chunks from the current
// session get their weight multiplied by recencyBoost. Chunks that can't
// be resolved are left unboosted rather than failing the pipeline.
func applyRecencyBoost(ctx context.Context, cands []candidate, chunks store.ChunkStore, currentSessionID string, recencyBoost float64) {
	if currentSessionID == "" || chunks == nil {
		return
	}
	for i := range cands {
		c, err := chunks.GetChunk(ctx, cands[i].chunkID)
		if err != nil || c == nil {
			continue
		}
		if c.SessionID == currentSessionID {
			cands[i].weight *= recencyBoost
		}
	}
}
