package retrieval

import (
	"sort"

	"github.com/contextvault/memcore/internal/keyword"
	"github.com/contextvault/memcore/internal/store"
)

// fuseRRF combines ranked vector and keyword hit lists with Reciprocal Rank
// Fusion: score(d) = sum over sources of weight_s / (k + rank_in_s + 1),
// rank 0-indexed (k + rank with 1-indexed ranks). The first source to contribute an id
// keeps that id's source tag.
func fuseRRF(vectorHits []store.VectorResult, keywordHits []*keyword.Result, vectorWeight, keywordWeight float64, k int) []candidate {
	type acc struct {
		score  float64
		source Source
	}
	byID := make(map[string]*acc)
	var order []string

	add := func(id string, rank int, weight float64, source Source) {
		rrf := weight / float64(k+rank+1)
		if a, ok := byID[id]; ok {
			a.score += rrf
			return
		}
		byID[id] = &acc{score: rrf, source: source}
		order = append(order, id)
	}

	for rank, h := range vectorHits {
		add(h.ChunkID, rank, vectorWeight, SourceVector)
	}
	for rank, h := range keywordHits {
		add(h.DocID, rank, keywordWeight, SourceKeyword)
	}

	out := make([]candidate, 0, len(order))
	for _, id := range order {
		a := byID[id]
		out = append(out, candidate{chunkID: id, weight: a.score, source: a.source})
	}
	sortByWeightDesc(out)
	return out
}

// sortByWeightDesc sorts candidates descending by weight, breaking ties by
// chunk id for a deterministic order.
func sortByWeightDesc(cands []candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].weight != cands[j].weight {
			return cands[i].weight > cands[j].weight
		}
		return cands[i].chunkID < cands[j].chunkID
	})
}

// dedupeKeepFirst drops later duplicates of a chunk id, keeping the
// earliest entry's source and weight (step 5: "original tag
// wins").
func dedupeKeepFirst(cands []candidate) []candidate {
	seen := make(map[string]bool, len(cands))
	out := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if seen[c.chunkID] {
			continue
		}
		seen[c.chunkID] = true
		out = append(out, c)
	}
	return out
}
