package retrieval

import (
	"context"

	"github.com/contextvault/memcore/internal/numerics"
)

// reorderByMMR implements step 9: greedy Maximal Marginal
// Relevance reordering. rel(c) is the candidate's weight normalized
// against the top weight; diversity is the max cosine similarity to
// already-selected candidates (0 for candidates with no stored vector).
// Original weights are untouched — only the order changes.
func (p *Pipeline) reorderByMMR(ctx context.Context, cands []candidate, lambda float64) []candidate {
	n := len(cands)
	if n <= 1 {
		return cands
	}
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}

	topWeight := cands[0].weight
	rel := make([]float64, n)
	for i, c := range cands {
		if topWeight > 0 {
			rel[i] = c.weight / topWeight
		}
	}

	vectors := make([][]float32, n)
	for i, c := range cands {
		if v, err := p.Vectors.Get(ctx, c.chunkID); err == nil && v != nil {
			vectors[i] = v.Values
		}
	}

	remaining := make([]bool, n)
	for i := range remaining {
		remaining[i] = true
	}

	selected := make([]int, 0, n)
	for len(selected) < n {
		best := -1
		bestScore := 0.0
		for i := 0; i < n; i++ {
			if !remaining[i] {
				continue
			}
			diversity := 0.0
			if vectors[i] != nil {
				for _, s := range selected {
					if vectors[s] == nil {
						continue
					}
					sim, err := numerics.CosineSimilarity(vectors[i], vectors[s])
					if err != nil {
						continue
					}
					if float64(sim) > diversity {
						diversity = float64(sim)
					}
				}
			}
			score := lambda*rel[i] - (1-lambda)*diversity
			if best == -1 || score > bestScore {
				best = i
				bestScore = score
			}
		}
		selected = append(selected, best)
		remaining[best] = false
	}

	out := make([]candidate, n)
	for i, idx := range selected {
		out[i] = cands[idx]
	}
	return out
}
