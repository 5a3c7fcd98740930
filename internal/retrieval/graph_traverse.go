package retrieval

import (
	"context"
	"time"

	"github.com/contextvault/memcore/internal/graph"
	"github.com/contextvault/memcore/internal/store"
)

// traverseGraph implements step 6: walk the edge graph from the
// fused hits as seeds, in both directions, tagging newly reached chunks
// with source "graph". Edges observed at or below zero effective weight
// are reported to DeadEdges for the pruner.
func (p *Pipeline) traverseGraph(ctx context.Context, seeds []candidate) []candidate {
	if len(seeds) == 0 {
		return nil
	}

	seedIDs := make([]string, len(seeds))
	seedWeights := make(map[string]float64, len(seeds))
	for i, s := range seeds {
		seedIDs[i] = s.chunkID
		seedWeights[s.chunkID] = s.weight
	}

	traverser := graph.New(p.Edges, p.Decay)
	onEdge := func(e *store.Edge, effective float64) {
		if effective <= 0 && p.DeadEdges != nil {
			select {
			case p.DeadEdges <- e.ID:
			default:
			}
		}
	}

	base := graph.Options{
		QueryTimeMs:     time.Now().UnixMilli(),
		MaxDepth:        p.Traversal.MaxDepth,
		MinWeight:       p.Traversal.MinWeight,
		MaxNodes:        p.Traversal.MaxNodes,
		OnEdgeEvaluated: onEdge,
	}

	var out []candidate
	for _, dir := range []graph.Direction{graph.Forward, graph.Backward} {
		opts := base
		opts.Direction = dir
		hits, err := traverser.Walk(ctx, seedIDs, seedWeights, opts)
		if err != nil {
			continue
		}
		for _, h := range hits {
			out = append(out, candidate{chunkID: h.ChunkID, weight: h.Weight, source: SourceGraph})
		}
	}
	return out
}
