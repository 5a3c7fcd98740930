// Package graph implements a priority-queue weighted BFS
// over the edge store, propagating decayed weight outward from a set of
// seed chunks until depth, weight, or node-count caps are reached.
package graph

import (
	"container/heap"
	"context"

	"github.com/contextvault/memcore/internal/decay"
	"github.com/contextvault/memcore/internal/store"
)

// Direction picks which edge types a traversal follows.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func edgeTypesFor(dir Direction) map[store.EdgeType]bool {
	if dir == Forward {
		return map[store.EdgeType]bool{
			store.EdgeForward:   true,
			store.EdgeTeamSpawn: true,
			store.EdgeBrief:     true,
		}
	}
	return map[store.EdgeType]bool{
		store.EdgeBackward:    true,
		store.EdgeWithinChain: true,
		store.EdgeDebrief:     true,
		store.EdgeTeamReport:  true,
		store.EdgePeerMessage: true,
	}
}

// Hit is one node discovered during traversal.
type Hit struct {
	ChunkID string
	Weight  float64
	Depth   int
}

// Options bounds a single traversal call.
type Options struct {
	Direction   Direction
	QueryTimeMs int64
	RefClock    store.VectorClock // optional
	MaxDepth    int
	MinWeight   float64
	MaxNodes    int // cap on |visited|; 0 means unlimited

	// OnEdgeEvaluated, if set, is called once per edge considered during
	// the walk with its decay-adjusted effective weight at query time,
	// before the min-weight cutoff is applied. The pruner uses this to
	// queue edges whose effective weight has decayed to zero.
	OnEdgeEvaluated func(edge *store.Edge, effectiveWeight float64)
}

// frontierItem is one entry in the traversal's priority queue.
type frontierItem struct {
	chunkID string
	weight  float64
	depth   int
}

type frontier []frontierItem

func (f frontier) Len() int            { return len(f) }
func (f frontier) Less(i, j int) bool  { return f[i].weight > f[j].weight }
func (f frontier) Swap(i, j int)       { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)         { *f = append(*f, x.(frontierItem)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	*f = old[:n-1]
	return item
}

// Traverser walks the edge store using a decay model to compute
// edge-specific effective weight at query time.
type Traverser struct {
	edges store.EdgeStore
	decay decay.Model
}

func New(edges store.EdgeStore, decayModel decay.Model) *Traverser {
	return &Traverser{edges: edges, decay: decayModel}
}

// Walk runs a weighted BFS from seedIDs, each starting at its
// corresponding seedWeights entry at depth 0.
func (t *Traverser) Walk(ctx context.Context, seedIDs []string, seedWeights map[string]float64, opts Options) ([]Hit, error) {
	allowedTypes := edgeTypesFor(opts.Direction)
	visited := make(map[string]*Hit, len(seedIDs))

	pq := &frontier{}
	heap.Init(pq)
	for _, id := range seedIDs {
		w := seedWeights[id]
		heap.Push(pq, frontierItem{chunkID: id, weight: w, depth: 0})
		visited[id] = &Hit{ChunkID: id, Weight: w, Depth: 0}
	}

	for pq.Len() > 0 {
		if opts.MaxNodes > 0 && len(visited) >= opts.MaxNodes {
			break
		}

		item := heap.Pop(pq).(frontierItem)
		if opts.MaxDepth > 0 && item.depth > opts.MaxDepth {
			continue
		}
		if cur, ok := visited[item.chunkID]; ok && cur.Weight > item.weight {
			// a better path to this node was already recorded; this pop is stale.
			continue
		}

		var edges []*store.Edge
		var err error
		if opts.Direction == Forward {
			edges, err = t.edges.OutgoingEdges(ctx, item.chunkID)
		} else {
			edges, err = t.edges.IncomingEdges(ctx, item.chunkID)
		}
		if err != nil {
			return nil, err
		}

		for _, e := range edges {
			if !allowedTypes[e.EdgeType] {
				continue
			}
			target := e.TargetChunkID
			if opts.Direction == Backward {
				target = e.SourceChunkID
			}

			effective := t.decay.EffectiveWeight(e, opts.QueryTimeMs, opts.RefClock)
			if opts.OnEdgeEvaluated != nil {
				opts.OnEdgeEvaluated(e, effective)
			}
			propagated := item.weight * effective
			if propagated < opts.MinWeight {
				continue
			}

			depth := item.depth + 1
			if opts.MaxDepth > 0 && depth > opts.MaxDepth {
				continue
			}

			existing, seen := visited[target]
			if seen && existing.Weight >= propagated {
				continue
			}
			visited[target] = &Hit{ChunkID: target, Weight: propagated, Depth: depth}
			heap.Push(pq, frontierItem{chunkID: target, weight: propagated, depth: depth})
		}
	}

	out := make([]Hit, 0, len(visited))
	for id, h := range visited {
		if contains(seedIDs, id) {
			continue
		}
		out = append(out, *h)
	}
	return DedupeAndRank(out), nil
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// DedupeAndRank aggregates hits by chunk id (keeping the max weight seen)
// and stable-sorts descending by weight
func DedupeAndRank(hits []Hit) []Hit {
	byID := make(map[string]Hit, len(hits))
	order := make([]string, 0, len(hits))
	for _, h := range hits {
		cur, ok := byID[h.ChunkID]
		if !ok {
			order = append(order, h.ChunkID)
			byID[h.ChunkID] = h
			continue
		}
		if h.Weight > cur.Weight {
			byID[h.ChunkID] = h
		}
	}

	out := make([]Hit, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}

	// insertion sort: stable, descending by weight, small N per traversal.
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && out[j].Weight > out[j-1].Weight {
			out[j], out[j-1] = out[j-1], out[j]
			j--
		}
	}
	return out
}
