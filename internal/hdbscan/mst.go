package hdbscan

import (
	"github.com/contextvault/memcore/internal/kdtree"
	"github.com/contextvault/memcore/internal/numerics"
)

// mstEdge is one edge of the mutual-reachability minimum spanning tree.
type mstEdge struct {
	a, b   int
	weight float32
}

// buildMST runs Prim's algorithm from vertex 0 over the complete mutual
// reachability graph, using a decrease-key MinHeap for the frontier. Ties in
// the frontier are broken toward the smaller neighbor index by scanning
// candidates in ascending index order and only updating on strict
// improvement.
func buildMST(points [][]float32, core []float32, metric numerics.DistanceFunc) ([]mstEdge, error) {
	n := len(points)
	if n < 2 {
		return nil, nil
	}

	heap := kdtree.NewMinHeap[int]()
	inTree := make([]bool, n)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = -1
	}

	heap.Insert(0, 0)
	for i := 1; i < n; i++ {
		heap.Insert(i, float64(maxFloat32))
	}

	edges := make([]mstEdge, 0, n-1)
	for heap.Len() > 0 {
		v, _, ok := heap.ExtractMin()
		if !ok {
			break
		}
		inTree[v] = true
		if parent[v] >= 0 {
			w, err := mutualReachability(points, core, v, parent[v], metric)
			if err != nil {
				return nil, err
			}
			edges = append(edges, mstEdge{a: parent[v], b: v, weight: w})
		}

		for u := 0; u < n; u++ {
			if inTree[u] || !heap.Has(u) {
				continue
			}
			w, err := mutualReachability(points, core, v, u, metric)
			if err != nil {
				return nil, err
			}
			cur, _ := heap.GetKey(u)
			if float64(w) < cur {
				heap.DecreaseKey(u, float64(w))
				parent[u] = v
			}
		}
	}
	return edges, nil
}

const maxFloat32 = float32(3.4e38)
