package hdbscan

import (
	"sort"

	"github.com/contextvault/memcore/internal/kdtree"
	"github.com/contextvault/memcore/internal/numerics"
)

// coreDistances returns, for each point, the distance to its k-th nearest
// neighbor (k = min(minSamples, n-1)). When n <= minSamples+1 every core
// distance is 0 (not enough points to form a meaningful neighborhood, so
// mutual reachability degenerates to plain pairwise distance).
func coreDistances(points [][]float32, minSamples int, cfg Config) ([]float32, error) {
	n := len(points)
	if n == 0 {
		return nil, nil
	}
	k := minSamples
	if k > n-1 {
		k = n - 1
	}
	if k <= 0 || n <= minSamples+1 {
		return make([]float32, n), nil
	}

	metric := cfg.distanceFunc()

	if cfg.ApproximateKNN && cfg.Metric != MetricAngular {
		tree := kdtree.New(points)
		out := make([]float32, n)
		for i := range points {
			neighbors := tree.KNearest(points[i], k, map[int]bool{i: true})
			if len(neighbors) < k {
				// Degrade to brute force for this point if the tree
				// couldn't return enough neighbors (degenerate input).
				d, err := bruteForceKth(points, i, k, metric)
				if err != nil {
					return nil, err
				}
				out[i] = d
				continue
			}
			out[i] = neighbors[k-1].Distance
		}
		return out, nil
	}

	out := make([]float32, n)
	for i := range points {
		d, err := bruteForceKth(points, i, k, metric)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

// bruteForceKth returns the distance from points[i] to its k-th nearest
// neighbor among the rest of the set, via a full sort (quickselect-grade
// O(n log n) is acceptable at the scale this store targets; correctness
// over cleverness).
func bruteForceKth(points [][]float32, i, k int, metric numerics.DistanceFunc) (float32, error) {
	dists := make([]float32, 0, len(points)-1)
	for j := range points {
		if j == i {
			continue
		}
		d, err := metric(points[i], points[j])
		if err != nil {
			return 0, err
		}
		dists = append(dists, d)
	}
	sort.Slice(dists, func(a, b int) bool { return dists[a] < dists[b] })
	return dists[k-1], nil
}

// mutualReachability returns MRD(i,j) = max(core[i], core[j], d(i,j)).
func mutualReachability(points [][]float32, core []float32, i, j int, metric numerics.DistanceFunc) (float32, error) {
	d, err := metric(points[i], points[j])
	if err != nil {
		return 0, err
	}
	m := d
	if core[i] > m {
		m = core[i]
	}
	if core[j] > m {
		m = core[j]
	}
	return m, nil
}
