package hdbscan

import (
	"sort"

	"github.com/contextvault/memcore/internal/numerics"
)

// buildModel captures, per selected cluster node (in the same pre-order
// selection sequence that produced the labels), a centroid, a handful of
// exemplar points, and the cluster's formation lambda, for use by Predict.
func buildModel(cfg Config, points [][]float32, core []float32, selected []*cnode) *Model {
	if len(selected) == 0 {
		return &Model{cfg: cfg, points: points, coreDistances: core}
	}

	clusters := make([]*fittedCluster, len(selected))
	for label, node := range selected {
		centroid := centroidOf(points, node.members)
		clusters[label] = &fittedCluster{
			label:     label,
			centroid:  centroid,
			exemplars: nearestToCentroid(points, node.members, centroid, NumExemplars),
			maxLambda: node.formationLambda,
		}
	}

	return &Model{cfg: cfg, points: points, coreDistances: core, clusters: clusters}
}

func centroidOf(points [][]float32, members []int) []float32 {
	if len(members) == 0 {
		return nil
	}
	dim := len(points[members[0]])
	sum := make([]float64, dim)
	for _, idx := range members {
		for d := 0; d < dim; d++ {
			sum[d] += float64(points[idx][d])
		}
	}
	out := make([]float32, dim)
	for d := 0; d < dim; d++ {
		out[d] = float32(sum[d] / float64(len(members)))
	}
	return out
}

func nearestToCentroid(points [][]float32, members []int, centroid []float32, k int) [][]float32 {
	type scored struct {
		idx int
		d   float32
	}
	scoredPts := make([]scored, len(members))
	for i, idx := range members {
		d, _ := numerics.EuclideanDistance(centroid, points[idx])
		scoredPts[i] = scored{idx: idx, d: d}
	}
	sort.Slice(scoredPts, func(i, j int) bool { return scoredPts[i].d < scoredPts[j].d })
	if k > len(scoredPts) {
		k = len(scoredPts)
	}
	out := make([][]float32, k)
	for i := 0; i < k; i++ {
		out[i] = points[scoredPts[i].idx]
	}
	return out
}

// Predict assigns a new point to the closest fitted cluster (by centroid
// distance) if that distance is within the cluster's characteristic scale
// (1/max_lambda, i.e. the same distance scale at which the cluster was
// still a single coherent component), otherwise it is noise.
func (m *Model) Predict(point []float32) (label int, probability float64, err error) {
	if len(m.clusters) == 0 {
		return NoiseLabel, 0, nil
	}
	metric := m.cfg.distanceFunc()

	bestLabel := NoiseLabel
	bestDist := float32(3.4e38)
	for _, c := range m.clusters {
		d, derr := metric(point, c.centroid)
		if derr != nil {
			return 0, 0, derr
		}
		if d < bestDist {
			bestDist = d
			bestLabel = c.label
		}
	}
	if bestLabel == NoiseLabel {
		return NoiseLabel, 0, nil
	}

	best := m.clusters[bestLabel]
	scale := float32(1.0 / best.maxLambda)
	if best.maxLambda <= 0 || bestDist > scale {
		return NoiseLabel, 0, nil
	}
	prob := clamp01(1 - float64(bestDist)/float64(scale))
	return bestLabel, prob, nil
}
