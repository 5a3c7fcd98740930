// Package hdbscan implements density-based clustering with variable density
// support: core distances, a mutual-reachability minimum spanning tree, a
// condensed cluster tree, excess-of-mass/leaf selection, soft membership
// probabilities, outlier scores, and incremental prediction against a
// fitted model.
package hdbscan

import "github.com/contextvault/memcore/internal/numerics"

// Metric selects the distance function core distances and MRD are computed
// over.
type Metric string

const (
	MetricEuclidean Metric = "euclidean"
	MetricAngular   Metric = "angular"
)

// SelectionMethod picks how condensed-tree nodes are promoted to clusters.
type SelectionMethod string

const (
	SelectionEOM  SelectionMethod = "eom"
	SelectionLeaf SelectionMethod = "leaf"
)

// NoiseLabel is the label assigned to points that do not belong to any
// selected cluster.
const NoiseLabel = -1

// Config configures a clustering run.
type Config struct {
	MinClusterSize         int
	MinSamples             int // 0 means "use MinClusterSize"
	Metric                 Metric
	ClusterSelectionMethod SelectionMethod
	ApproximateKNN         bool // use a KD-tree for core distances (euclidean only)
	Parallel               bool
}

func (c Config) minSamples() int {
	if c.MinSamples > 0 {
		return c.MinSamples
	}
	return c.MinClusterSize
}

func (c Config) distanceFunc() numerics.DistanceFunc {
	if c.Metric == MetricAngular {
		return numerics.AngularDistance
	}
	return numerics.EuclideanDistance
}

// Result is the outcome of a Fit run.
type Result struct {
	Labels          []int       // per-point cluster label, or NoiseLabel
	Probabilities   []float64   // per-point soft membership strength, in [0,1]
	OutlierScores   []float64   // per-point GLOSH-like outlier score, in [0,1]
	NumClusters     int
	NoiseCount      int
	Model           *Model // captured for Predict
}

// Model is the state needed to assign new points to existing clusters
// without re-running the full pipeline (the HDBSCAN "predict" operation).
type Model struct {
	cfg           Config
	points        [][]float32
	coreDistances []float32
	clusters      []*fittedCluster
}

type fittedCluster struct {
	label         int
	centroid      []float32
	exemplars     [][]float32
	maxLambda     float64 // cluster_max_lambda: 1/min(edge weight) within the cluster's scale
}

// NumExemplars is the number of closest-to-centroid points retained per
// cluster for predict-time distance checks.
const NumExemplars = 3
