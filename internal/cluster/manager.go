// Package cluster implements the recluster pipeline that
// runs HDBSCAN over the full vector set, carries forward human-assigned
// cluster names by Jaccard overlap, rescues HDBSCAN noise points into
// nearby clusters, and atomically replaces the prior cluster generation.
package cluster

import (
	"context"
	"fmt"
	"sort"

	"github.com/contextvault/memcore/internal/hdbscan"
	"github.com/contextvault/memcore/internal/numerics"
	"github.com/contextvault/memcore/internal/store"
)

// matchOverlapThreshold is the minimum Jaccard similarity required to carry
// a label from an old cluster to a new one.
const matchOverlapThreshold = 0.5

// Manager runs the recluster pipeline against a metadata and vector store.
type Manager struct {
	meta    store.MetadataStore
	vectors store.VectorStore
	cfg     hdbscan.Config
	threshold float64 // clustering.threshold: angular distance cap for assignment
}

func New(meta store.MetadataStore, vectors store.VectorStore, cfg hdbscan.Config, threshold float64) *Manager {
	return &Manager{meta: meta, vectors: vectors, cfg: cfg, threshold: threshold}
}

// Stats summarizes one recluster run, mirroring step 8's return
// shape.
type Stats struct {
	NumClusters     int
	AssignedChunks  int
	NoiseChunks     int
	NoiseRatio      float64
	ClusterSizes    []int
	ReassignedNoise int
	DurationMs      int64
}

// chunkVector pairs a chunk id with its embedding for the duration of one
// recluster run.
type chunkVector struct {
	chunkID string
	values  []float32
}

// Recluster runs the full HDBSCAN refit and atomically replaces the
// stored cluster generation.
func (m *Manager) Recluster(ctx context.Context, startedAtMs, finishedAtMs int64) (*Stats, error) {
	points, err := m.allVectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vectors for recluster: %w", err)
	}
	if len(points) == 0 {
		return &Stats{DurationMs: finishedAtMs - startedAtMs}, nil
	}

	matrix := make([][]float32, len(points))
	for i, p := range points {
		matrix[i] = p.values
	}

	result, err := hdbscan.Fit(matrix, m.cfg)
	if err != nil {
		return nil, fmt.Errorf("hdbscan fit: %w", err)
	}

	oldClusters, err := m.snapshotOld(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot old clusters: %w", err)
	}

	newClusters, clusterMembers := buildNewClusters(points, result.Labels)
	matchByOverlap(oldClusters, newClusters, clusterMembers)

	assignments := make([]store.ClusterAssignment, 0, len(points))
	for i, cl := range newClusters {
		for _, idx := range clusterMembers[i] {
			d, _ := numerics.AngularDistance(points[idx].values, cl.Centroid)
			assignments = append(assignments, store.ClusterAssignment{
				ChunkID: points[idx].chunkID, ClusterID: cl.ID, Distance: float64(d),
			})
		}
	}

	reassignedChunks := make(map[string]bool)
	noiseCount := 0
	for i, label := range result.Labels {
		if label != hdbscan.NoiseLabel {
			continue
		}
		noiseCount++
		for _, cl := range newClusters {
			d, err := numerics.AngularDistance(points[i].values, cl.Centroid)
			if err != nil {
				continue
			}
			if float64(d) < m.threshold {
				assignments = append(assignments, store.ClusterAssignment{
					ChunkID: points[i].chunkID, ClusterID: cl.ID, Distance: float64(d),
				})
				reassignedChunks[points[i].chunkID] = true
			}
		}
	}

	if err := m.meta.ReplaceAll(ctx, newClusters, assignments); err != nil {
		return nil, fmt.Errorf("replace cluster generation: %w", err)
	}

	sizes := make([]int, len(newClusters))
	for i := range newClusters {
		sizes[i] = len(clusterMembers[i])
	}

	noiseRatio := 0.0
	if len(points) > 0 {
		noiseRatio = float64(noiseCount) / float64(len(points))
	}

	return &Stats{
		NumClusters:     len(newClusters),
		AssignedChunks:  len(points) - noiseCount,
		NoiseChunks:     noiseCount,
		NoiseRatio:      noiseRatio,
		ClusterSizes:    sizes,
		ReassignedNoise: len(reassignedChunks),
		DurationMs:      finishedAtMs - startedAtMs,
	}, nil
}

// Predict forwards to the latest fitted HDBSCAN model's predict method.
// Callers must supply the Result captured by the most recent Recluster
// call, since the fitted Model lives on hdbscan.Result and is not itself
// persisted.
func Predict(fitted *hdbscan.Result, point []float32) (label int, probability float64, err error) {
	if fitted == nil || fitted.Model == nil {
		return hdbscan.NoiseLabel, 0, nil
	}
	return fitted.Model.Predict(point)
}

// allVectors enumerates every chunk id known to the metadata store and
// pulls its vector, skipping chunks that have no embedding yet.
func (m *Manager) allVectors(ctx context.Context) ([]chunkVector, error) {
	ids, err := m.meta.AllChunkIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chunk ids: %w", err)
	}

	out := make([]chunkVector, 0, len(ids))
	for _, id := range ids {
		v, err := m.vectors.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get vector for chunk %s: %w", id, err)
		}
		if v == nil {
			continue
		}
		out = append(out, chunkVector{chunkID: id, values: v.Values})
	}
	return out, nil
}

func (m *Manager) snapshotOld(ctx context.Context) ([]*store.Cluster, error) {
	return m.meta.ListClusters(ctx)
}

// buildNewClusters computes, for each HDBSCAN label, a normalized-mean
// centroid and its top-3 nearest exemplar chunk ids.
func buildNewClusters(points []chunkVector, labels []int) ([]*store.Cluster, map[int][]int) {
	membersByLabel := make(map[int][]int)
	for i, label := range labels {
		if label == hdbscan.NoiseLabel {
			continue
		}
		membersByLabel[label] = append(membersByLabel[label], i)
	}

	sortedLabels := make([]int, 0, len(membersByLabel))
	for label := range membersByLabel {
		sortedLabels = append(sortedLabels, label)
	}
	sort.Ints(sortedLabels)

	clusters := make([]*store.Cluster, 0, len(sortedLabels))
	memberIdx := make(map[int][]int, len(sortedLabels))
	for newIdx, label := range sortedLabels {
		members := membersByLabel[label]
		centroid := normalizedMeanCentroid(points, members)
		exemplars := topExemplars(points, members, centroid, 3)

		memberIDs := make([]string, len(members))
		for i, idx := range members {
			memberIDs[i] = points[idx].chunkID
		}

		clusters = append(clusters, &store.Cluster{
			ID:             fmt.Sprintf("cl-%d", label),
			Centroid:       centroid,
			MemberIDs:      memberIDs,
			ExemplarIDs:    exemplars,
			MembershipHash: membershipHash(memberIDs),
		})
		memberIdx[newIdx] = members
	}
	return clusters, memberIdx
}

func normalizedMeanCentroid(points []chunkVector, members []int) []float32 {
	if len(members) == 0 {
		return nil
	}
	dim := len(points[members[0]].values)
	sum := make([]float64, dim)
	for _, idx := range members {
		for d := 0; d < dim; d++ {
			sum[d] += float64(points[idx].values[d])
		}
	}
	mean := make([]float32, dim)
	for d := 0; d < dim; d++ {
		mean[d] = float32(sum[d] / float64(len(members)))
	}
	return numerics.Normalize(mean)
}

func topExemplars(points []chunkVector, members []int, centroid []float32, k int) []string {
	type scored struct {
		id string
		d  float32
	}
	scoredPts := make([]scored, len(members))
	for i, idx := range members {
		d, _ := numerics.AngularDistance(centroid, points[idx].values)
		scoredPts[i] = scored{id: points[idx].chunkID, d: d}
	}
	sort.Slice(scoredPts, func(i, j int) bool { return scoredPts[i].d < scoredPts[j].d })
	if k > len(scoredPts) {
		k = len(scoredPts)
	}
	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = scoredPts[i].id
	}
	return out
}

// membershipHash is a deterministic fingerprint of a cluster's member set,
// used to detect whether a cluster's membership changed between runs.
func membershipHash(memberIDs []string) string {
	sorted := append([]string(nil), memberIDs...)
	sort.Strings(sorted)
	h := uint64(14695981039346656037) // FNV-1a offset basis
	for _, id := range sorted {
		for _, b := range []byte(id) {
			h ^= uint64(b)
			h *= 1099511628211
		}
		h ^= ','
	}
	return fmt.Sprintf("%016x", h)
}

// matchByOverlap carries a name/description/refreshed_at forward from an
// old cluster to a new one via greedy highest-Jaccard 1:1 pairing, per
// step 5. Only old clusters with both Name and RefreshedAt set
// are eligible sources.
func matchByOverlap(old []*store.Cluster, newClusters []*store.Cluster, _ map[int][]int) {
	type pair struct {
		oldIdx, newIdx int
		jaccard        float64
	}

	eligible := make([]*store.Cluster, 0, len(old))
	for _, oc := range old {
		if oc.Name != nil && oc.RefreshedAt != nil {
			eligible = append(eligible, oc)
		}
	}

	var pairs []pair
	for oi, oc := range eligible {
		oldSet := toSet(oc.MemberIDs)
		for ni, nc := range newClusters {
			j := jaccard(oldSet, toSet(nc.MemberIDs))
			if j >= matchOverlapThreshold {
				pairs = append(pairs, pair{oldIdx: oi, newIdx: ni, jaccard: j})
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].jaccard > pairs[j].jaccard })

	usedOld := make(map[int]bool)
	usedNew := make(map[int]bool)
	for _, p := range pairs {
		if usedOld[p.oldIdx] || usedNew[p.newIdx] {
			continue
		}
		usedOld[p.oldIdx] = true
		usedNew[p.newIdx] = true
		oc := eligible[p.oldIdx]
		nc := newClusters[p.newIdx]
		nc.Name = oc.Name
		nc.Description = oc.Description
		nc.RefreshedAt = oc.RefreshedAt
	}
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for id := range a {
		if b[id] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
