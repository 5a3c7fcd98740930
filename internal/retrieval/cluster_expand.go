package retrieval

import (
	"context"
	"sort"
)

// expandClusters implements step 5: for each fused hit, find its
// clusters and add the nearest siblings (bounded by MaxClusters/
// MaxSiblings) with a score of Cfg.SiblingBoost * (1 - sibling_distance).
// Siblings already present among hits are filtered out by the caller's
// dedupeKeepFirst, which keeps the original hit's tag.
func (p *Pipeline) expandClusters(ctx context.Context, hits []candidate) []candidate {
	maxClusters := p.Cfg.MaxClusters
	maxSiblings := p.Cfg.MaxSiblings
	if maxClusters <= 0 || maxSiblings <= 0 {
		return nil
	}

	seenCluster := make(map[string]bool)
	var siblings []candidate

	for _, hit := range hits {
		assignments, err := p.Clusters.AssignmentsForChunk(ctx, hit.chunkID)
		if err != nil || len(assignments) == 0 {
			continue
		}

		clusterCount := 0
		for _, a := range assignments {
			if clusterCount >= maxClusters {
				break
			}
			if seenCluster[a.ClusterID] {
				continue
			}
			seenCluster[a.ClusterID] = true
			clusterCount++

			members, err := p.Clusters.ClusterMembers(ctx, a.ClusterID)
			if err != nil {
				continue
			}
			sort.Slice(members, func(i, j int) bool { return members[i].Distance < members[j].Distance })

			added := 0
			for _, m := range members {
				if added >= maxSiblings {
					break
				}
				if m.ChunkID == hit.chunkID {
					continue
				}
				score := p.Cfg.SiblingBoost * (1 - m.Distance)
				if score < 0 {
					score = 0
				}
				siblings = append(siblings, candidate{chunkID: m.ChunkID, weight: score, source: SourceCluster})
				added++
			}
		}
	}

	return siblings
}
