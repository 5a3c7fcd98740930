package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextvault/memcore/internal/config"
	"github.com/contextvault/memcore/internal/decay"
	"github.com/contextvault/memcore/internal/store"
)

func flatDecayModel() decay.Model {
	return decay.Model{
		Forward:  decay.Params{Curve: decay.CurveLinear, DiesAt: 100},
		Backward: decay.Params{Curve: decay.CurveLinear, DiesAt: 100},
		MsPerHop: 1000,
	}
}

func TestTraverseGraphWalksBothDirectionsFromSeeds(t *testing.T) {
	edges := &fakeEdgeStore{edges: []*store.Edge{
		{ID: "e1", SourceChunkID: "seed", TargetChunkID: "downstream", EdgeType: store.EdgeForward, InitialWeight: 1},
		{ID: "e2", SourceChunkID: "upstream", TargetChunkID: "seed", EdgeType: store.EdgeForward, InitialWeight: 1},
	}}

	p := &Pipeline{
		Edges: edges, Decay: flatDecayModel(),
		Traversal: config.TraversalConfig{MaxDepth: 3, MinWeight: 0.01, MaxNodes: 50},
	}

	out := p.traverseGraph(context.Background(), []candidate{{chunkID: "seed", weight: 1, source: SourceVector}})

	ids := make(map[string]bool)
	for _, c := range out {
		ids[c.chunkID] = true
		assert.Equal(t, SourceGraph, c.source)
	}
	assert.True(t, ids["downstream"])
	assert.True(t, ids["upstream"])
}

func TestTraverseGraphReportsDeadEdgesNonBlocking(t *testing.T) {
	edges := &fakeEdgeStore{edges: []*store.Edge{
		{ID: "dead", SourceChunkID: "seed", TargetChunkID: "gone", EdgeType: store.EdgeForward, InitialWeight: 0},
	}}

	dead := make(chan string, 4)
	p := &Pipeline{
		Edges: edges, Decay: flatDecayModel(),
		Traversal: config.TraversalConfig{MaxDepth: 3, MinWeight: 0.01, MaxNodes: 50},
		DeadEdges: dead,
	}

	p.traverseGraph(context.Background(), []candidate{{chunkID: "seed", weight: 1}})

	close(dead)
	var got []string
	for id := range dead {
		got = append(got, id)
	}
	require.NotEmpty(t, got)
	assert.Contains(t, got, "dead")
}

func TestTraverseGraphEmptySeedsReturnsNil(t *testing.T) {
	p := &Pipeline{Edges: &fakeEdgeStore{}, Decay: flatDecayModel()}

	out := p.traverseGraph(context.Background(), nil)

	assert.Nil(t, out)
}
