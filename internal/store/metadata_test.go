package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetadataStore(t *testing.T) *SQLiteMetadataStore {
	t.Helper()
	s, err := NewSQLiteMetadataStore("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleChunk(id, sessionID string) *Chunk {
	now := time.Now().UTC()
	return &Chunk{
		ID: id, SessionID: sessionID, SessionSlug: "slug-" + sessionID, AgentID: "agent-1",
		TurnIndices: []int{0, 1}, StartTime: now, EndTime: now.Add(time.Minute),
		Content: "content for " + id, ApproxTokens: 42, CodeBlockCount: 1, ToolUseCount: 2,
		CreatedAt: now,
	}
}

func TestBulkInsertAndGetChunk(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	c := sampleChunk("chunk-1", "session-1")
	require.NoError(t, s.BulkInsertChunks(ctx, []*Chunk{c}))

	got, err := s.GetChunk(ctx, "chunk-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.SessionID, got.SessionID)
	assert.Equal(t, []int{0, 1}, got.TurnIndices)
}

func TestGetChunkMissingReturnsNilNotError(t *testing.T) {
	s := newTestMetadataStore(t)
	got, err := s.GetChunk(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestChunksBySessionOrdersByStartTime(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	c1 := sampleChunk("chunk-1", "session-1")
	c1.StartTime = base.Add(time.Hour)
	c2 := sampleChunk("chunk-2", "session-1")
	c2.StartTime = base
	require.NoError(t, s.BulkInsertChunks(ctx, []*Chunk{c1, c2}))

	chunks, err := s.ChunksBySession(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "chunk-2", chunks[0].ID)
	assert.Equal(t, "chunk-1", chunks[1].ID)
}

func TestDeleteChunkCascadesEdgesAndAssignments(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()

	require.NoError(t, s.BulkInsertChunks(ctx, []*Chunk{sampleChunk("chunk-1", "s"), sampleChunk("chunk-2", "s")}))
	require.NoError(t, s.CreateEdge(ctx, &Edge{
		ID: "edge-1", SourceChunkID: "chunk-1", TargetChunkID: "chunk-2",
		EdgeType: EdgeForward, InitialWeight: 1.0, CreatedAt: time.Now(), VectorClock: VectorClock{},
	}))
	require.NoError(t, s.AssignChunk(ctx, ClusterAssignment{ChunkID: "chunk-1", ClusterID: "cluster-1", Distance: 0.1}))

	require.NoError(t, s.DeleteChunk(ctx, "chunk-1"))

	edges, err := s.OutgoingEdges(ctx, "chunk-1")
	require.NoError(t, err)
	assert.Empty(t, edges)

	assignments, err := s.AssignmentsForChunk(ctx, "chunk-1")
	require.NoError(t, err)
	assert.Empty(t, assignments)
}

func TestDeleteChunkMissingReturnsNotFound(t *testing.T) {
	s := newTestMetadataStore(t)
	err := s.DeleteChunk(context.Background(), "ghost")
	require.Error(t, err)
}

func TestCreateOrBoostEdgeFirstCallInserts(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, s.BulkInsertChunks(ctx, []*Chunk{sampleChunk("a", "s"), sampleChunk("b", "s")}))

	ref := RefFilePath
	e, err := s.CreateOrBoostEdge(ctx, &Edge{
		ID: "edge-1", SourceChunkID: "a", TargetChunkID: "b", EdgeType: EdgeForward,
		ReferenceType: &ref, InitialWeight: 1.0, CreatedAt: time.Now(), VectorClock: VectorClock{"agent-1": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, e.LinkCount)
	assert.InDelta(t, 1.0, e.InitialWeight, 1e-9)
}

// Concrete scenario: repeat boost of (A->B, forward, file-path, weight=1.0)
// yields one row with link_count=2 and initial_weight=1.1.
func TestCreateOrBoostEdgeSecondCallBoosts(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, s.BulkInsertChunks(ctx, []*Chunk{sampleChunk("a", "s"), sampleChunk("b", "s")}))

	ref := RefFilePath
	mk := func() *Edge {
		return &Edge{
			ID: "edge-1", SourceChunkID: "a", TargetChunkID: "b", EdgeType: EdgeForward,
			ReferenceType: &ref, InitialWeight: 1.0, CreatedAt: time.Now(), VectorClock: VectorClock{"agent-1": 1},
		}
	}
	_, err := s.CreateOrBoostEdge(ctx, mk())
	require.NoError(t, err)
	boosted, err := s.CreateOrBoostEdge(ctx, mk())
	require.NoError(t, err)

	assert.Equal(t, 2, boosted.LinkCount)
	assert.InDelta(t, 1.1, boosted.InitialWeight, 1e-9)

	outgoing, err := s.OutgoingEdges(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, outgoing, 1)
}

func TestCreateOrBoostEdgeMergesVectorClocks(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, s.BulkInsertChunks(ctx, []*Chunk{sampleChunk("a", "s"), sampleChunk("b", "s")}))

	_, err := s.CreateOrBoostEdge(ctx, &Edge{
		ID: "edge-1", SourceChunkID: "a", TargetChunkID: "b", EdgeType: EdgeForward,
		InitialWeight: 1.0, CreatedAt: time.Now(), VectorClock: VectorClock{"agent-1": 1},
	})
	require.NoError(t, err)
	boosted, err := s.CreateOrBoostEdge(ctx, &Edge{
		ID: "edge-2", SourceChunkID: "a", TargetChunkID: "b", EdgeType: EdgeForward,
		InitialWeight: 0.5, CreatedAt: time.Now(), VectorClock: VectorClock{"agent-2": 3},
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), boosted.VectorClock["agent-1"])
	assert.Equal(t, uint64(3), boosted.VectorClock["agent-2"])
}

func TestDeleteEdgesRemovesBatch(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, s.BulkInsertChunks(ctx, []*Chunk{sampleChunk("a", "s"), sampleChunk("b", "s")}))
	require.NoError(t, s.CreateEdge(ctx, &Edge{ID: "e1", SourceChunkID: "a", TargetChunkID: "b", EdgeType: EdgeForward, CreatedAt: time.Now(), VectorClock: VectorClock{}}))
	require.NoError(t, s.CreateEdge(ctx, &Edge{ID: "e2", SourceChunkID: "b", TargetChunkID: "a", EdgeType: EdgeBackward, CreatedAt: time.Now(), VectorClock: VectorClock{}}))

	n, err := s.DeleteEdges(ctx, []string{"e1", "e2", "nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOrphanedChunksFindsChunksWithNoEdges(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, s.BulkInsertChunks(ctx, []*Chunk{sampleChunk("a", "s"), sampleChunk("b", "s"), sampleChunk("c", "s")}))
	require.NoError(t, s.CreateEdge(ctx, &Edge{ID: "e1", SourceChunkID: "a", TargetChunkID: "b", EdgeType: EdgeForward, CreatedAt: time.Now(), VectorClock: VectorClock{}}))

	orphans, err := s.OrphanedChunks(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c"}, orphans)
}

func TestClusterReplaceAllIsAtomic(t *testing.T) {
	s := newTestMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, s.BulkInsertChunks(ctx, []*Chunk{sampleChunk("a", "s")}))

	name := "topic-a"
	clusters := []*Cluster{{ID: "cl-1", Name: &name, Centroid: []float32{0.1, 0.2}, MembershipHash: "h1"}}
	assignments := []ClusterAssignment{{ChunkID: "a", ClusterID: "cl-1", Distance: 0.05}}

	require.NoError(t, s.ReplaceAll(ctx, clusters, assignments))

	got, err := s.GetCluster(ctx, "cl-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "topic-a", *got.Name)

	members, err := s.ClusterMembers(ctx, "cl-1")
	require.NoError(t, err)
	assert.Len(t, members, 1)

	// A second ReplaceAll clears the prior generation entirely.
	require.NoError(t, s.ReplaceAll(ctx, nil, nil))
	clustersAfter, err := s.ListClusters(ctx)
	require.NoError(t, err)
	assert.Empty(t, clustersAfter)
}

func TestVectorClockMergeIsCommutativeAndIdempotent(t *testing.T) {
	a := VectorClock{"x": 3, "y": 1}
	b := VectorClock{"x": 1, "y": 5, "z": 2}

	ab := a.Merge(b)
	ba := b.Merge(a)
	assert.Equal(t, ab, ba)

	aa := a.Merge(a)
	assert.Equal(t, a, aa)
}

func TestVectorClockDistanceIsZeroWhenEdgeAheadOfReference(t *testing.T) {
	edge := VectorClock{"agent-1": 10}
	ref := VectorClock{"agent-1": 4}
	assert.Equal(t, uint64(0), edge.Distance(ref))
}

func TestVectorClockDistanceSumsPositiveGaps(t *testing.T) {
	edge := VectorClock{"agent-1": 2, "agent-2": 0}
	ref := VectorClock{"agent-1": 5, "agent-2": 3, "agent-3": 1}
	assert.Equal(t, uint64(3+3+1), edge.Distance(ref))
}
