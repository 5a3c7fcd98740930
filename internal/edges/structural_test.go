package edges

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextvault/memcore/internal/store"
)

func turnChunk(id string, turns []int, start time.Time) *store.Chunk {
	return &store.Chunk{
		ID:          id,
		TurnIndices: turns,
		StartTime:   start,
		EndTime:     start.Add(time.Minute),
		CreatedAt:   start,
	}
}

func TestBuildIntraTurnEdgesLinksChunksSharingATurn(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	a := turnChunk("a", []int{0}, base)
	b := turnChunk("b", []int{0}, base.Add(time.Minute))
	c := turnChunk("c", []int{1}, base.Add(2*time.Minute))

	out := BuildIntraTurnEdges([]*store.Chunk{a, b, c})

	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].SourceChunkID)
	assert.Equal(t, "b", out[0].TargetChunkID)
	assert.Equal(t, store.EdgeForward, out[0].EdgeType)
}

func TestBuildInterTurnEdgesLinksLastOfTurnToFirstOfNext(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	a := turnChunk("a", []int{0}, base)
	b := turnChunk("b", []int{0}, base.Add(time.Minute))
	c := turnChunk("c", []int{1}, base.Add(2*time.Minute))
	d := turnChunk("d", []int{1}, base.Add(3*time.Minute))

	out := BuildInterTurnEdges([]*store.Chunk{a, b, c, d})

	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].SourceChunkID)
	assert.Equal(t, "c", out[0].TargetChunkID)
}

func TestBuildInterTurnEdgesEmptyWithSingleTurn(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	a := turnChunk("a", []int{0}, base)
	b := turnChunk("b", []int{0}, base.Add(time.Minute))

	out := BuildInterTurnEdges([]*store.Chunk{a, b})

	assert.Empty(t, out)
}

func TestBuildWithinChainEdgesSkipsGatedPairs(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	a := &store.Chunk{ID: "a", StartTime: base, EndTime: base.Add(time.Minute), Content: "working on auth.go", CreatedAt: base}
	b := &store.Chunk{ID: "b", StartTime: base.Add(time.Hour), EndTime: base.Add(time.Hour + time.Minute), Content: "still on auth.go", CreatedAt: base.Add(time.Hour)}

	out := BuildWithinChainEdges([]*store.Chunk{a, b})

	assert.Empty(t, out)
}

func TestBuildWithinChainEdgesLinksUngatedPairs(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	a := &store.Chunk{ID: "a", StartTime: base, EndTime: base.Add(time.Minute), Content: "editing x/y.go", CreatedAt: base}
	b := &store.Chunk{ID: "b", StartTime: base.Add(2 * time.Minute), EndTime: base.Add(3 * time.Minute), Content: "fixed a bug in x/y.go", CreatedAt: base.Add(2 * time.Minute)}

	out := BuildWithinChainEdges([]*store.Chunk{a, b})

	require.Len(t, out, 1)
	assert.Equal(t, store.EdgeWithinChain, out[0].EdgeType)
	require.NotNil(t, out[0].ReferenceType)
	assert.Equal(t, store.RefFilePath, *out[0].ReferenceType)
}
