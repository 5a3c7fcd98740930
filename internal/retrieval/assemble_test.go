package retrieval

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextvault/memcore/internal/store"
)

func TestAssembleJoinsSegmentsWithDividerUntilBudgetExhausted(t *testing.T) {
	chunks := newFakeChunkStore()
	chunks.put(&store.Chunk{ID: "a", SessionSlug: "sess-a", StartTime: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Content: "hello world", ApproxTokens: fakeCounter{}.Count("hello world")})
	chunks.put(&store.Chunk{ID: "b", SessionSlug: "sess-b", StartTime: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), Content: "goodbye moon", ApproxTokens: fakeCounter{}.Count("goodbye moon")})

	p := &Pipeline{Chunks: chunks, Counter: fakeCounter{}}
	cands := []candidate{
		{chunkID: "a", weight: 1.0, source: SourceVector},
		{chunkID: "b", weight: 0.5, source: SourceKeyword},
	}

	text, tokenCount, included := p.assemble(context.Background(), cands, 1000)

	require.Len(t, included, 2)
	assert.True(t, strings.Contains(text, "[Session: sess-a | Date: 2026-01-02 | Relevance: 100%]"))
	assert.True(t, strings.Contains(text, "[Session: sess-b | Date: 2026-01-03 | Relevance: 50%]"))
	assert.True(t, strings.Contains(text, segmentJoiner))
	assert.Greater(t, tokenCount, 0)
}

func TestAssembleStopsBeforeOverflowingBudget(t *testing.T) {
	counter := fakeCounter{}
	chunkA := &store.Chunk{ID: "a", SessionSlug: "s", StartTime: time.Now(), Content: strings.Repeat("word ", 20)}
	chunkA.ApproxTokens = counter.Count(chunkA.Content)
	chunkB := &store.Chunk{ID: "b", SessionSlug: "s", StartTime: time.Now(), Content: "short"}
	chunkB.ApproxTokens = counter.Count(chunkB.Content)
	chunks := newFakeChunkStore()
	chunks.put(chunkA)
	chunks.put(chunkB)

	// Budget fits "a" exactly, leaving zero tokens remaining: not enough
	// for "b" in full and below the truncated-tail floor.
	budget := chunkA.ApproxTokens + counter.Count(segmentHeader(chunkA, 100))

	p := &Pipeline{Chunks: chunks, Counter: counter}
	cands := []candidate{
		{chunkID: "a", weight: 1.0},
		{chunkID: "b", weight: 0.9},
	}

	_, tokenCount, included := p.assemble(context.Background(), cands, budget)

	require.Len(t, included, 1)
	assert.Equal(t, "a", included[0].ChunkID)
	assert.Equal(t, budget, tokenCount)
}

func TestAssembleEmitsTruncatedTailWhenBudgetPermits(t *testing.T) {
	chunks := newFakeChunkStore()
	para1 := strings.Repeat("alpha ", 80)
	para2 := strings.Repeat("beta ", 100)
	content := para1 + "\n\n" + para2
	chunks.put(&store.Chunk{ID: "a", SessionSlug: "s", StartTime: time.Now(), Content: content, ApproxTokens: fakeCounter{}.Count(content)})

	p := &Pipeline{Chunks: chunks, Counter: fakeCounter{}}
	cands := []candidate{{chunkID: "a", weight: 1.0}}

	text, _, included := p.assemble(context.Background(), cands, 150)

	require.Len(t, included, 1)
	assert.True(t, strings.HasSuffix(text, truncationSuffix))
	assert.True(t, strings.Contains(text, "alpha"))
}

func TestAssembleSkipsUnresolvableChunks(t *testing.T) {
	chunks := newFakeChunkStore()
	p := &Pipeline{Chunks: chunks, Counter: fakeCounter{}}
	cands := []candidate{{chunkID: "missing", weight: 1.0}}

	text, tokenCount, included := p.assemble(context.Background(), cands, 1000)

	assert.Empty(t, text)
	assert.Equal(t, 0, tokenCount)
	assert.Empty(t, included)
}

func TestPreviewTruncatesLongContent(t *testing.T) {
	long := strings.Repeat("x", previewChars+50)
	assert.Len(t, preview(long), previewChars)
	assert.Equal(t, "short", preview("short"))
}
