package keyword

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex("", DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestIndexSearchFindsIndexedDocument(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "chunk-1", Content: "the retry loop backs off exponentially on timeout"},
		{ID: "chunk-2", Content: "unrelated discussion about release notes"},
	}))

	results, err := idx.Search(ctx, "exponential backoff timeout", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "chunk-1", results[0].DocID)
}

func TestIndexSearchEmptyQueryReturnsEmpty(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Document{{ID: "chunk-1", Content: "hello world"}}))

	results, err := idx.Search(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexSearchNoMatchesReturnsEmptyNotError(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Document{{ID: "chunk-1", Content: "hello world"}}))

	results, err := idx.Search(ctx, "zzzznomatchzzzz", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexDeleteRemovesDocument(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Document{{ID: "chunk-1", Content: "distinctive phrase"}}))

	require.NoError(t, idx.Delete(ctx, []string{"chunk-1"}))

	results, err := idx.Search(ctx, "distinctive phrase", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexReindexingSameIDUpdatesContent(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Document{{ID: "chunk-1", Content: "original content about databases"}}))
	require.NoError(t, idx.Index(ctx, []*Document{{ID: "chunk-1", Content: "updated content about caches"}}))

	results, err := idx.Search(ctx, "caches", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	stale, err := idx.Search(ctx, "databases", 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestIndexStatsReportsDocumentCount(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "chunk-1", Content: "a"},
		{ID: "chunk-2", Content: "b"},
	}))

	assert.Equal(t, 2, idx.Stats().DocumentCount)
}

func TestIndexClosedIndexRejectsOperations(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Close())

	ctx := context.Background()
	err := idx.Index(ctx, []*Document{{ID: "chunk-1", Content: "x"}})
	assert.Error(t, err)
}
