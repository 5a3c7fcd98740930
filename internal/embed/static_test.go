package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextvault/memcore/internal/numerics"
)

func TestDeterministicEmbedderProducesUnitVectorOfConfiguredDimensions(t *testing.T) {
	e := NewDeterministicEmbedder(128)
	v, err := e.Embed(context.Background(), "func ParseRequest(req *http.Request) error", false)
	require.NoError(t, err)
	assert.Len(t, v, 128)
	assert.InDelta(t, 1.0, numerics.L2Norm(v), 1e-3)
}

func TestDeterministicEmbedderIsDeterministic(t *testing.T) {
	e := NewDeterministicEmbedder(64)
	ctx := context.Background()
	a, err := e.Embed(ctx, "retry the upload on transient io errors", true)
	require.NoError(t, err)
	b, err := e.Embed(ctx, "retry the upload on transient io errors", true)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDeterministicEmbedderEmptyTextReturnsZeroVector(t *testing.T) {
	e := NewDeterministicEmbedder(32)
	v, err := e.Embed(context.Background(), "   ", false)
	require.NoError(t, err)
	for _, x := range v {
		assert.Equal(t, float32(0), x)
	}
}

func TestDeterministicEmbedderDistinctTextsDiverge(t *testing.T) {
	e := NewDeterministicEmbedder(64)
	ctx := context.Background()
	a, err := e.Embed(ctx, "connection pool exhausted retrying backoff", false)
	require.NoError(t, err)
	b, err := e.Embed(ctx, "invoice totals reconciled against ledger", false)
	require.NoError(t, err)
	sim, err := numerics.CosineSimilarity(a, b)
	require.NoError(t, err)
	assert.Less(t, sim, float32(0.9))
}

func TestDeterministicEmbedderClosedRejectsEmbed(t *testing.T) {
	e := NewDeterministicEmbedder(32)
	require.NoError(t, e.Close())
	_, err := e.Embed(context.Background(), "anything", false)
	assert.Error(t, err)
}

func TestSplitCodeTokenHandlesCamelAndSnakeCase(t *testing.T) {
	assert.ElementsMatch(t, []string{"parse", "HTTP", "Request"}, splitCodeToken("parseHTTPRequest"))
	assert.ElementsMatch(t, []string{"max", "retry", "count"}, splitCodeToken("max_retry_count"))
}

func TestFilterStopWordsDropsCommonKeywords(t *testing.T) {
	out := filterStopWords([]string{"func", "retry", "var", "backoff"})
	assert.ElementsMatch(t, []string{"retry", "backoff"}, out)
}
