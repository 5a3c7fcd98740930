package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	memerrors "github.com/contextvault/memcore/internal/errors"
)

// DefaultEmbeddingCacheSize is the default number of embeddings to cache.
const DefaultEmbeddingCacheSize = 1000

// defaultEmbedRetryConfig favors a quick give-up over the package-wide
// default: an embedding call that is going to fail repeatedly should not
// stall ingestion for seconds per chunk.
func defaultEmbedRetryConfig() memerrors.RetryConfig {
	return memerrors.RetryConfig{
		MaxRetries:   2,
		InitialDelay: 25 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// CachedEmbedder wraps an Embedder with LRU caching so repeated queries
// (and repeated chunk content across a reindex) skip recomputation. Cache
// misses go through a circuit breaker and exponential-backoff retry, since
// inner may be a networked or subprocess-backed model server rather than
// the in-process deterministic fallback.
type CachedEmbedder struct {
	inner   Embedder
	cache   *lru.Cache[string, []float32]
	retry   memerrors.RetryConfig
	breaker *memerrors.CircuitBreaker
}

// NewCachedEmbedder wraps inner with an LRU cache of the given size (0 uses
// DefaultEmbeddingCacheSize).
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{
		inner:   inner,
		cache:   cache,
		retry:   defaultEmbedRetryConfig(),
		breaker: memerrors.NewCircuitBreaker("embedder"),
	}
}

func (c *CachedEmbedder) cacheKey(text string, isQuery bool) string {
	suffix := "\x00doc"
	if isQuery {
		suffix = "\x00query"
	}
	hash := sha256.Sum256([]byte(text + suffix))
	return hex.EncodeToString(hash[:])
}

// Embed returns the cached embedding if present. On a miss it calls inner
// through the circuit breaker and retry policy: a still-open breaker fails
// fast without touching inner, and a transient failure gets up to
// RetryConfig.MaxRetries retries with exponential backoff before the
// breaker records it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string, isQuery bool) ([]float32, error) {
	key := c.cacheKey(text, isQuery)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	if !c.breaker.Allow() {
		return nil, fmt.Errorf("embedder %q: circuit open", c.breaker.Name())
	}

	vec, err := memerrors.RetryWithResult(ctx, c.retry, func() ([]float32, error) {
		return c.inner.Embed(ctx, text, isQuery)
	})
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	c.breaker.RecordSuccess()

	c.cache.Add(key, vec)
	return vec, nil
}

// Dimensions passes through to the inner embedder.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Close closes the inner embedder.
func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder {
	return c.inner
}
