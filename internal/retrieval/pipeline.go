package retrieval

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contextvault/memcore/internal/config"
	"github.com/contextvault/memcore/internal/decay"
	"github.com/contextvault/memcore/internal/embed"
	memerrors "github.com/contextvault/memcore/internal/errors"
	"github.com/contextvault/memcore/internal/graph"
	"github.com/contextvault/memcore/internal/keyword"
	"github.com/contextvault/memcore/internal/store"
	"github.com/contextvault/memcore/internal/tokencount"
)

// previewChars bounds the chunk preview returned in each IncludedChunk.
const previewChars = 200

// Pipeline wires the stores, collaborators and configuration assemble_context
// needs. DeadEdges, if non-nil, receives ids of edges observed at or below
// zero effective weight during graph traversal (the pruner's queue);
// sends are non-blocking so a slow or absent consumer never stalls
// retrieval.
type Pipeline struct {
	Chunks   store.ChunkStore
	Edges    store.EdgeStore
	Clusters store.ClusterStore
	Vectors  store.VectorStore
	Keyword  keyword.BM25Index
	Embedder embed.Embedder
	Decay    decay.Model

	Cfg       config.RetrievalConfig
	Traversal config.TraversalConfig
	Tokens    config.TokensConfig

	Counter   tokencount.Counter
	DeadEdges chan<- string
}

// New builds a Pipeline from its collaborators. Counter defaults to
// tokencount.Default() when nil.
func New(
	chunks store.ChunkStore,
	edges store.EdgeStore,
	clusters store.ClusterStore,
	vectors store.VectorStore,
	kw keyword.BM25Index,
	embedder embed.Embedder,
	decayModel decay.Model,
	cfg config.RetrievalConfig,
	traversal config.TraversalConfig,
	tokensCfg config.TokensConfig,
) *Pipeline {
	return &Pipeline{
		Chunks: chunks, Edges: edges, Clusters: clusters, Vectors: vectors,
		Keyword: kw, Embedder: embedder, Decay: decayModel,
		Cfg: cfg, Traversal: traversal, Tokens: tokensCfg,
		Counter: tokencount.Default(),
	}
}

// AssembleContext runs the full ten-step retrieval pipeline: embed the
// query, fan out to vector and keyword search, fuse with RRF, expand
// through cluster siblings and the edge graph, merge and re-rank with a
// recency boost and MMR diversification, then assemble the winning
// chunks into a token-budgeted context string.
func (p *Pipeline) AssembleContext(ctx context.Context, req Request) (*Response, error) {
	started := time.Now()

	if strings.TrimSpace(req.Query) == "" {
		return nil, memerrors.InvalidArgument(memerrors.ErrCodeEmptySeed, "query must not be empty", nil)
	}

	vectorLimit := req.VectorSearchLimit
	if vectorLimit <= 0 {
		vectorLimit = p.Cfg.VectorTopK
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.Tokens.MCPMaxResponse
	}

	// Step 1: embed the query. The vector path cannot start without this,
	// so unlike keyword failures this is not degradable.
	queryVec, err := p.Embedder.Embed(ctx, req.Query, true)
	if err != nil {
		return nil, memerrors.DependencyUnavailable(memerrors.ErrCodeEmbedderUnavailable, "embedder unavailable", err)
	}

	// Steps 2+3: vector and keyword search, issued concurrently and
	// joined before fusion.
	var vectorHits []store.VectorResult
	var keywordHits []*keyword.Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if req.ProjectFilter != nil {
			vectorHits, err = p.Vectors.SearchByProject(gctx, queryVec, vectorLimit, req.ProjectFilter)
		} else {
			vectorHits, err = p.Vectors.Search(gctx, queryVec, vectorLimit)
		}
		return err
	})
	g.Go(func() error {
		if p.Keyword == nil {
			return nil
		}
		hits, err := p.Keyword.Search(gctx, req.Query, p.Cfg.KeywordTopK)
		if err != nil {
			// keyword failures degrade to vector-only, never fail retrieval.
			return nil
		}
		keywordHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, memerrors.DependencyUnavailable(memerrors.ErrCodeEmbedderUnavailable, "vector search failed", err)
	}

	// Step 4: RRF fusion.
	fused := fuseRRF(vectorHits, keywordHits, p.Cfg.VectorWeight, p.Cfg.KeywordWeight, p.Cfg.RRFConstant)
	totalConsidered := len(fused)

	// Step 5: cluster expansion.
	candidates := fused
	if !req.SkipClusterExpansion && p.Clusters != nil {
		siblings := p.expandClusters(ctx, fused)
		candidates = dedupeKeepFirst(append(append([]candidate{}, fused...), siblings...))
		totalConsidered += len(siblings)
	}

	// Step 6: graph traversal seeded from the fused hits.
	var graphHits []candidate
	if p.Edges != nil {
		graphHits = p.traverseGraph(ctx, fused)
		totalConsidered += len(graphHits)
	}

	// Step 7: merge (hit weight x merge boost) with traversal, dedupe by
	// max weight.
	merged := mergeCandidates(candidates, graphHits, p.Cfg.MergeBoost)

	// Step 8: recency boost and re-sort.
	applyRecencyBoost(ctx, merged, p.Chunks, req.CurrentSessionID, p.Cfg.RecencyBoost)
	sortByWeightDesc(merged)

	// Step 9: MMR diversification.
	minCandidates := p.Cfg.MMRMinCandidates
	if minCandidates <= 0 {
		minCandidates = 10
	}
	if len(merged) >= minCandidates {
		merged = p.reorderByMMR(ctx, merged, p.Cfg.MMRLambda)
	}

	// Step 10: budgeted assembly.
	text, tokenCount, included := p.assemble(ctx, merged, maxTokens)

	return &Response{
		Text:            text,
		TokenCount:      tokenCount,
		Chunks:          included,
		TotalConsidered: totalConsidered,
		DurationMs:      time.Since(started).Milliseconds(),
	}, nil
}
