// Package retrieval implements assemble_context, the
// hybrid vector + keyword + cluster-expanded + graph-traversed retrieval
// pipeline that produces a token-budgeted context string for a query.
package retrieval

// Source tags where a candidate chunk entered the result set.
type Source string

const (
	SourceVector  Source = "vector"
	SourceKeyword Source = "keyword"
	SourceCluster Source = "cluster"
	SourceGraph   Source = "graph"
)

// Request is assemble_context's input, minus the fields owned by the
// external JSON-RPC surface: mode and range select a caller-side policy
// this pipeline doesn't need to know about.
type Request struct {
	Query               string
	CurrentSessionID    string
	ProjectFilter       map[string]bool // nil = no project filter
	MaxTokens           int             // 0 = use config default
	VectorSearchLimit   int             // 0 = use config default
	SkipClusterExpansion bool
}

// IncludedChunk describes one chunk folded into the assembled response.
type IncludedChunk struct {
	ChunkID     string
	SessionSlug string
	Weight      float64
	Preview     string
	Source      Source
}

// Response is assemble_context's return value.
type Response struct {
	Text            string
	TokenCount      int
	Chunks          []IncludedChunk
	TotalConsidered int
	DurationMs      int64
}

// candidate is one chunk id under consideration at any pipeline stage,
// carrying its running weight and the source that first produced it.
type candidate struct {
	chunkID string
	weight  float64
	source  Source
}
