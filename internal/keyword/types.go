package keyword

import "context"

// Document is a unit of content submitted to the keyword index —
// typically a Chunk's content, keyed by chunk id.
type Document struct {
	ID      string
	Content string
}

// Result is a single keyword-search hit. BM25 parameters are treated as
// opaque: callers rely on rank order, not the raw Score value.
type Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats reports basic statistics about the keyword index.
type IndexStats struct {
	DocumentCount int
}

// BM25Index provides full-text keyword search over chunk content,
// gracefully degrading to an empty result set when the underlying index
// is missing or unreadable rather than failing the retrieval pipeline.
type BM25Index interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *IndexStats
	Close() error
}

// Config configures the keyword index. K1 and B are carried here but are
// not passed to Bleve: scores come from the index mapping's default
// scoring model, and retrieval relies on rank order, not raw score.
type Config struct {
	K1             float64
	B              float64
	StopWords      []string
	MinTokenLength int
}

// DefaultConfig returns the default BM25 configuration: K1=1.2, B=0.75.
func DefaultConfig() Config {
	return Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultCodeStopWords,
		MinTokenLength: 2,
	}
}

// DefaultCodeStopWords filters common programming keywords out of the
// full-text index so they don't dominate BM25 matches against chunk
// content that embeds code fences.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}
