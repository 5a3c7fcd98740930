package keyword

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
)

const (
	// CodeTokenizerName names the registry entry for codeTokenizer.
	CodeTokenizerName = "code_tokenizer"

	// CodeStopFilterName names the registry entry for codeStopFilter.
	CodeStopFilterName = "code_stop"

	// CodeAnalyzerName names the composed analyzer (tokenizer + lowercase +
	// stop filter) set as the index mapping's default.
	CodeAnalyzerName = "code_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(CodeTokenizerName, codeTokenizerConstructor)
	_ = registry.RegisterTokenFilter(CodeStopFilterName, codeStopFilterConstructor)
}

// Index wraps a Bleve full-text index scoped to chunk content, with a
// code-aware analyzer substituted in place of Bleve's default tokenizer.
type Index struct {
	mu        sync.RWMutex
	index     bleve.Index
	path      string
	config    Config
	closed    bool
	stopWords map[string]struct{}
}

// bleveDoc is the shape handed to Bleve for each indexed chunk; the
// analyzer attached to its content field does the real tokenization work.
type bleveDoc struct {
	Content string `json:"content"`
}

// corruptionMarkers are substrings Bleve's own error messages are known to
// contain when the on-disk index was left mid-write by a process that
// exited without calling Close — a crash or a kill -9 of the maintenance
// daemon, not a software bug in this package.
var corruptionMarkers = []string{
	"unexpected end of JSON",
	"error parsing mapping JSON",
	"failed to load segment",
	"error opening bolt",
	"no such file or directory",
}

func looksCorrupted(err error) bool {
	if err == nil {
		return false
	}
	if err == bleve.ErrorIndexMetaCorrupt {
		return true
	}
	msg := err.Error()
	for _, marker := range corruptionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// checkMetaFile does a cheap pre-flight check of index_meta.json before
// handing the path to Bleve: a zero-length or unparseable meta file is the
// most common symptom left behind by an unclean shutdown, and catching it
// here means one os.Stat+ReadFile instead of waiting for Bleve.Open to
// fail with a less specific error.
func checkMetaFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	case err != nil:
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	case info.Size() == 0:
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// discardAndRecreate wipes a corrupted on-disk index directory and starts
// a fresh one in its place. The old postings are unrecoverable either way;
// the caller (ingest, on the next scheduled reindex) repopulates it.
func discardAndRecreate(path string, reason string, mapping *mapping.IndexMappingImpl) (bleve.Index, error) {
	slog.Warn("keyword_index_corrupted", slog.String("path", path), slog.String("reason", reason))
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("keyword index corrupted at %s and cannot remove: %w", path, err)
	}
	slog.Info("keyword_index_cleared", slog.String("path", path))
	return bleve.New(path, mapping)
}

// openOnDisk opens the index at path, first checking for and clearing
// corruption left by an unclean shutdown, then either opening the
// existing index or creating one if none exists yet.
func openOnDisk(path string, mapping *mapping.IndexMappingImpl) (bleve.Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}

	if metaErr := checkMetaFile(path); metaErr != nil {
		if idx, err := discardAndRecreate(path, metaErr.Error(), mapping); err != nil {
			return nil, err
		} else {
			return idx, nil
		}
	}

	idx, err := bleve.Open(path)
	switch {
	case err == bleve.ErrorIndexPathDoesNotExist:
		return bleve.New(path, mapping)
	case err != nil && looksCorrupted(err):
		return discardAndRecreate(path, err.Error(), mapping)
	case err != nil:
		return nil, err
	default:
		return idx, nil
	}
}

// NewIndex opens (or creates) a keyword index at path. An empty path
// creates a memory-only index, used by tests and by any caller that wants
// keyword search without persisting it to disk.
func NewIndex(path string, config Config) (*Index, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		idx, err = openOnDisk(path, indexMapping)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &Index{
		index:     idx,
		path:      path,
		config:    config,
		stopWords: BuildStopWordMap(config.StopWords),
	}, nil
}

// createIndexMapping builds a Bleve index mapping whose default analyzer
// is the code-aware one, so every field falls back to identifier-splitting
// tokenization unless a field mapping says otherwise.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(CodeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": CodeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			CodeStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = CodeAnalyzerName
	return indexMapping, nil
}

// Index upserts docs into the index in a single batch. A document whose id
// was already indexed has its content replaced, not appended to.
func (idx *Index) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("index is closed")
	}

	batch := idx.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDoc{Content: doc.Content}); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	if err := idx.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	return nil
}

// Search runs queryStr through the same code-aware analyzer used at index
// time and returns up to limit hits ordered by Bleve's relevance score, each
// annotated with the content terms that matched.
func (idx *Index) Search(ctx context.Context, queryStr string, limit int) ([]*Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if strings.TrimSpace(queryStr) == "" {
		return []*Result{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit
	req.IncludeLocations = true

	found, err := idx.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*Result, 0, len(found.Hits))
	for _, hit := range found.Hits {
		results = append(results, &Result{
			DocID:        hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedContentTerms(hit),
		})
	}

	return results, nil
}

// Delete removes docIDs from the index in a single batch; ids that were
// never indexed are silently ignored, matching Bleve's own Delete semantics.
func (idx *Index) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("index is closed")
	}

	batch := idx.index.NewBatch()
	for _, id := range docIDs {
		batch.Delete(id)
	}

	if err := idx.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}

	return nil
}

// AllIDs lists every document id currently indexed, for reconciling this
// index's membership against the chunk metadata store.
func (idx *Index) AllIDs() ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, fmt.Errorf("index is closed")
	}

	docCount, _ := idx.index.DocCount()

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{}

	found, err := idx.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for all IDs: %w", err)
	}

	ids := make([]string, len(found.Hits))
	for i, hit := range found.Hits {
		ids[i] = hit.ID
	}

	return ids, nil
}

// Stats reports the current document count. A closed index reports zero
// rather than erroring, since callers typically log stats during shutdown.
func (idx *Index) Stats() *IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return &IndexStats{}
	}

	docCount, _ := idx.index.DocCount()
	return &IndexStats{DocumentCount: int(docCount)}
}

// Save is a no-op: a disk-backed Bleve index persists each batch as it
// commits, so there is nothing left to flush separately.
func (idx *Index) Save(path string) error {
	return nil
}

// Load replaces idx's underlying index with the one at path, closing
// whatever was previously open.
func (idx *Index) Load(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.index != nil && !idx.closed {
		_ = idx.index.Close()
	}

	opened, err := bleve.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}

	idx.index = opened
	idx.path = path
	idx.closed = false

	return nil
}

// Close shuts down the underlying Bleve index. Safe to call more than
// once; every call after the first is a no-op.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil
	}

	idx.closed = true
	if idx.index != nil {
		return idx.index.Close()
	}
	return nil
}

// matchedContentTerms collects the distinct content-field terms that
// contributed to hit's score, deduplicating the per-occurrence locations
// Bleve reports.
func matchedContentTerms(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field != "content" {
			continue
		}
		for term := range locations {
			seen[term] = struct{}{}
		}
	}

	terms := make([]string, 0, len(seen))
	for term := range seen {
		terms = append(terms, term)
	}
	return terms
}

var _ BM25Index = (*Index)(nil)

// codeTokenizerConstructor satisfies Bleve's registry.TokenizerConstructor
// signature; the returned tokenizer ignores its config argument since
// tokenization behavior is fixed, not per-field configurable.
func codeTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return codeTokenizer{}, nil
}

// codeTokenizer adapts TokenizeCode to Bleve's analysis.Tokenizer
// interface, which wants byte offsets and a position per token rather than
// a flat string slice.
type codeTokenizer struct{}

func (codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := TokenizeCode(text)

	stream := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0

	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), strings.ToLower(token))
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		stream = append(stream, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}

	return stream
}

// codeStopFilterConstructor satisfies Bleve's registry.TokenFilterConstructor
// signature.
func codeStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return codeStopFilter{stopWords: BuildStopWordMap(DefaultCodeStopWords)}, nil
}

// codeStopFilter drops stop words post-tokenization, after camelCase/
// snake_case splitting has already happened — "the" inside an identifier
// like "theUser" survives splitting as its own token and still needs
// filtering here.
type codeStopFilter struct {
	stopWords map[string]struct{}
}

func (f codeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	kept := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, stop := f.stopWords[strings.ToLower(string(token.Term))]; !stop {
			kept = append(kept, token)
		}
	}
	return kept
}
