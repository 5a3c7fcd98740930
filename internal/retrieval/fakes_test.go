package retrieval

import (
	"context"
	"time"

	"github.com/contextvault/memcore/internal/keyword"
	"github.com/contextvault/memcore/internal/store"
)

// fakeChunkStore is an in-memory store.ChunkStore keyed by chunk id.
type fakeChunkStore struct {
	chunks map[string]*store.Chunk
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{chunks: make(map[string]*store.Chunk)}
}

func (f *fakeChunkStore) put(c *store.Chunk) { f.chunks[c.ID] = c }

func (f *fakeChunkStore) InsertChunk(ctx context.Context, c *store.Chunk) error {
	f.put(c)
	return nil
}
func (f *fakeChunkStore) BulkInsertChunks(ctx context.Context, chunks []*store.Chunk) error {
	for _, c := range chunks {
		f.put(c)
	}
	return nil
}
func (f *fakeChunkStore) GetChunk(ctx context.Context, id string) (*store.Chunk, error) {
	c, ok := f.chunks[id]
	if !ok {
		return nil, nil
	}
	return c, nil
}
func (f *fakeChunkStore) ChunksBySession(ctx context.Context, sessionID string) ([]*store.Chunk, error) {
	var out []*store.Chunk
	for _, c := range f.chunks {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeChunkStore) CountChunks(ctx context.Context) (int, error) { return len(f.chunks), nil }
func (f *fakeChunkStore) DeleteChunk(ctx context.Context, id string) error {
	delete(f.chunks, id)
	return nil
}
func (f *fakeChunkStore) AllChunkIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for id := range f.chunks {
		ids = append(ids, id)
	}
	return ids, nil
}

var _ store.ChunkStore = (*fakeChunkStore)(nil)

// fakeVectorStore serves fixed Search/SearchByProject results and stores
// vectors by id for MMR's similarity lookups.
type fakeVectorStore struct {
	vectors map[string][]float32
	results []store.VectorResult
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{vectors: make(map[string][]float32)}
}

func (f *fakeVectorStore) Upsert(ctx context.Context, chunkID string, values []float32) error {
	f.vectors[chunkID] = values
	return nil
}
func (f *fakeVectorStore) Get(ctx context.Context, chunkID string) (*store.Vector, error) {
	v, ok := f.vectors[chunkID]
	if !ok {
		return nil, nil
	}
	return &store.Vector{ChunkID: chunkID, Values: v}, nil
}
func (f *fakeVectorStore) Touch(ctx context.Context, chunkIDs []string, at time.Time) {}
func (f *fakeVectorStore) Search(ctx context.Context, query []float32, k int) ([]store.VectorResult, error) {
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}
func (f *fakeVectorStore) SearchByProject(ctx context.Context, query []float32, k int, filter map[string]bool) ([]store.VectorResult, error) {
	var out []store.VectorResult
	for _, r := range f.results {
		if filter[r.ChunkID] {
			out = append(out, r)
		}
	}
	if k < len(out) {
		return out[:k], nil
	}
	return out, nil
}
func (f *fakeVectorStore) Delete(ctx context.Context, chunkID string) error {
	delete(f.vectors, chunkID)
	return nil
}
func (f *fakeVectorStore) CleanupExpired(ctx context.Context, ttlDays int, known map[string]bool) (int, error) {
	return 0, nil
}
func (f *fakeVectorStore) EvictOldestByCount(ctx context.Context, maxCount int) (int, error) {
	return 0, nil
}
func (f *fakeVectorStore) Vacuum(ctx context.Context) error { return nil }
func (f *fakeVectorStore) Count() int                       { return len(f.vectors) }
func (f *fakeVectorStore) Close() error                     { return nil }

var _ store.VectorStore = (*fakeVectorStore)(nil)

// fakeKeywordIndex serves a fixed Search result list.
type fakeKeywordIndex struct {
	results []*keyword.Result
	err     error
}

func (f *fakeKeywordIndex) Index(ctx context.Context, docs []*keyword.Document) error { return nil }
func (f *fakeKeywordIndex) Search(ctx context.Context, query string, limit int) ([]*keyword.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}
func (f *fakeKeywordIndex) Delete(ctx context.Context, docIDs []string) error { return nil }
func (f *fakeKeywordIndex) AllIDs() ([]string, error)                        { return nil, nil }
func (f *fakeKeywordIndex) Stats() *keyword.IndexStats                       { return &keyword.IndexStats{} }
func (f *fakeKeywordIndex) Close() error                                    { return nil }

var _ keyword.BM25Index = (*fakeKeywordIndex)(nil)

// fakeClusterStore serves fixed assignments and members, ignoring writes.
type fakeClusterStore struct {
	assignments map[string][]store.ClusterAssignment
	members     map[string][]store.ClusterAssignment
}

func newFakeClusterStore() *fakeClusterStore {
	return &fakeClusterStore{
		assignments: make(map[string][]store.ClusterAssignment),
		members:     make(map[string][]store.ClusterAssignment),
	}
}

func (f *fakeClusterStore) UpsertCluster(ctx context.Context, c *store.Cluster) error { return nil }
func (f *fakeClusterStore) GetCluster(ctx context.Context, id string) (*store.Cluster, error) {
	return nil, nil
}
func (f *fakeClusterStore) ListClusters(ctx context.Context) ([]*store.Cluster, error) {
	return nil, nil
}
func (f *fakeClusterStore) DeleteCluster(ctx context.Context, id string) error { return nil }
func (f *fakeClusterStore) AssignChunk(ctx context.Context, a store.ClusterAssignment) error {
	return nil
}
func (f *fakeClusterStore) ClearAssignments(ctx context.Context, clusterID string) error { return nil }
func (f *fakeClusterStore) ClusterMembers(ctx context.Context, clusterID string) ([]store.ClusterAssignment, error) {
	return f.members[clusterID], nil
}
func (f *fakeClusterStore) AssignmentsForChunk(ctx context.Context, chunkID string) ([]store.ClusterAssignment, error) {
	return f.assignments[chunkID], nil
}
func (f *fakeClusterStore) ReplaceAll(ctx context.Context, clusters []*store.Cluster, assignments []store.ClusterAssignment) error {
	return nil
}

var _ store.ClusterStore = (*fakeClusterStore)(nil)

// fakeEdgeStore is an in-memory store.EdgeStore backed by a plain slice.
type fakeEdgeStore struct {
	edges []*store.Edge
}

func (f *fakeEdgeStore) CreateEdge(ctx context.Context, e *store.Edge) error {
	f.edges = append(f.edges, e)
	return nil
}
func (f *fakeEdgeStore) CreateOrBoostEdge(ctx context.Context, e *store.Edge) (*store.Edge, error) {
	return e, f.CreateEdge(ctx, e)
}
func (f *fakeEdgeStore) OutgoingEdges(ctx context.Context, chunkID string) ([]*store.Edge, error) {
	var out []*store.Edge
	for _, e := range f.edges {
		if e.SourceChunkID == chunkID {
			out = append(out, e)
		}
	}
	return out, nil
}
func (f *fakeEdgeStore) IncomingEdges(ctx context.Context, chunkID string) ([]*store.Edge, error) {
	var out []*store.Edge
	for _, e := range f.edges {
		if e.TargetChunkID == chunkID {
			out = append(out, e)
		}
	}
	return out, nil
}
func (f *fakeEdgeStore) DeleteEdge(ctx context.Context, id string) error { return nil }
func (f *fakeEdgeStore) DeleteEdgesForChunk(ctx context.Context, chunkID string) error {
	return nil
}
func (f *fakeEdgeStore) DeleteEdges(ctx context.Context, ids []string) (int, error) {
	return 0, nil
}

var _ store.EdgeStore = (*fakeEdgeStore)(nil)

// fakeEmbedder returns a fixed vector regardless of input text.
type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, isQuery bool) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}
func (f *fakeEmbedder) Dimensions() int { return len(f.vector) }
func (f *fakeEmbedder) Close() error    { return nil }

// fakeCounter counts tokens as word count, avoiding a tiktoken-go
// dependency in unit tests that only need a stable, cheap approximation.
type fakeCounter struct{}

func (fakeCounter) Count(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}
