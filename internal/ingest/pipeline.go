package ingest

import (
	"context"
	"log/slog"

	"github.com/contextvault/memcore/internal/edges"
	"github.com/contextvault/memcore/internal/embed"
	memerrors "github.com/contextvault/memcore/internal/errors"
	"github.com/contextvault/memcore/internal/keyword"
	"github.com/contextvault/memcore/internal/store"
	"github.com/contextvault/memcore/internal/tokencount"
)

// Collaborators are the stores and services the pipeline writes through.
type Collaborators struct {
	Chunks   store.ChunkStore
	Edges    store.EdgeStore
	Vectors  store.VectorStore
	Keyword  keyword.BM25Index
	Embedder embed.Embedder
	Log      *slog.Logger
}

// Pipeline assembles parsed turns into persisted chunks, vectors, keyword
// index entries and edges for one session at a time.
type Pipeline struct {
	assembler *Assembler
	c         Collaborators
}

// New builds a Pipeline. counter defaults to tokencount.Default() when nil.
func New(c Collaborators, counter tokencount.Counter) *Pipeline {
	if counter == nil {
		counter = tokencount.Default()
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	return &Pipeline{assembler: NewAssembler(counter), c: c}
}

// Result summarizes one IngestSession call.
type Result struct {
	ChunksIngested int
	EdgesCreated   int
}

// IngestSession assembles turns into chunks, embeds and indexes them, runs
// edge detection scoped to this session's chunks, and persists everything.
// leadAgentID is empty for solo sessions; non-empty enables team-spawn,
// peer-message and sub-agent brief/debrief detection.
func (p *Pipeline) IngestSession(ctx context.Context, sessionID, sessionSlug, leadAgentID string, turns []Turn) (*Result, error) {
	if len(turns) == 0 {
		return &Result{}, nil
	}

	chunks := p.assembler.Assemble(sessionID, sessionSlug, turns)
	if err := p.c.Chunks.BulkInsertChunks(ctx, chunks); err != nil {
		return nil, memerrors.Wrap(memerrors.ErrCodeInternal, err)
	}

	docs := make([]*keyword.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = &keyword.Document{ID: chunk.ID, Content: chunk.Content}
	}
	if err := p.c.Keyword.Index(ctx, docs); err != nil {
		return nil, memerrors.DependencyUnavailable(memerrors.ErrCodeKeywordUnavailable, "keyword index unavailable during ingest", err)
	}

	for _, chunk := range chunks {
		values, err := p.c.Embedder.Embed(ctx, chunk.Content, false)
		if err != nil {
			return nil, memerrors.DependencyUnavailable(memerrors.ErrCodeEmbedderUnavailable, "embedder unavailable during ingest", err)
		}
		if err := p.c.Vectors.Upsert(ctx, chunk.ID, values); err != nil {
			return nil, memerrors.Wrap(memerrors.ErrCodeInternal, err)
		}
	}

	detector := edges.New(leadAgentID)
	detected := detector.DetectAll(chunks)
	created := 0
	for _, e := range detected {
		if _, err := p.c.Edges.CreateOrBoostEdge(ctx, e); err != nil {
			p.c.Log.Warn("edge persist failed during ingest",
				slog.String("source", e.SourceChunkID),
				slog.String("target", e.TargetChunkID),
				slog.String("error", err.Error()))
			continue
		}
		created++
	}

	p.c.Log.Info("session ingested",
		slog.String("session_id", sessionID),
		slog.Int("chunks", len(chunks)),
		slog.Int("edges", created))

	return &Result{ChunksIngested: len(chunks), EdgesCreated: created}, nil
}
