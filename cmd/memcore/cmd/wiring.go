package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/contextvault/memcore/internal/cluster"
	"github.com/contextvault/memcore/internal/config"
	"github.com/contextvault/memcore/internal/decay"
	"github.com/contextvault/memcore/internal/embed"
	"github.com/contextvault/memcore/internal/hdbscan"
	"github.com/contextvault/memcore/internal/ingest"
	"github.com/contextvault/memcore/internal/keyword"
	"github.com/contextvault/memcore/internal/pruner"
	"github.com/contextvault/memcore/internal/retrieval"
	"github.com/contextvault/memcore/internal/scheduler"
	"github.com/contextvault/memcore/internal/store"
)

// engine bundles every collaborator a subcommand might need, wired once
// from a loaded Config. Subcommands pull out only the pieces they use.
type engine struct {
	cfg *config.Config
	log *slog.Logger

	metadata *store.SQLiteMetadataStore
	vectors  *store.FileStore
	keyword  keyword.BM25Index
	embedder embed.Embedder
	decay    decay.Model

	clusters *cluster.Manager
	pruner   *pruner.Pruner

	retrieval *retrieval.Pipeline
	ingest    *ingest.Pipeline
}

// newEngine opens every store under cfg.Paths.DataDir and wires the
// retrieval and ingest pipelines against them. Callers must call close()
// when done.
func newEngine(cfg *config.Config, log *slog.Logger) (*engine, error) {
	if log == nil {
		log = slog.Default()
	}

	metaPath := filepath.Join(cfg.Paths.DataDir, "memory.db")
	metadata, err := store.NewSQLiteMetadataStore(metaPath, log)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	vectors, err := store.NewFileStore(store.VectorStoreConfig{
		Dimensions: cfg.Vectors.Dimensions,
		DataDir:    cfg.Paths.DataDir,
		MaxCount:   cfg.Vectors.MaxCount,
		TTLDays:    cfg.Vectors.TTLDays,
	}, log)
	if err != nil {
		metadata.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	kwPath := filepath.Join(cfg.Paths.DataDir, "keyword")
	kwIndex, err := keyword.NewIndex(kwPath, keyword.DefaultConfig())
	if err != nil {
		metadata.Close()
		vectors.Close()
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	embedder := embed.NewCachedEmbedder(embed.NewDeterministicEmbedder(cfg.Vectors.Dimensions), embed.DefaultEmbeddingCacheSize)
	decayModel := decay.FromConfig(cfg.Decay)

	hdbscanCfg := hdbscan.Config{
		MinClusterSize:         cfg.Clustering.MinClusterSize,
		MinSamples:             cfg.Clustering.MinSamples,
		Metric:                 hdbscan.Metric(cfg.Clustering.Metric),
		ClusterSelectionMethod: hdbscan.SelectionMethod(cfg.Clustering.SelectionMethod),
		ApproximateKNN:         cfg.Clustering.ApproximateKNN,
	}
	clusterMgr := cluster.New(metadata, vectors, hdbscanCfg, cfg.Clustering.Threshold)
	pr := pruner.New(metadata, metadata)

	retrievalPipeline := retrieval.New(
		metadata, metadata, metadata, vectors, kwIndex, embedder, decayModel,
		cfg.Retrieval, cfg.Traversal, cfg.Tokens,
	)
	retrievalPipeline.DeadEdges = pr.Queue()

	ingestPipeline := ingest.New(ingest.Collaborators{
		Chunks:   metadata,
		Edges:    metadata,
		Vectors:  vectors,
		Keyword:  kwIndex,
		Embedder: embedder,
		Log:      log,
	}, nil)

	return &engine{
		cfg:       cfg,
		log:       log,
		metadata:  metadata,
		vectors:   vectors,
		keyword:   kwIndex,
		embedder:  embedder,
		decay:     decayModel,
		clusters:  clusterMgr,
		pruner:    pr,
		retrieval: retrievalPipeline,
		ingest:    ingestPipeline,
	}, nil
}

func (e *engine) close() {
	e.embedder.Close()
	e.keyword.Close()
	e.vectors.Close()
	e.metadata.Close()
}

// buildScheduler wires the five maintenance tasks against e's stores.
// scanProjects may be nil when the caller doesn't want scan-projects
// scheduled (e.g. a one-shot ingest run).
func (e *engine) buildScheduler(statePath string, scanProjects func(ctx context.Context) error) (*scheduler.Scheduler, error) {
	tasks, err := scheduler.BuildDefaultTasks(e.cfg.Maintenance, e.cfg.Vectors, scheduler.Collaborators{
		Clusters:     e.clusters,
		Pruner:       e.pruner,
		Vectors:      e.vectors,
		ScanProjects: scanProjects,
	})
	if err != nil {
		return nil, err
	}
	return scheduler.New(tasks, statePath, e.log), nil
}
