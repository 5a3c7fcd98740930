// Package pruner implements a lazily-reaped queue of
// possibly-dead edge ids, flushed on demand into a batch delete plus an
// orphaned-chunk scan.
package pruner

import (
	"context"
	"sync"

	memerrors "github.com/contextvault/memcore/internal/errors"
	"github.com/contextvault/memcore/internal/store"
)

// FlushResult reports the outcome of a single FlushNow cycle.
type FlushResult struct {
	EdgesDeleted   int
	ChunksOrphaned int
}

// defaultQueueSize bounds the channel buffer Queue() exposes. When the
// buffer is full, graph traversal's non-blocking send drops the id rather
// than blocking; Enqueue adds an id under lock without the channel.
const defaultQueueSize = 256

// Pruner accumulates edge ids whose effective weight was observed at or
// below zero during retrieval and reaps them on the scheduler's
// prune-graph cadence. Safe for concurrent use: any retrieval goroutine
// may report an id, either via the channel from Queue() or directly via
// Enqueue.
type Pruner struct {
	edges   store.EdgeStore
	orphans store.OrphanStore

	mu          sync.Mutex
	pending     map[string]struct{}
	lastOrphans map[string]bool
	closed      bool

	queue  chan string
	stopCh chan struct{}
}

// New creates a Pruner and starts its background drain goroutine, which
// folds ids sent on Queue() into the pending set until Close is called.
func New(edges store.EdgeStore, orphans store.OrphanStore) *Pruner {
	p := &Pruner{
		edges:   edges,
		orphans: orphans,
		pending: make(map[string]struct{}),
		queue:   make(chan string, defaultQueueSize),
		stopCh:  make(chan struct{}),
	}
	go p.drain()
	return p
}

// Queue returns the send-only side of the pruner's MPSC intake: any
// reader may enqueue dead-edge ids. Retrieval's graph traversal sends
// here non-blockingly so a full queue never stalls a query.
func (p *Pruner) Queue() chan<- string { return p.queue }

func (p *Pruner) drain() {
	for {
		select {
		case id := <-p.queue:
			p.Enqueue(id)
		case <-p.stopCh:
			return
		}
	}
}

// Enqueue directly marks an edge id as possibly dead. Thread-safe.
func (p *Pruner) Enqueue(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.pending[id] = struct{}{}
}

// Pending reports how many edge ids are currently queued, for status
// output.
func (p *Pruner) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// FlushNow atomically deletes every queued edge, then rescans for orphaned
// chunks (chunks left with no incident edges by that deletion or any prior
// one). The refreshed orphan set is cached on the Pruner for OrphanSet to
// hand to the vector store's TTL sweep — flush itself deletes nothing but
// edges; a chunk only loses its vector once cleanup-vectors finds it both
// in this set and past its TTL.
func (p *Pruner) FlushNow(ctx context.Context) (*FlushResult, error) {
	p.mu.Lock()
	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	p.pending = make(map[string]struct{})
	p.mu.Unlock()

	deleted := 0
	if len(ids) > 0 {
		n, err := p.edges.DeleteEdges(ctx, ids)
		if err != nil {
			return nil, memerrors.TransientIO(memerrors.ErrCodeEdgeDeleteFailed, "failed to delete pruned edges", err)
		}
		deleted = n
	}

	orphanIDs, err := p.orphans.OrphanedChunks(ctx)
	if err != nil {
		return nil, memerrors.TransientIO(memerrors.ErrCodeOrphanScanFailed, "failed to scan orphaned chunks", err)
	}

	orphanSet := make(map[string]bool, len(orphanIDs))
	for _, id := range orphanIDs {
		orphanSet[id] = true
	}
	p.mu.Lock()
	p.lastOrphans = orphanSet
	p.mu.Unlock()

	return &FlushResult{EdgesDeleted: deleted, ChunksOrphaned: len(orphanIDs)}, nil
}

// OrphanSet returns the chunk ids found orphaned by the most recent
// FlushNow, for the scheduler's cleanup-vectors task to intersect against
// TTL staleness. Empty until the first flush has run.
func (p *Pruner) OrphanSet() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]bool, len(p.lastOrphans))
	for id := range p.lastOrphans {
		out[id] = true
	}
	return out
}

// Close stops the drain goroutine. Safe to call more than once.
func (p *Pruner) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.stopCh)
}
