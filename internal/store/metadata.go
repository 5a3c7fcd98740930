package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // pure Go SQLite driver (no CGO)

	memerrors "github.com/contextvault/memcore/internal/errors"
)

// chunkCacheSize bounds the in-memory LRU cache of decoded Chunk rows kept
// in front of the metadata store, cutting repeated disk reads on
// retrieval's hot GetChunk path.
const chunkCacheSize = 4096

// SQLiteMetadataStore implements MetadataStore over modernc.org/sqlite.
// It runs a single connection (the store is single-writer per its degrade rule) and
// serializes mutations through transactions so retrieval always observes a
// consistent snapshot at transaction granularity.
type SQLiteMetadataStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
	log    *slog.Logger
	cache  *lru.Cache[string, *Chunk]
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// NewSQLiteMetadataStore opens (or creates) the relational metadata store
// at path. An empty path opens an in-memory database, used by tests.
func NewSQLiteMetadataStore(path string, log *slog.Logger) (*SQLiteMetadataStore, error) {
	if log == nil {
		log = slog.Default()
	}

	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, memerrors.TransientIO(memerrors.ErrCodeDiskFull,
				fmt.Sprintf("failed to create data directory %s", dir), err)
		}
		if err := validateMetadataIntegrity(path, log); err != nil {
			log.Warn("metadata_store_reset", slog.String("path", path), slog.String("error", err.Error()))
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, memerrors.TransientIO(memerrors.ErrCodeLockContention, "failed to open memory.db", err)
	}

	// Single writer: avoids SQLITE_BUSY under concurrent ingest/retrieval.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, memerrors.TransientIO(memerrors.ErrCodeLockContention, "failed to set pragma", err)
		}
	}

	cache, err := lru.New[string, *Chunk](chunkCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create chunk cache: %w", err)
	}

	s := &SQLiteMetadataStore{db: db, path: path, log: log, cache: cache}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, memerrors.StateCorruption(memerrors.ErrCodeStateCorrupt, "failed to initialize schema", err)
	}
	return s, nil
}

func validateMetadataIntegrity(path string, log *slog.Logger) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

const metadataSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS chunks (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL,
	session_slug     TEXT NOT NULL,
	agent_id         TEXT NOT NULL,
	turn_indices     TEXT NOT NULL,
	start_time       INTEGER NOT NULL,
	end_time         INTEGER NOT NULL,
	content          TEXT NOT NULL,
	approx_tokens    INTEGER NOT NULL,
	code_block_count INTEGER NOT NULL,
	tool_use_count   INTEGER NOT NULL,
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks(session_id);

CREATE TABLE IF NOT EXISTS edges (
	id               TEXT PRIMARY KEY,
	source_chunk_id  TEXT NOT NULL,
	target_chunk_id  TEXT NOT NULL,
	edge_type        TEXT NOT NULL,
	reference_type   TEXT,
	initial_weight   REAL NOT NULL,
	created_at       INTEGER NOT NULL,
	vector_clock     TEXT NOT NULL,
	link_count       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_chunk_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_chunk_id);

CREATE TABLE IF NOT EXISTS clusters (
	id              TEXT PRIMARY KEY,
	name            TEXT,
	description     TEXT,
	centroid        TEXT NOT NULL,
	member_ids      TEXT NOT NULL,
	exemplar_ids    TEXT NOT NULL,
	membership_hash TEXT NOT NULL,
	refreshed_at    INTEGER
);

CREATE TABLE IF NOT EXISTS cluster_members (
	chunk_id   TEXT NOT NULL,
	cluster_id TEXT NOT NULL,
	distance   REAL NOT NULL,
	PRIMARY KEY (chunk_id, cluster_id)
);
CREATE INDEX IF NOT EXISTS idx_cluster_members_cluster ON cluster_members(cluster_id);

CREATE TABLE IF NOT EXISTS vector_clocks (
	agent_id TEXT NOT NULL,
	scope_id TEXT NOT NULL,
	counter  INTEGER NOT NULL,
	PRIMARY KEY (scope_id, agent_id)
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

func (s *SQLiteMetadataStore) initSchema() error {
	_, err := s.db.Exec(metadataSchema)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func encodeClock(c VectorClock) (string, error) {
	if c == nil {
		c = VectorClock{}
	}
	b, err := json.Marshal(c)
	return string(b), err
}

func decodeClock(raw string) (VectorClock, error) {
	var c VectorClock
	if raw == "" {
		return VectorClock{}, nil
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, err
	}
	return c, nil
}

func encodeInts(v []int) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func decodeInts(raw string) ([]int, error) {
	var v []int
	if raw == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func encodeStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func decodeStrings(raw string) ([]string, error) {
	var v []string
	if raw == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func encodeFloats(v []float32) (string, error) {
	if v == nil {
		v = []float32{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func decodeFloats(raw string) ([]float32, error) {
	var v []float32
	if raw == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// InsertChunk inserts a single chunk.
func (s *SQLiteMetadataStore) InsertChunk(ctx context.Context, c *Chunk) error {
	return s.BulkInsertChunks(ctx, []*Chunk{c})
}

// BulkInsertChunks inserts all chunks in a single transaction.
func (s *SQLiteMetadataStore) BulkInsertChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerrors.TransientIO(memerrors.ErrCodeLockContention, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
		(id, session_id, session_slug, agent_id, turn_indices, start_time, end_time,
		 content, approx_tokens, code_block_count, tool_use_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		turns, err := encodeInts(c.TurnIndices)
		if err != nil {
			return fmt.Errorf("encode turn_indices for %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.SessionID, c.SessionSlug, c.AgentID, turns,
			c.StartTime.UnixMilli(), c.EndTime.UnixMilli(), c.Content, c.ApproxTokens,
			c.CodeBlockCount, c.ToolUseCount, c.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for _, c := range chunks {
		s.cache.Add(c.ID, c)
	}
	return nil
}

// GetChunk fetches a chunk by id. A missing chunk returns (nil, nil)
// rather than a NotFound error.
func (s *SQLiteMetadataStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	if c, ok := s.cache.Get(id); ok {
		return c, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, session_slug, agent_id, turn_indices, start_time, end_time,
		       content, approx_tokens, code_block_count, tool_use_count, created_at
		FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %s: %w", id, err)
	}
	s.cache.Add(id, c)
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var turns string
	var start, end, created int64
	if err := row.Scan(&c.ID, &c.SessionID, &c.SessionSlug, &c.AgentID, &turns, &start, &end,
		&c.Content, &c.ApproxTokens, &c.CodeBlockCount, &c.ToolUseCount, &created); err != nil {
		return nil, err
	}
	ints, err := decodeInts(turns)
	if err != nil {
		return nil, err
	}
	c.TurnIndices = ints
	c.StartTime = time.UnixMilli(start).UTC()
	c.EndTime = time.UnixMilli(end).UTC()
	c.CreatedAt = time.UnixMilli(created).UTC()
	return &c, nil
}

// ChunksBySession returns all chunks belonging to a session, ordered by
// start time.
func (s *SQLiteMetadataStore) ChunksBySession(ctx context.Context, sessionID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, session_slug, agent_id, turn_indices, start_time, end_time,
		       content, approx_tokens, code_block_count, tool_use_count, created_at
		FROM chunks WHERE session_id = ? ORDER BY start_time ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query chunks by session: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountChunks returns the total number of chunks.
func (s *SQLiteMetadataStore) CountChunks(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// AllChunkIDs returns every chunk id known to the store, used by the
// recluster pipeline to enumerate the full vector set.
func (s *SQLiteMetadataStore) AllChunkIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query chunk ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteChunk removes a chunk and cascades to its incident edges and
// cluster assignments. Callers are responsible for evicting the
// corresponding vector from the vector store.
func (s *SQLiteMetadataStore) DeleteChunk(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerrors.TransientIO(memerrors.ErrCodeLockContention, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE source_chunk_id = ? OR target_chunk_id = ?`, id, id); err != nil {
		return fmt.Errorf("cascade delete edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cluster_members WHERE chunk_id = ?`, id); err != nil {
		return fmt.Errorf("cascade delete cluster_members: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chunk: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerrors.NotFound(fmt.Sprintf("chunk %s not found", id))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.cache.Remove(id)
	return nil
}

// CreateEdge inserts a new edge unconditionally (used for edges known to
// be new, e.g. structural edges created at ingest time).
func (s *SQLiteMetadataStore) CreateEdge(ctx context.Context, e *Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertEdge(ctx, s.db, e)
}

func (s *SQLiteMetadataStore) insertEdge(ctx context.Context, execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, e *Edge) error {
	clock, err := encodeClock(e.VectorClock)
	if err != nil {
		return fmt.Errorf("encode vector clock: %w", err)
	}
	var refType any
	if e.ReferenceType != nil {
		refType = string(*e.ReferenceType)
	}
	_, err = execer.ExecContext(ctx, `
		INSERT INTO edges (id, source_chunk_id, target_chunk_id, edge_type, reference_type,
		                    initial_weight, created_at, vector_clock, link_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceChunkID, e.TargetChunkID, string(e.EdgeType), refType,
		e.InitialWeight, e.CreatedAt.UnixMilli(), clock, e.LinkCount)
	if err != nil {
		return fmt.Errorf("insert edge: %w", err)
	}
	return nil
}

// CreateOrBoostEdge implements edge boosting: a repeat
// edge for the same (source, target, type, reference_type) tuple
// increments link_count by exactly one, merges vector clocks, and grows
// initial_weight by 0.1*new_weight, rather than inserting a duplicate row.
func (s *SQLiteMetadataStore) CreateOrBoostEdge(ctx context.Context, e *Edge) (*Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, memerrors.TransientIO(memerrors.ErrCodeLockContention, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var refType any
	if e.ReferenceType != nil {
		refType = string(*e.ReferenceType)
	}

	query := `SELECT id, initial_weight, vector_clock, link_count FROM edges
		WHERE source_chunk_id = ? AND target_chunk_id = ? AND edge_type = ?
		AND reference_type IS ?`
	row := tx.QueryRowContext(ctx, query, e.SourceChunkID, e.TargetChunkID, string(e.EdgeType), refType)

	var existingID string
	var existingWeight float64
	var existingClockRaw string
	var linkCount int
	err = row.Scan(&existingID, &existingWeight, &existingClockRaw, &linkCount)
	switch {
	case err == sql.ErrNoRows:
		if e.ID == "" {
			return nil, memerrors.InvalidArgument(memerrors.ErrCodeInvalidK, "edge id is required", nil)
		}
		if e.LinkCount == 0 {
			e.LinkCount = 1
		}
		if err := s.insertEdge(ctx, tx, e); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return e, nil
	case err != nil:
		return nil, fmt.Errorf("lookup existing edge: %w", err)
	}

	existingClock, err := decodeClock(existingClockRaw)
	if err != nil {
		return nil, memerrors.StateCorruption(memerrors.ErrCodeStateCorrupt, "malformed edge vector clock", err)
	}
	mergedClock := existingClock.Merge(e.VectorClock)
	newWeight := existingWeight + 0.1*e.InitialWeight
	newLinkCount := linkCount + 1

	encodedClock, err := encodeClock(mergedClock)
	if err != nil {
		return nil, fmt.Errorf("encode merged clock: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE edges SET initial_weight = ?, vector_clock = ?, link_count = ?
		WHERE id = ?`, newWeight, encodedClock, newLinkCount, existingID); err != nil {
		return nil, fmt.Errorf("update boosted edge: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &Edge{
		ID: existingID, SourceChunkID: e.SourceChunkID, TargetChunkID: e.TargetChunkID,
		EdgeType: e.EdgeType, ReferenceType: e.ReferenceType, InitialWeight: newWeight,
		VectorClock: mergedClock, LinkCount: newLinkCount,
	}, nil
}

func scanEdge(row rowScanner) (*Edge, error) {
	var e Edge
	var edgeType string
	var refType sql.NullString
	var created int64
	var clockRaw string
	if err := row.Scan(&e.ID, &e.SourceChunkID, &e.TargetChunkID, &edgeType, &refType,
		&e.InitialWeight, &created, &clockRaw, &e.LinkCount); err != nil {
		return nil, err
	}
	e.EdgeType = EdgeType(edgeType)
	if refType.Valid {
		rt := ReferenceType(refType.String)
		e.ReferenceType = &rt
	}
	e.CreatedAt = time.UnixMilli(created).UTC()
	clock, err := decodeClock(clockRaw)
	if err != nil {
		return nil, err
	}
	e.VectorClock = clock
	return &e, nil
}

const edgeColumns = `id, source_chunk_id, target_chunk_id, edge_type, reference_type,
	                    initial_weight, created_at, vector_clock, link_count`

// OutgoingEdges returns all edges whose source is chunkID.
func (s *SQLiteMetadataStore) OutgoingEdges(ctx context.Context, chunkID string) ([]*Edge, error) {
	return s.edgesWhere(ctx, `source_chunk_id = ?`, chunkID)
}

// IncomingEdges returns all edges whose target is chunkID.
func (s *SQLiteMetadataStore) IncomingEdges(ctx context.Context, chunkID string) ([]*Edge, error) {
	return s.edgesWhere(ctx, `target_chunk_id = ?`, chunkID)
}

func (s *SQLiteMetadataStore) edgesWhere(ctx context.Context, where string, arg string) ([]*Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+edgeColumns+` FROM edges WHERE `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEdge removes a single edge by id.
func (s *SQLiteMetadataStore) DeleteEdge(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM edges WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerrors.NotFound(fmt.Sprintf("edge %s not found", id))
	}
	return nil
}

// DeleteEdgesForChunk removes all edges incident to chunkID.
func (s *SQLiteMetadataStore) DeleteEdgesForChunk(ctx context.Context, chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM edges WHERE source_chunk_id = ? OR target_chunk_id = ?`, chunkID, chunkID)
	if err != nil {
		return fmt.Errorf("delete edges for chunk: %w", err)
	}
	return nil
}

// DeleteEdges removes a batch of edges by id, used by the pruner's
// flush_now. Returns the number actually deleted.
func (s *SQLiteMetadataStore) DeleteEdges(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, memerrors.TransientIO(memerrors.ErrCodeLockContention, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM edges WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("prepare delete: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	total := 0
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("delete edge %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			total += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

// UpsertCluster inserts or replaces a cluster row.
func (s *SQLiteMetadataStore) UpsertCluster(ctx context.Context, c *Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertClusterLocked(ctx, s.db, c)
}

func (s *SQLiteMetadataStore) upsertClusterLocked(ctx context.Context, execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, c *Cluster) error {
	centroid, err := encodeFloats(c.Centroid)
	if err != nil {
		return fmt.Errorf("encode centroid: %w", err)
	}
	members, err := encodeStrings(c.MemberIDs)
	if err != nil {
		return fmt.Errorf("encode member ids: %w", err)
	}
	exemplars, err := encodeStrings(c.ExemplarIDs)
	if err != nil {
		return fmt.Errorf("encode exemplar ids: %w", err)
	}
	var name, desc any
	if c.Name != nil {
		name = *c.Name
	}
	if c.Description != nil {
		desc = *c.Description
	}
	var refreshedAt any
	if c.RefreshedAt != nil {
		refreshedAt = c.RefreshedAt.UnixMilli()
	}
	_, err = execer.ExecContext(ctx, `
		INSERT OR REPLACE INTO clusters
		(id, name, description, centroid, member_ids, exemplar_ids, membership_hash, refreshed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, name, desc, centroid, members, exemplars, c.MembershipHash, refreshedAt)
	if err != nil {
		return fmt.Errorf("upsert cluster: %w", err)
	}
	return nil
}

func scanCluster(row rowScanner) (*Cluster, error) {
	var c Cluster
	var name, desc sql.NullString
	var refreshedAt sql.NullInt64
	var centroid, members, exemplars string
	if err := row.Scan(&c.ID, &name, &desc, &centroid, &members, &exemplars, &c.MembershipHash, &refreshedAt); err != nil {
		return nil, err
	}
	if name.Valid {
		c.Name = &name.String
	}
	if desc.Valid {
		c.Description = &desc.String
	}
	if refreshedAt.Valid {
		t := time.UnixMilli(refreshedAt.Int64).UTC()
		c.RefreshedAt = &t
	}
	var err error
	if c.Centroid, err = decodeFloats(centroid); err != nil {
		return nil, err
	}
	if c.MemberIDs, err = decodeStrings(members); err != nil {
		return nil, err
	}
	if c.ExemplarIDs, err = decodeStrings(exemplars); err != nil {
		return nil, err
	}
	return &c, nil
}

const clusterColumns = `id, name, description, centroid, member_ids, exemplar_ids, membership_hash, refreshed_at`

// GetCluster fetches a cluster by id, or (nil, nil) if not found.
func (s *SQLiteMetadataStore) GetCluster(ctx context.Context, id string) (*Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT `+clusterColumns+` FROM clusters WHERE id = ?`, id)
	c, err := scanCluster(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cluster: %w", err)
	}
	return c, nil
}

// ListClusters returns every cluster.
func (s *SQLiteMetadataStore) ListClusters(ctx context.Context) ([]*Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+clusterColumns+` FROM clusters`)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCluster removes a cluster and its assignments.
func (s *SQLiteMetadataStore) DeleteCluster(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerrors.TransientIO(memerrors.ErrCodeLockContention, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cluster_members WHERE cluster_id = ?`, id); err != nil {
		return fmt.Errorf("delete cluster members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM clusters WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete cluster: %w", err)
	}
	return tx.Commit()
}

// AssignChunk records (or updates) a chunk's soft membership in a cluster.
func (s *SQLiteMetadataStore) AssignChunk(ctx context.Context, a ClusterAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cluster_members (chunk_id, cluster_id, distance) VALUES (?, ?, ?)`,
		a.ChunkID, a.ClusterID, a.Distance)
	if err != nil {
		return fmt.Errorf("assign chunk to cluster: %w", err)
	}
	return nil
}

// ClearAssignments removes all member assignments for a cluster.
func (s *SQLiteMetadataStore) ClearAssignments(ctx context.Context, clusterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM cluster_members WHERE cluster_id = ?`, clusterID)
	if err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	return nil
}

// ClusterMembers returns all assignments for a cluster.
func (s *SQLiteMetadataStore) ClusterMembers(ctx context.Context, clusterID string) ([]ClusterAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, cluster_id, distance FROM cluster_members WHERE cluster_id = ?`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("cluster members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ClusterAssignment
	for rows.Next() {
		var a ClusterAssignment
		if err := rows.Scan(&a.ChunkID, &a.ClusterID, &a.Distance); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AssignmentsForChunk returns every cluster a chunk belongs to.
func (s *SQLiteMetadataStore) AssignmentsForChunk(ctx context.Context, chunkID string) ([]ClusterAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, cluster_id, distance FROM cluster_members WHERE chunk_id = ?`, chunkID)
	if err != nil {
		return nil, fmt.Errorf("assignments for chunk: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ClusterAssignment
	for rows.Next() {
		var a ClusterAssignment
		if err := rows.Scan(&a.ChunkID, &a.ClusterID, &a.Distance); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReplaceAll atomically swaps the entire cluster set and membership table,
// used by the recluster pipeline to publish a new clustering
// without readers ever observing a partial state.
func (s *SQLiteMetadataStore) ReplaceAll(ctx context.Context, clusters []*Cluster, assignments []ClusterAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerrors.TransientIO(memerrors.ErrCodeLockContention, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cluster_members`); err != nil {
		return fmt.Errorf("clear cluster_members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM clusters`); err != nil {
		return fmt.Errorf("clear clusters: %w", err)
	}

	for _, c := range clusters {
		if err := s.upsertClusterLocked(ctx, tx, c); err != nil {
			return err
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cluster_members (chunk_id, cluster_id, distance) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare member insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, a := range assignments {
		if _, err := stmt.ExecContext(ctx, a.ChunkID, a.ClusterID, a.Distance); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}

	return tx.Commit()
}

// OrphanedChunks returns chunk ids with no incident edge in either
// direction, used by the pruner to mark candidates for TTL cleanup.
func (s *SQLiteMetadataStore) OrphanedChunks(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id FROM chunks c
		WHERE NOT EXISTS (SELECT 1 FROM edges e WHERE e.source_chunk_id = c.id OR e.target_chunk_id = c.id)`)
	if err != nil {
		return nil, fmt.Errorf("orphaned chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan orphan id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// clampUnit keeps a probability/score strictly within [0,1], guarding
// against float accumulation drift in decay/boost arithmetic.
func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
