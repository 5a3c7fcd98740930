package store

import (
	"container/heap"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	memerrors "github.com/contextvault/memcore/internal/errors"
	"github.com/contextvault/memcore/internal/numerics"
)

// idFieldSize is the fixed width, in bytes, reserved for a chunk id inside
// a vector record. Ids shorter than this are zero-padded; ids longer than
// this are rejected at Upsert.
const idFieldSize = 64

// FileStore is the append-only, single-writer vector store: fixed-size
// binary records (chunk id + f32[D] values, unit normalized) appended to
// a flat file, with an in-memory offset table rebuilt at load time.
// Upsert always appends; the in-memory map is updated to point at the
// newest offset, and Vacuum reclaims the garbage left behind by
// superseded writes.
type FileStore struct {
	mu         sync.RWMutex
	cfg        VectorStoreConfig
	file       *os.File
	lock       *flock.Flock
	recordSize int64
	offsets    map[string]int64 // chunk id -> record offset, latest write wins
	closed     bool
	log        *slog.Logger
}

var _ VectorStore = (*FileStore)(nil)

func vectorFilePath(dataDir string) string {
	return filepath.Join(dataDir, "vectors", "vectors.bin")
}

// NewFileStore opens (or creates) the vector file store at
// cfg.DataDir/vectors/vectors.bin and rebuilds its in-memory offset table
// by scanning every record.
func NewFileStore(cfg VectorStoreConfig, log *slog.Logger) (*FileStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Dimensions <= 0 {
		return nil, memerrors.InvalidArgument(memerrors.ErrCodeDimensionMismatch, "vector store dimensions must be positive", nil)
	}

	path := vectorFilePath(cfg.DataDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, memerrors.TransientIO(memerrors.ErrCodeDiskFull, "failed to create vector directory", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, memerrors.TransientIO(memerrors.ErrCodeLockContention, "failed to acquire vector store lock", err)
	}
	if !locked {
		return nil, memerrors.TransientIO(memerrors.ErrCodeLockContention, "vector store is locked by another process", nil)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return nil, memerrors.TransientIO(memerrors.ErrCodeFilePermission, "failed to open vector file", err)
	}

	s := &FileStore{
		cfg:        cfg,
		file:       f,
		lock:       lock,
		recordSize: idFieldSize + 8 + int64(cfg.Dimensions)*4,
		offsets:    make(map[string]int64),
		log:        log,
	}

	if err := s.rebuildIndex(); err != nil {
		_ = f.Close()
		_ = lock.Unlock()
		return nil, err
	}

	return s, nil
}

func (s *FileStore) rebuildIndex() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat vector file: %w", err)
	}

	buf := make([]byte, s.recordSize)
	var offset int64
	for offset < info.Size() {
		n, err := s.file.ReadAt(buf, offset)
		if err == io.EOF && n < len(buf) {
			s.log.Warn("vector_store_truncated_record", slog.Int64("offset", offset))
			break
		}
		if err != nil && err != io.EOF {
			return memerrors.StateCorruption(memerrors.ErrCodeVectorRowCorrupt, "failed to read vector record", err)
		}
		id := decodeID(buf[:idFieldSize])
		if id != "" {
			s.offsets[id] = offset
		}
		offset += s.recordSize
	}
	return nil
}

func encodeID(id string) ([idFieldSize]byte, error) {
	var out [idFieldSize]byte
	if len(id) > idFieldSize {
		return out, memerrors.InvalidArgument(memerrors.ErrCodeInvalidK,
			fmt.Sprintf("chunk id %q exceeds %d bytes", id, idFieldSize), nil)
	}
	copy(out[:], id)
	return out, nil
}

func decodeID(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func (s *FileStore) encodeRecord(chunkID string, values []float32, lastAccessed time.Time) ([]byte, error) {
	if len(values) != s.cfg.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(values)}
	}
	idBytes, err := encodeID(chunkID)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, s.recordSize)
	copy(buf[:idFieldSize], idBytes[:])
	binary.LittleEndian.PutUint64(buf[idFieldSize:idFieldSize+8], uint64(lastAccessed.UnixMilli()))
	normalized := numerics.Normalize(values)
	off := idFieldSize + 8
	for _, v := range normalized {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		off += 4
	}
	return buf, nil
}

func (s *FileStore) decodeRecord(buf []byte) (string, []float32, time.Time) {
	id := decodeID(buf[:idFieldSize])
	lastAccessedMs := binary.LittleEndian.Uint64(buf[idFieldSize : idFieldSize+8])
	values := make([]float32, s.cfg.Dimensions)
	off := idFieldSize + 8
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	return id, values, time.UnixMilli(int64(lastAccessedMs)).UTC()
}

// Upsert appends a new record for chunkID, unit-normalizing values, and
// repoints the in-memory index at the new offset.
func (s *FileStore) Upsert(ctx context.Context, chunkID string, values []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return memerrors.InternalError("vector store is closed", nil)
	}

	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat vector file: %w", err)
	}
	offset := info.Size()

	buf, err := s.encodeRecord(chunkID, values, time.Now())
	if err != nil {
		return err
	}
	if _, err := s.file.WriteAt(buf, offset); err != nil {
		return memerrors.TransientIO(memerrors.ErrCodeDiskFull, "failed to append vector record", err)
	}

	s.offsets[chunkID] = offset
	if s.cfg.MaxCount > 0 && len(s.offsets) > s.cfg.MaxCount {
		if _, err := s.evictOldestByCountLocked(s.cfg.MaxCount); err != nil {
			s.log.Warn("vector_store_fifo_evict_failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Get returns the current vector for a chunk, or nil if it has no vector.
func (s *FileStore) Get(ctx context.Context, chunkID string) (*Vector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offset, ok := s.offsets[chunkID]
	if !ok {
		return nil, nil
	}
	buf := make([]byte, s.recordSize)
	if _, err := s.file.ReadAt(buf, offset); err != nil {
		return nil, memerrors.StateCorruption(memerrors.ErrCodeVectorRowCorrupt, "failed to read vector record", err)
	}
	_, values, lastAccessed := s.decodeRecord(buf)
	return &Vector{ChunkID: chunkID, Values: values, LastAccessed: lastAccessed}, nil
}

// Touch best-effort bumps last_accessed for the given chunk ids. Failures
// are logged, never returned.
func (s *FileStore) Touch(ctx context.Context, chunkIDs []string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range chunkIDs {
		offset, ok := s.offsets[id]
		if !ok {
			continue
		}
		var tsBuf [8]byte
		binary.LittleEndian.PutUint64(tsBuf[:], uint64(at.UnixMilli()))
		if _, err := s.file.WriteAt(tsBuf[:], offset+idFieldSize); err != nil {
			s.log.Warn("vector_store_touch_failed", slog.String("chunk_id", id), slog.String("error", err.Error()))
		}
	}
}

// topKHeap is a fixed-capacity max-heap on distance, used to keep the k
// best (lowest-distance) candidates during a linear scan without sorting
// the full candidate set.
type topKHeap struct {
	items []VectorResult
	k     int
}

func (h *topKHeap) Len() int            { return len(h.items) }
func (h *topKHeap) Less(i, j int) bool  { return h.items[i].Distance > h.items[j].Distance }
func (h *topKHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topKHeap) Push(x any)          { h.items = append(h.items, x.(VectorResult)) }
func (h *topKHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

func (h *topKHeap) offer(r VectorResult) {
	if h.Len() < h.k {
		heap.Push(h, r)
		return
	}
	if h.Len() > 0 && r.Distance < h.items[0].Distance {
		heap.Pop(h)
		heap.Push(h, r)
	}
}

func (h *topKHeap) sorted() []VectorResult {
	out := make([]VectorResult, h.Len())
	// Popping the max-heap yields the largest Distance first; filling from
	// the back leaves out in ascending distance = best first. Drains h.
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(VectorResult)
	}
	return out
}

// Search performs a linear scan over all stored vectors and returns the k
// nearest to query by angular distance, converted to score = 1 - distance.
func (s *FileStore) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	return s.SearchByProject(ctx, query, k, nil)
}

// SearchByProject behaves like Search but, when chunkIDFilter is non-nil,
// only considers chunk ids present (and true) in the filter.
func (s *FileStore) SearchByProject(ctx context.Context, query []float32, k int, chunkIDFilter map[string]bool) ([]VectorResult, error) {
	if k <= 0 {
		return nil, memerrors.InvalidArgument(memerrors.ErrCodeInvalidK, "k must be positive", nil)
	}
	if len(query) != s.cfg.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(query)}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	h := &topKHeap{k: k}
	buf := make([]byte, s.recordSize)
	for id, offset := range s.offsets {
		if chunkIDFilter != nil && !chunkIDFilter[id] {
			continue
		}
		if _, err := s.file.ReadAt(buf, offset); err != nil {
			s.log.Warn("vector_store_scan_read_failed", slog.String("chunk_id", id), slog.String("error", err.Error()))
			continue
		}
		_, values, _ := s.decodeRecord(buf)
		dist, err := numerics.AngularDistance(query, values)
		if err != nil {
			continue
		}
		score := float32(1 - dist)
		if score < 0 {
			score = 0
		}
		h.offer(VectorResult{ChunkID: id, Distance: dist, Score: score})
	}

	return h.sorted(), nil
}

// Delete removes a chunk's vector from the in-memory index. The space in
// the backing file is reclaimed on the next Vacuum.
func (s *FileStore) Delete(ctx context.Context, chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.offsets, chunkID)
	return nil
}

// CleanupExpired removes vectors that are both orphaned (their chunk id is
// present in orphanChunkIDs, meaning the chunk itself has no incident edges
// left) and stale (last_accessed older than ttlDays). A vector that is
// merely orphaned but recently touched, or merely stale but still attached
// to the graph, survives: eviction requires both conditions so a freshly
// written chunk awaiting its first edge is never swept out from under it.
// Returns the count removed from the in-memory index.
func (s *FileStore) CleanupExpired(ctx context.Context, ttlDays int, orphanChunkIDs map[string]bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -ttlDays)
	buf := make([]byte, s.recordSize)
	removed := 0
	for id, offset := range s.offsets {
		if !orphanChunkIDs[id] {
			continue
		}
		if _, err := s.file.ReadAt(buf, offset); err != nil {
			continue
		}
		_, _, lastAccessed := s.decodeRecord(buf)
		if lastAccessed.Before(cutoff) {
			delete(s.offsets, id)
			removed++
		}
	}
	return removed, nil
}

// EvictOldestByCount evicts the entries with the oldest last_accessed
// (oldest-appended first among equal timestamps) until the index holds at
// most maxCount entries.
func (s *FileStore) EvictOldestByCount(ctx context.Context, maxCount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictOldestByCountLocked(maxCount)
}

func (s *FileStore) evictOldestByCountLocked(maxCount int) (int, error) {
	if maxCount <= 0 || len(s.offsets) <= maxCount {
		return 0, nil
	}
	type idAccess struct {
		id           string
		lastAccessed int64
		offset       int64
	}
	buf := make([]byte, s.recordSize)
	all := make([]idAccess, 0, len(s.offsets))
	for id, off := range s.offsets {
		if _, err := s.file.ReadAt(buf, off); err != nil {
			continue
		}
		_, _, lastAccessed := s.decodeRecord(buf)
		all = append(all, idAccess{id, lastAccessed.UnixMilli(), off})
	}
	// oldest last_accessed first; equal timestamps by file offset.
	older := func(a, b idAccess) bool {
		return a.lastAccessed < b.lastAccessed || (a.lastAccessed == b.lastAccessed && a.offset < b.offset)
	}
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && older(all[j], all[j-1]); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	toRemove := len(all) - maxCount
	for i := 0; i < toRemove; i++ {
		delete(s.offsets, all[i].id)
	}
	return toRemove, nil
}

// Vacuum rewrites the backing file to contain only the records referenced
// by the current in-memory index, reclaiming space left by superseded
// upserts and deletions. The rewrite happens into a temp file and is
// published via atomic rename.
func (s *FileStore) Vacuum(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := vectorFilePath(s.cfg.DataDir)
	tmpPath := path + ".vacuum.tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return memerrors.TransientIO(memerrors.ErrCodeDiskFull, "failed to create vacuum temp file", err)
	}

	newOffsets := make(map[string]int64, len(s.offsets))
	buf := make([]byte, s.recordSize)
	var writeOffset int64
	for id, offset := range s.offsets {
		if _, err := s.file.ReadAt(buf, offset); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
			return memerrors.StateCorruption(memerrors.ErrCodeVectorRowCorrupt, "failed to read record during vacuum", err)
		}
		if _, err := tmp.WriteAt(buf, writeOffset); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
			return memerrors.TransientIO(memerrors.ErrCodeDiskFull, "failed to write during vacuum", err)
		}
		newOffsets[id] = writeOffset
		writeOffset += s.recordSize
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return memerrors.TransientIO(memerrors.ErrCodeDiskFull, "failed to sync vacuum temp file", err)
	}
	if err := s.file.Close(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close vector file before vacuum rename: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = tmp.Close()
		return memerrors.TransientIO(memerrors.ErrCodeDiskFull, "failed to publish vacuumed vector file", err)
	}

	s.file = tmp
	s.offsets = newOffsets
	return nil
}

// Count returns the number of live entries in the in-memory index.
func (s *FileStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.offsets)
}

// Close releases the file handle and the single-writer advisory lock.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.file.Close()
	if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}
