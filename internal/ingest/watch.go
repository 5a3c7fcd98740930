package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	memerrors "github.com/contextvault/memcore/internal/errors"
)

// Operation classifies a transcript directory file system event.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change to a file under the transcript directory.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// TranscriptWatcher watches a session-transcript directory tree with
// fsnotify and emits debounced, extension-filtered batches of FileEvent.
// Unlike a source-tree watcher it has no gitignore concept to honor: a
// transcript directory holds session logs, not project files, so the only
// filtering that applies is by file extension and dotfile/dotdir exclusion.
type TranscriptWatcher struct {
	fsWatcher      *fsnotify.Watcher
	debouncer      *debouncer
	extensions     map[string]bool
	events         chan []FileEvent
	errors         chan error
	stopCh         chan struct{}
	rootPath       string
	mu             sync.RWMutex
	stopped        bool
	droppedBatches atomic.Uint64
}

// NewTranscriptWatcher builds a watcher that only reports files whose
// extension (e.g. ".jsonl") appears in extensions. An empty extensions set
// reports every file.
func NewTranscriptWatcher(extensions []string, debounceWindow time.Duration) (*TranscriptWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, memerrors.DependencyUnavailable(memerrors.ErrCodeFilePermission, "fsnotify watcher unavailable", err)
	}
	if debounceWindow <= 0 {
		debounceWindow = 200 * time.Millisecond
	}
	extSet := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extSet[strings.ToLower(ext)] = true
	}
	return &TranscriptWatcher{
		fsWatcher:  fsw,
		debouncer:  newDebouncer(debounceWindow),
		extensions: extSet,
		events:     make(chan []FileEvent, 100),
		errors:     make(chan error, 10),
		stopCh:     make(chan struct{}),
	}, nil
}

// Start begins watching root recursively. It blocks until ctx is cancelled
// or Stop is called.
func (w *TranscriptWatcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve transcript dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("ensure transcript dir exists: %w", err)
	}
	w.rootPath = abs

	if err := w.addRecursive(abs); err != nil {
		return fmt.Errorf("add transcript dirs to watcher: %w", err)
	}

	go w.forwardDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *TranscriptWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *TranscriptWatcher) handleEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.rootPath, event.Name)
	if err != nil {
		relPath = event.Name
	}

	isDir := false
	if info, statErr := os.Stat(event.Name); statErr == nil {
		isDir = info.IsDir()
	}

	if w.shouldIgnore(relPath, isDir) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			_ = w.fsWatcher.Add(event.Name)
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	if isDir {
		return
	}

	w.debouncer.add(FileEvent{Path: relPath, Operation: op, Timestamp: time.Now()})
}

func (w *TranscriptWatcher) shouldIgnore(relPath string, isDir bool) bool {
	if relPath == "." || relPath == "" {
		return true
	}
	base := filepath.Base(relPath)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if isDir || len(w.extensions) == 0 {
		return false
	}
	return !w.extensions[strings.ToLower(filepath.Ext(relPath))]
}

func (w *TranscriptWatcher) forwardDebounced(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.output():
			if !ok {
				return
			}
			if len(batch) == 0 {
				continue
			}
			w.emitEvents(batch)
		}
	}
}

func (w *TranscriptWatcher) emitEvents(events []FileEvent) {
	w.mu.RLock()
	stopped := w.stopped
	w.mu.RUnlock()
	if stopped {
		return
	}
	select {
	case w.events <- events:
	default:
		count := w.droppedBatches.Add(1)
		slog.Warn("transcript watcher event buffer full, dropping batch",
			slog.Int("batch_size", len(events)),
			slog.Uint64("total_dropped_batches", count))
	}
}

func (w *TranscriptWatcher) emitError(err error) {
	w.mu.RLock()
	stopped := w.stopped
	w.mu.RUnlock()
	if stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops the watcher and releases resources. Safe to call multiple times.
func (w *TranscriptWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.stop()
	_ = w.fsWatcher.Close()
	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of debounced event batches.
func (w *TranscriptWatcher) Events() <-chan []FileEvent { return w.events }

// Errors returns the channel of non-fatal watcher errors.
func (w *TranscriptWatcher) Errors() <-chan error { return w.errors }

// RootPath returns the absolute directory being watched.
func (w *TranscriptWatcher) RootPath() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.rootPath
}
