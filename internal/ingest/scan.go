package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
)

// ParseFunc parses one transcript file into the turns of a single session.
// Transcript parsing is an external collaborator; Scanner only
// calls it and hands the result to Pipeline.IngestSession.
type ParseFunc func(ctx context.Context, path string) (sessionID, sessionSlug, leadAgentID string, turns []Turn, err error)

// Scanner wires a TranscriptWatcher to a Pipeline: it watches for new or
// changed transcript files, parses each with ParseFunc, and ingests the
// result. It also supports a one-shot directory walk for catching up on
// files that changed while nothing was watching (the scheduler's
// scan-projects maintenance task).
type Scanner struct {
	watcher  *TranscriptWatcher
	pipeline *Pipeline
	parse    ParseFunc
	log      *slog.Logger
}

// NewScanner builds a Scanner. log defaults to slog.Default() when nil.
func NewScanner(watcher *TranscriptWatcher, pipeline *Pipeline, parse ParseFunc, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{watcher: watcher, pipeline: pipeline, parse: parse, log: log}
}

// Run starts the watcher against root and ingests every batch of changed
// transcript files until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context, root string) error {
	go s.consume(ctx)
	return s.watcher.Start(ctx, root)
}

func (s *Scanner) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-s.watcher.Events():
			if !ok {
				return
			}
			for _, event := range batch {
				if event.Operation == OpDelete {
					continue
				}
				s.ingestPath(ctx, filepath.Join(s.watcher.RootPath(), event.Path))
			}
		case err, ok := <-s.watcher.Errors():
			if !ok {
				return
			}
			s.log.Warn("transcript watcher error", slog.String("error", err.Error()))
		}
	}
}

func (s *Scanner) ingestPath(ctx context.Context, path string) {
	sessionID, sessionSlug, leadAgentID, turns, err := s.parse(ctx, path)
	if err != nil {
		s.log.Warn("transcript parse failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if _, err := s.pipeline.IngestSession(ctx, sessionID, sessionSlug, leadAgentID, turns); err != nil {
		s.log.Warn("transcript ingest failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// ScanExisting walks root once and ingests every file matching extensions,
// regardless of modification time. Used by the scheduler's scan-projects
// task to recover transcripts written while the watcher was not running.
func (s *Scanner) ScanExisting(ctx context.Context, root string, extensions []string) error {
	extSet := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extSet[strings.ToLower(ext)] = true
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if len(extSet) > 0 && !extSet[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.ingestPath(ctx, path)
		return nil
	})
}
