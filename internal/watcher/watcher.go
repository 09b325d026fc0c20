// Package watcher keeps the knowledge base in sync with a directory of text files.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/nidhogg/modelhub/internal/rag"
	"go.uber.org/zap"
)

// DefaultExtensions are the file types ingested when none are configured.
var DefaultExtensions = []string{".txt", ".md"}

// Ingester is the subset of the retrieval engine the watcher drives.
type Ingester interface {
	IngestSource(ctx context.Context, text, source, kind string) ([]string, error)
	DeleteSource(ctx context.Context, source string) (int, error)
}

// Watcher ingests files under one directory. Each file is a source named by
// its base name; a changed file replaces all chunks of that source.
type Watcher struct {
	dir        string
	extensions map[string]bool
	ingester   Ingester
	logger     *zap.Logger
}

// New creates a Watcher for dir.
func New(dir string, extensions []string, ingester Ingester, logger *zap.Logger) *Watcher {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	return &Watcher{dir: dir, extensions: exts, ingester: ingester, logger: logger}
}

func (w *Watcher) watched(path string) bool {
	return w.extensions[strings.ToLower(filepath.Ext(path))]
}

// Scan ingests every matching file currently in the directory.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", w.dir, err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !w.watched(e.Name()) {
			continue
		}
		if err := w.Sync(ctx, filepath.Join(w.dir, e.Name())); err != nil {
			w.logger.Warn("ingest failed", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

// Sync replaces the indexed chunks of path with its current content. A
// missing or blank file only removes the old chunks.
func (w *Watcher) Sync(ctx context.Context, path string) error {
	source := filepath.Base(path)
	if _, err := w.ingester.DeleteSource(ctx, source); err != nil {
		return fmt.Errorf("remove %s: %w", source, err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	kind := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	ids, err := w.ingester.IngestSource(ctx, string(data), source, kind)
	if errors.Is(err, rag.ErrEmptyDocument) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ingest %s: %w", source, err)
	}
	w.logger.Info("file ingested", zap.String("source", source), zap.Int("chunks", len(ids)))
	return nil
}

// Remove drops all chunks of the file at path.
func (w *Watcher) Remove(ctx context.Context, path string) error {
	source := filepath.Base(path)
	n, err := w.ingester.DeleteSource(ctx, source)
	if err != nil {
		return fmt.Errorf("remove %s: %w", source, err)
	}
	w.logger.Info("file removed", zap.String("source", source), zap.Int("chunks", n))
	return nil
}

// Run scans the directory, then follows changes until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", w.dir, err)
	}
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	n, err := w.Scan(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("watching directory", zap.String("dir", w.dir), zap.Int("files", n))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.watched(ev.Name) {
				continue
			}
			w.handle(ctx, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	var err error
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		err = w.Sync(ctx, ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		err = w.Remove(ctx, ev.Name)
	default:
		return
	}
	if err != nil {
		w.logger.Warn("sync failed", zap.String("file", ev.Name), zap.Error(err))
	}
}
