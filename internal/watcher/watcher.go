// Package watcher syncs mirrors when their source libraries change on disk.
//
// Every path of every mirrored source library is watched recursively. File
// writes are reported once the file stops changing, changes the classifier
// would not mirror are dropped, and the rest are debounced per library so a
// burst of copies results in one sync of that library's mirrors.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/listenupapp/listenup-mirrors/internal/classifier"
	"github.com/listenupapp/listenup-mirrors/internal/mirror"
)

// Syncer is the part of the mirror engine the watcher drives.
type Syncer interface {
	SyncMirrorsForLibrary(ctx context.Context, libraryID string) (*mirror.BatchResult, error)
	WatchedSources(ctx context.Context) (map[string][]string, error)
	Rules() *classifier.Compiled
}

// Watcher monitors mirrored source libraries.
type Watcher struct {
	syncer  Syncer
	backend *backend
	logger  *slog.Logger
	opts    Options

	refresh  chan struct{}
	triggers chan string
	finished chan string
	stopped  chan struct{}
	wg       sync.WaitGroup

	// Owned by the Run goroutine.
	roots   map[string]string // watched root -> library ID
	rules   *classifier.Compiled
	timers  map[string]*time.Timer
	running map[string]bool
	dirty   map[string]bool
}

// New creates a watcher. Nothing is watched until Run starts.
func New(syncer Syncer, logger *slog.Logger, opts Options) (*Watcher, error) {
	opts.setDefaults()

	b, err := newBackend(logger, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}

	return &Watcher{
		syncer:   syncer,
		backend:  b,
		logger:   logger,
		opts:     opts,
		refresh:  make(chan struct{}, 1),
		triggers: make(chan string),
		finished: make(chan string),
		stopped:  make(chan struct{}),
		roots:    make(map[string]string),
		timers:   make(map[string]*time.Timer),
		running:  make(map[string]bool),
		dirty:    make(map[string]bool),
	}, nil
}

// Refresh asks Run to re-read the watched source paths and classifier
// settings. It never blocks.
func (w *Watcher) Refresh() {
	select {
	case w.refresh <- struct{}{}:
	default:
	}
}

// Run watches until ctx is canceled, then releases every resource and waits
// for in-flight syncs. It must be called at most once.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.shutdown()

	w.refreshRoots(ctx)
	w.logger.Info("source watcher started", "roots", len(w.roots))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("source watcher stopping")
			return nil

		case <-w.refresh:
			w.refreshRoots(ctx)

		case ev := <-w.backend.Events():
			w.handle(ev)

		case err := <-w.backend.Errors():
			w.logger.Warn("file watcher error", "error", err)

		case libraryID := <-w.triggers:
			delete(w.timers, libraryID)
			w.startSync(ctx, libraryID)

		case libraryID := <-w.finished:
			delete(w.running, libraryID)
			if w.dirty[libraryID] {
				delete(w.dirty, libraryID)
				w.startSync(ctx, libraryID)
			}
		}
	}
}

func (w *Watcher) shutdown() {
	close(w.stopped)
	for _, t := range w.timers {
		t.Stop()
	}
	if err := w.backend.Close(); err != nil {
		w.logger.Warn("failed to close file watcher", "error", err)
	}
	w.wg.Wait()
}

// refreshRoots reconciles the watched roots with the mirrored source paths.
// Roots that fail to watch are retried on the next refresh.
func (w *Watcher) refreshRoots(ctx context.Context) {
	sources, err := w.syncer.WatchedSources(ctx)
	if err != nil {
		w.logger.Warn("failed to list mirrored sources", "error", err)
		return
	}
	w.rules = w.syncer.Rules()

	desired := make(map[string]string)
	for libraryID, paths := range sources {
		for _, p := range paths {
			desired[filepath.Clean(p)] = libraryID
		}
	}

	for root := range w.roots {
		if _, keep := desired[root]; !keep {
			w.backend.Unwatch(root)
			delete(w.roots, root)
			w.logger.Info("stopped watching source path", "path", root)
		}
	}
	for root, libraryID := range desired {
		if _, have := w.roots[root]; have {
			w.roots[root] = libraryID
			continue
		}
		if err := w.backend.Watch(root); err != nil {
			w.logger.Warn("failed to watch source path", "path", root, "library_id", libraryID, "error", err)
			continue
		}
		w.roots[root] = libraryID
		w.logger.Info("watching source path", "path", root, "library_id", libraryID)
	}
}

// handle maps an event to its library and (re)arms that library's debounce timer.
func (w *Watcher) handle(ev Event) {
	libraryID, rel, ok := w.libraryFor(ev.Path)
	if !ok {
		return
	}
	if rel != "." && w.rules != nil && !w.rules.ShouldHardlink(rel) {
		w.logger.Debug("ignoring change to unmirrored file", "path", ev.Path)
		return
	}

	w.logger.Debug("source change", "type", ev.Type, "path", ev.Path, "library_id", libraryID)

	if t, ok := w.timers[libraryID]; ok {
		t.Reset(w.opts.Debounce)
		return
	}
	w.timers[libraryID] = time.AfterFunc(w.opts.Debounce, func() {
		select {
		case w.triggers <- libraryID:
		case <-w.stopped:
		}
	})
}

// libraryFor returns the library owning path, preferring the deepest root.
func (w *Watcher) libraryFor(path string) (libraryID, rel string, ok bool) {
	best := -1
	for root, id := range w.roots {
		r, within := relativeTo(root, path)
		if !within || len(root) <= best {
			continue
		}
		best, libraryID, rel, ok = len(root), id, r, true
	}
	return libraryID, rel, ok
}

// startSync syncs a library's mirrors, or marks it for another pass when a
// sync of it is already running.
func (w *Watcher) startSync(ctx context.Context, libraryID string) {
	if w.running[libraryID] {
		w.dirty[libraryID] = true
		return
	}
	w.running[libraryID] = true

	w.wg.Go(func() {
		defer func() {
			select {
			case w.finished <- libraryID:
			case <-w.stopped:
			}
		}()

		w.logger.Info("source changed; syncing mirrors", "library_id", libraryID)
		result, err := w.syncer.SyncMirrorsForLibrary(ctx, libraryID)
		if err != nil {
			w.logger.Warn("mirror sync after source change stopped", "library_id", libraryID, "error", err)
			return
		}
		if len(result.Failed) > 0 {
			w.logger.Warn("some mirrors failed to sync after source change",
				"library_id", libraryID,
				"synced", len(result.Synced),
				"failed", len(result.Failed),
			)
		}
	})
}

// relativeTo reports whether path is root or lies under it, and the relative path.
func relativeTo(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}
