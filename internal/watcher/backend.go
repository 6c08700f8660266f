package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// backend watches directory trees with fsnotify and reports files once they
// stop changing.
type backend struct {
	logger  *slog.Logger
	opts    Options
	watcher *fsnotify.Watcher

	mu      sync.Mutex               // protects pending and dirs
	pending map[string]*pendingEvent // path -> pending event info
	dirs    map[string]struct{}      // directories with an active watch

	events    chan Event
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// pendingEvent tracks a file that may still be changing
type pendingEvent struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

// newBackend creates a backend and starts processing fsnotify events.
func newBackend(logger *slog.Logger, opts Options) (*backend, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	b := &backend{
		logger:  logger,
		opts:    opts,
		watcher: w,
		pending: make(map[string]*pendingEvent),
		dirs:    make(map[string]struct{}),
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}
	b.wg.Go(b.processEvents)
	return b, nil
}

// Watch recursively watches the directory tree at root.
func (b *backend) Watch(root string) error {
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %q is not a directory", root)
	}

	b.watchDir(root)
	return nil
}

// Unwatch drops every watch and pending event under root.
func (b *backend) Unwatch(root string) {
	root = filepath.Clean(root)

	b.mu.Lock()
	defer b.mu.Unlock()

	for dir := range b.dirs {
		if _, ok := relativeTo(root, dir); ok {
			_ = b.watcher.Remove(dir)
			delete(b.dirs, dir)
		}
	}
	for path, pending := range b.pending {
		if _, ok := relativeTo(root, path); ok {
			pending.timer.Stop()
			delete(b.pending, path)
		}
	}
}

// watchDir recursively watches a directory
func (b *backend) watchDir(root string) {
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			b.logger.Warn("failed to access path", "path", p, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && b.opts.shouldIgnore(p) {
			return filepath.SkipDir
		}

		if err := b.watcher.Add(p); err != nil {
			b.logger.Error("failed to add watch", "path", p, "error", err)
			return nil
		}

		b.mu.Lock()
		b.dirs[p] = struct{}{}
		b.mu.Unlock()

		b.logger.Debug("added watch", "path", p)
		return nil
	})
}

// processEvents processes fsnotify events
func (b *backend) processEvents() {
	for {
		select {
		case <-b.done:
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.handleFsnotifyEvent(event)
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			select {
			case b.errors <- err:
			case <-b.done:
				return
			}
		}
	}
}

// handleFsnotifyEvent handles an fsnotify event with settling
func (b *backend) handleFsnotifyEvent(event fsnotify.Event) {
	path := event.Name

	if b.opts.shouldIgnore(path) {
		return
	}

	// New directories are watched and reported straight away; files moved in
	// with them never produce events of their own.
	if event.Has(fsnotify.Create) {
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			b.watchDir(path)
			b.emitEvent(Event{Type: EventChanged, Path: path})
			return
		}
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		b.forget(path)
		b.emitEvent(Event{Type: EventRemoved, Path: path})
		return
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
		b.startSettling(path)
	}
}

// startSettling begins the settling process for a file
func (b *backend) startSettling(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pending, exists := b.pending[path]; exists {
		pending.timer.Stop()
	}

	info, err := os.Stat(path)
	if err != nil {
		b.logger.Warn("failed to stat file", "path", path, "error", err)
		delete(b.pending, path)
		return
	}
	if info.IsDir() {
		return
	}

	pending := &pendingEvent{
		size:    info.Size(),
		modTime: info.ModTime(),
	}
	pending.timer = time.AfterFunc(b.opts.SettleDelay, func() {
		b.checkSettled(path)
	})
	b.pending[path] = pending
}

// checkSettled emits the file's event once its size and mtime held still for
// a whole settle delay, and restarts the delay otherwise.
func (b *backend) checkSettled(path string) {
	event, ready := b.settle(path)
	if ready {
		b.emitEvent(event)
	}
}

func (b *backend) settle(path string) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending, exists := b.pending[path]
	if !exists {
		return Event{}, false
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(b.pending, path)
		return Event{Type: EventRemoved, Path: path}, true
	}

	if info.Size() != pending.size || !info.ModTime().Equal(pending.modTime) {
		pending.size = info.Size()
		pending.modTime = info.ModTime()
		pending.timer = time.AfterFunc(b.opts.SettleDelay, func() {
			b.checkSettled(path)
		})
		return Event{}, false
	}

	delete(b.pending, path)
	return Event{
		Type:    EventChanged,
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, true
}

// forget cancels a pending event and drops watches of a vanished directory.
func (b *backend) forget(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pending, exists := b.pending[path]; exists {
		pending.timer.Stop()
		delete(b.pending, path)
	}
	for dir := range b.dirs {
		if _, ok := relativeTo(path, dir); ok {
			delete(b.dirs, dir)
		}
	}
}

// emitEvent sends an event to the events channel
func (b *backend) emitEvent(event Event) {
	select {
	case b.events <- event:
	case <-b.done:
	}
}

// Events returns the events channel
func (b *backend) Events() <-chan Event {
	return b.events
}

// Errors returns the errors channel
func (b *backend) Errors() <-chan error {
	return b.errors
}

// Close stops the backend. The event channels stay open so late settle
// timers never send on a closed channel.
func (b *backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		for _, pending := range b.pending {
			pending.timer.Stop()
		}
		clear(b.pending)
		b.mu.Unlock()

		err = b.watcher.Close()
		b.wg.Wait()
	})
	return err
}
