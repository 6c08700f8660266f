// Package mirror builds and maintains mirror libraries: trees of hardlinks into
// a source library's files that a host library with its own metadata language
// can scan.
//
// Every operation on a mirror runs under that mirror's own lock, so create,
// sync and delete of one mirror never overlap while different mirrors proceed
// in parallel. Each operation moves the mirror to Syncing and always leaves it
// in Synced or Error. Per-file failures are logged and skipped; failures of the
// operation as a whole are recorded on the mirror and returned.
package mirror

import (
	"context"
	"log/slog"
	"time"

	"github.com/listenupapp/listenup-mirrors/internal/classifier"
	"github.com/listenupapp/listenup-mirrors/internal/domain"
	"github.com/listenupapp/listenup-mirrors/internal/errors"
	"github.com/listenupapp/listenup-mirrors/internal/fsutil"
	"github.com/listenupapp/listenup-mirrors/internal/host"
	"github.com/listenupapp/listenup-mirrors/internal/store"
)

// Config tunes the engine.
type Config struct {
	// MaxConcurrentSyncs bounds how many mirrors of one alternative sync at once.
	MaxConcurrentSyncs int
}

// Engine orchestrates mirror operations.
type Engine struct {
	store    *store.Store
	catalog  host.LibraryCatalog
	fs       *fsutil.FS
	walker   *Walker
	locks    *lockArena
	progress *progressBoard
	logger   *slog.Logger
	config   Config
	now      func() time.Time
}

// New creates a mirror engine.
func New(st *store.Store, catalog host.LibraryCatalog, fsys *fsutil.FS, logger *slog.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrentSyncs < 1 {
		cfg.MaxConcurrentSyncs = 1
	}
	return &Engine{
		store:    st,
		catalog:  catalog,
		fs:       fsys,
		walker:   NewWalker(logger),
		locks:    newLockArena(),
		progress: newProgressBoard(),
		logger:   logger,
		config:   cfg,
		now:      time.Now,
	}
}

// Progress returns the progress of an in-flight sync of the mirror.
func (e *Engine) Progress(mirrorID string) (float64, bool) {
	return e.progress.get(mirrorID)
}

// ActiveProgress returns the progress of every in-flight sync keyed by mirror ID.
func (e *Engine) ActiveProgress() map[string]float64 {
	return e.progress.snapshot()
}

// Rules compiles the classifier settings currently in effect.
func (e *Engine) Rules() *classifier.Compiled {
	return rules(e.store.Snapshot())
}

// rules compiles the classifier settings of cfg.
func rules(cfg *domain.Configuration) *classifier.Compiled {
	return (&classifier.Rules{
		ExcludedExtensions:  cfg.ExcludedExtensions,
		ExcludedDirectories: cfg.ExcludedDirectories,
		IncludedDirectories: cfg.IncludedDirectories,
	}).Compile()
}

// lookup finds a mirror and its alternative in a fresh snapshot.
func (e *Engine) lookup(mirrorID string) (*domain.Configuration, *domain.LanguageAlternative, *domain.LibraryMirror, error) {
	cfg := e.store.Snapshot()
	alt, m := cfg.FindMirror(mirrorID)
	if m == nil {
		return nil, nil, nil, errors.NotFoundf("mirror %q not found", mirrorID)
	}
	return cfg, alt, m, nil
}

// sourceLibrary resolves the mirror's source library and insists on at least one path.
func (e *Engine) sourceLibrary(ctx context.Context, m *domain.LibraryMirror) (host.Library, error) {
	libs, err := e.catalog.ListLibraries(ctx)
	if err != nil {
		return host.Library{}, errors.Wrap(err, errors.CodeInternal, "list host libraries")
	}
	src, ok := host.FindLibrary(libs, m.SourceLibraryID)
	if !ok {
		return host.Library{}, errors.NotFoundf("source library %q not found", m.SourceLibraryID)
	}
	if len(src.Paths) == 0 {
		return host.Library{}, errors.Validationf("source library %q has no paths configured", src.Name)
	}
	return src, nil
}

// markSyncing moves the mirror into Syncing.
func (e *Engine) markSyncing(ctx context.Context, mirrorID string) {
	if _, err := e.store.UpdateMirror(ctx, mirrorID, func(_ *domain.LanguageAlternative, m *domain.LibraryMirror) {
		m.MarkSyncing()
	}); err != nil {
		e.logger.Warn("failed to persist syncing status", "mirror_id", mirrorID, "error", err)
	}
}

// finish records the outcome of an operation. It runs on a context detached
// from cancellation so a canceled request still leaves a final status behind.
func (e *Engine) finish(ctx context.Context, mirrorID string, fileCount int, opErr error) {
	ctx = context.WithoutCancel(ctx)
	at := e.now()
	if _, err := e.store.UpdateMirror(ctx, mirrorID, func(_ *domain.LanguageAlternative, m *domain.LibraryMirror) {
		if opErr != nil {
			m.MarkError(opErr)
			return
		}
		m.MarkSynced(at, fileCount)
	}); err != nil {
		e.logger.Error("failed to persist mirror status", "mirror_id", mirrorID, "error", err)
	}
}
