package mirror

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/listenupapp/listenup-mirrors/internal/errors"
)

// MirrorProgressFunc receives progress for one mirror of a batch.
type MirrorProgressFunc func(mirrorID string, percent float64)

// BatchResult collects per-mirror outcomes of a batch sync.
type BatchResult struct {
	Synced map[string]*SyncResult
	Failed map[string]error
}

// Err joins the per-mirror failures, or returns nil.
func (r *BatchResult) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, err := range r.Failed {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SyncAlternative syncs every mirror of an alternative, at most
// MaxConcurrentSyncs at a time. A failing mirror does not stop the others;
// cancellation stops mirrors that have not started yet.
func (e *Engine) SyncAlternative(ctx context.Context, alternativeID string, progress MirrorProgressFunc) (*BatchResult, error) {
	alt := e.store.Snapshot().Alternative(alternativeID)
	if alt == nil {
		return nil, errors.NotFoundf("alternative %q not found", alternativeID)
	}
	e.logger.Info("syncing alternative", "alternative_id", alt.ID, "mirrors", len(alt.Mirrors))
	return e.syncMirrors(ctx, alt.MirrorIDs(), progress)
}

// SyncAll syncs every mirror of every alternative.
func (e *Engine) SyncAll(ctx context.Context) (*BatchResult, error) {
	refs := e.store.Snapshot().AllMirrors()
	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.Mirror.ID
	}
	return e.syncMirrors(ctx, ids, nil)
}

// SyncMirrorsForLibrary syncs every mirror whose source is libraryID.
// It is what a library scan or a watched change triggers.
func (e *Engine) SyncMirrorsForLibrary(ctx context.Context, libraryID string) (*BatchResult, error) {
	var ids []string
	for _, ref := range e.store.Snapshot().AllMirrors() {
		if ref.Mirror.SourceLibraryID == libraryID {
			ids = append(ids, ref.Mirror.ID)
		}
	}
	if len(ids) == 0 {
		return &BatchResult{Synced: map[string]*SyncResult{}, Failed: map[string]error{}}, nil
	}
	e.logger.Info("syncing mirrors of library", "library_id", libraryID, "mirrors", len(ids))
	return e.syncMirrors(ctx, ids, nil)
}

func (e *Engine) syncMirrors(ctx context.Context, ids []string, progress MirrorProgressFunc) (*BatchResult, error) {
	result := &BatchResult{
		Synced: make(map[string]*SyncResult),
		Failed: make(map[string]error),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.MaxConcurrentSyncs)

	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			var cb ProgressFunc
			if progress != nil {
				cb = func(p float64) { progress(id, p) }
			}
			res, err := e.SyncMirror(gctx, id, cb)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.logger.Warn("mirror sync failed; continuing with the rest", "mirror_id", id, "error", err)
				result.Failed[id] = err
				return nil
			}
			result.Synced[id] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, ctx.Err()
}

// WatchedSources returns the paths of every mirrored source library keyed by library ID.
func (e *Engine) WatchedSources(ctx context.Context) (map[string][]string, error) {
	libs, err := e.catalog.ListLibraries(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "list host libraries")
	}
	mirrored := e.store.Snapshot().MirroredSourceLibraryIDs()

	out := make(map[string][]string, len(mirrored))
	for _, l := range libs {
		if _, ok := mirrored[l.ID]; ok && len(l.Paths) > 0 {
			out[l.ID] = append([]string(nil), l.Paths...)
		}
	}
	return out, nil
}
