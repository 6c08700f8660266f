package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/listenupapp/listenup-mirrors/internal/domain"
	"github.com/listenupapp/listenup-mirrors/internal/fsutil"
)

// SyncResult summarizes a sync.
type SyncResult struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Failed    int `json:"failed"`
	FileCount int `json:"file_count"`
}

// Operations is the number of file operations the sync attempted.
func (r SyncResult) Operations() int {
	return r.Added + r.Removed + r.Failed
}

// SyncMirror brings the mirror's tree in line with its source by relative path.
// Files present only in the target are removed (and emptied directories pruned
// up to the target root); files present only in the source are linked. A file
// present on both sides is left alone even if its content changed.
//
// A mirror that never got a host library is built with CreateMirror semantics
// instead, so an interrupted creation resumes here.
func (e *Engine) SyncMirror(ctx context.Context, mirrorID string, progress ProgressFunc) (*SyncResult, error) {
	unlock := e.locks.acquire(mirrorID)
	defer unlock()

	cfg, alt, m, err := e.lookup(mirrorID)
	if err != nil {
		return nil, err
	}

	if !m.HasTargetLibrary() {
		if err := e.create(ctx, cfg, alt, m); err != nil {
			return nil, err
		}
		_, _, m, err = e.lookup(mirrorID)
		if err != nil {
			return nil, err
		}
		var count int
		if m.LastSyncFileCount != nil {
			count = *m.LastSyncFileCount
		}
		return &SyncResult{Added: count, FileCount: count}, nil
	}

	return e.sync(ctx, cfg, alt, m, progress)
}

// sync does the work of SyncMirror. The caller holds the mirror's lock.
func (e *Engine) sync(ctx context.Context, cfg *domain.Configuration, alt *domain.LanguageAlternative, m *domain.LibraryMirror, progress ProgressFunc) (result *SyncResult, err error) {
	log := e.logger.With("mirror_id", m.ID, "alternative_id", alt.ID)
	log.Info("syncing mirror", "target", m.TargetPath)

	e.markSyncing(ctx, m.ID)
	result = &SyncResult{}
	defer func() {
		e.progress.clear(m.ID)
		if err != nil {
			log.Error("mirror sync failed", "error", err)
			e.finish(ctx, m.ID, 0, err)
			result = nil
			return
		}
		e.finish(ctx, m.ID, result.FileCount, nil)
		log.Info("mirror synced",
			"added", result.Added,
			"removed", result.Removed,
			"failed", result.Failed,
			"files", result.FileCount,
		)
	}()

	src, err := e.sourceLibrary(ctx, m)
	if err != nil {
		return result, err
	}

	compiled := rules(cfg)
	trees := make([]Tree, 0, len(src.Paths))
	for _, root := range src.Paths {
		tree, err := e.walker.Collect(ctx, root, compiled)
		if err != nil {
			return result, fmt.Errorf("scan source path %s: %w", root, err)
		}
		trees = append(trees, tree)
	}
	source := Merge(trees...)

	if err := os.MkdirAll(m.TargetPath, 0o755); err != nil {
		return result, fmt.Errorf("create target directory %s: %w", m.TargetPath, err)
	}
	target, err := e.walker.Collect(ctx, m.TargetPath, compiled)
	if err != nil {
		return result, fmt.Errorf("scan target %s: %w", m.TargetPath, err)
	}

	diff := ComputeDiff(source, target)
	tracker := newProgressTracker(len(diff.Added)+len(diff.Removed), progress, func(p float64) {
		e.progress.set(m.ID, p)
	}, e.logger)
	defer tracker.Close()
	e.progress.set(m.ID, 0)

	for _, rel := range diff.Removed {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if e.removeTargetFile(m.TargetPath, rel) {
			result.Removed++
		} else {
			result.Failed++
		}
		tracker.Increment()
	}

	for _, rel := range diff.Added {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		ok, linkErr := e.fs.CreateHardLink(source[rel], filepath.Join(m.TargetPath, rel))
		if linkErr != nil || !ok {
			log.Warn("failed to link file", "path", rel, "error", linkErr)
			result.Failed++
		} else {
			result.Added++
		}
		tracker.Increment()
	}

	result.FileCount = len(source)
	return result, nil
}

// removeTargetFile deletes one mirrored file and prunes directories it leaves empty.
func (e *Engine) removeTargetFile(targetRoot, rel string) bool {
	path := filepath.Join(targetRoot, rel)
	if !fsutil.IsPathSafe(path, targetRoot) {
		e.logger.Warn("refusing to delete path outside mirror", "path", path, "target", targetRoot)
		return false
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.logger.Warn("failed to delete mirrored file", "path", path, "error", err)
		return false
	}
	e.fs.CleanupEmptyDirectories(filepath.Dir(path), targetRoot)
	return true
}

// Diff lists the relative paths a sync must add to and remove from a target.
type Diff struct {
	Added   []string
	Removed []string
}

// ComputeDiff compares source and target trees by relative path only.
// Both slices are sorted.
func ComputeDiff(source, target Tree) Diff {
	var diff Diff
	for _, rel := range sortedKeys(source) {
		if _, ok := target[rel]; !ok {
			diff.Added = append(diff.Added, rel)
		}
	}
	for _, rel := range sortedKeys(target) {
		if _, ok := source[rel]; !ok {
			diff.Removed = append(diff.Removed, rel)
		}
	}
	return diff
}
