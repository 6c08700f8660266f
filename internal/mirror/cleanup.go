package mirror

import (
	"context"
	"fmt"

	"github.com/listenupapp/listenup-mirrors/internal/domain"
	"github.com/listenupapp/listenup-mirrors/internal/errors"
	"github.com/listenupapp/listenup-mirrors/internal/host"
)

// OrphanReason says which side of an orphaned mirror disappeared.
type OrphanReason string

const (
	OrphanSourceMissing OrphanReason = "source_missing"
	OrphanTargetMissing OrphanReason = "target_missing"
)

// OrphanedMirror describes one mirror handled by CleanupOrphanedMirrors.
type OrphanedMirror struct {
	MirrorID        string       `json:"mirror_id"`
	AlternativeID   string       `json:"alternative_id"`
	SourceLibraryID string       `json:"source_library_id"`
	TargetLibraryID *string      `json:"target_library_id"`
	Reason          OrphanReason `json:"reason"`
	Description     string       `json:"description"`
	Removed         bool         `json:"removed"`
	Error           string       `json:"error,omitempty"`
}

// LibraryRef names a host library.
type LibraryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CleanupResult is the outcome of CleanupOrphanedMirrors.
type CleanupResult struct {
	Orphans []OrphanedMirror `json:"orphans"`
	// Unmirrored lists host libraries that are neither mirrored nor mirrors.
	Unmirrored []LibraryRef `json:"unmirrored"`
}

// CleanupOrphanedMirrors reconciles the configuration with the host catalog.
// A mirror whose source library is gone loses its target library and files;
// a mirror whose target library was removed externally loses only its
// configuration entry, leaving every file in place. Running it again with
// nothing changed does nothing.
//
// The first catalog listing only nominates candidates. Each candidate is
// re-read and checked against a fresh listing under its own lock, so a mirror
// that a concurrent create just attached to a new library is left alone.
func (e *Engine) CleanupOrphanedMirrors(ctx context.Context) (*CleanupResult, error) {
	libs, err := e.catalog.ListLibraries(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "list host libraries")
	}
	exists := libraryIDs(libs)

	result := &CleanupResult{Orphans: []OrphanedMirror{}}
	for _, ref := range e.store.Snapshot().AllMirrors() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, orphaned := classifyOrphan(&ref.Mirror, exists); !orphaned {
			continue
		}

		orphan, ok, err := e.reapOrphan(ctx, ref.Mirror.ID)
		if err != nil {
			return result, err
		}
		if ok {
			result.Orphans = append(result.Orphans, orphan)
		}
	}

	if libs, err = e.catalog.ListLibraries(ctx); err != nil {
		return result, errors.Wrap(err, errors.CodeInternal, "list host libraries")
	}
	result.Unmirrored = e.unmirrored(libs)
	return result, nil
}

// reapOrphan confirms and removes one orphaned mirror while holding its lock.
// It reports false when the mirror is gone or no longer orphaned.
func (e *Engine) reapOrphan(ctx context.Context, mirrorID string) (OrphanedMirror, bool, error) {
	unlock := e.locks.acquire(mirrorID)
	removed := false
	defer func() {
		unlock()
		if removed {
			e.locks.discard(mirrorID)
		}
	}()

	_, alt, m, err := e.lookup(mirrorID)
	if err != nil {
		return OrphanedMirror{}, false, nil
	}
	libs, err := e.catalog.ListLibraries(ctx)
	if err != nil {
		return OrphanedMirror{}, false, errors.Wrap(err, errors.CodeInternal, "list host libraries")
	}
	reason, orphaned := classifyOrphan(m, libraryIDs(libs))
	if !orphaned {
		e.logger.Debug("mirror no longer orphaned", "mirror_id", mirrorID)
		return OrphanedMirror{}, false, nil
	}

	orphan := OrphanedMirror{
		MirrorID:        m.ID,
		AlternativeID:   alt.ID,
		SourceLibraryID: m.SourceLibraryID,
		TargetLibraryID: m.TargetLibraryID,
		Reason:          reason,
	}
	var opts DeleteOptions
	switch reason {
	case OrphanSourceMissing:
		orphan.Description = fmt.Sprintf("source library %s no longer exists; deleted mirror library %q and files at %s",
			m.SourceLibraryID, m.TargetLibraryName, m.TargetPath)
		opts = DeleteOptions{DeleteLibrary: true, DeleteFiles: true, KeepOnFailure: true}
	case OrphanTargetMissing:
		orphan.Description = fmt.Sprintf("target library %q was removed; dropped mirror configuration, files untouched",
			m.TargetLibraryName)
	}

	res := e.deleteLocked(ctx, alt, m, opts)
	removed = res.ConfigRemoved
	orphan.Removed = res.ConfigRemoved
	if err := res.Err(); err != nil {
		orphan.Error = err.Error()
	}
	e.logger.Info("orphaned mirror cleaned up",
		"mirror_id", m.ID,
		"reason", orphan.Reason,
		"removed", orphan.Removed,
	)
	return orphan, true, nil
}

// classifyOrphan says whether m has lost its source or target library.
func classifyOrphan(m *domain.LibraryMirror, exists map[string]bool) (OrphanReason, bool) {
	switch {
	case !exists[m.SourceLibraryID]:
		return OrphanSourceMissing, true
	case m.HasTargetLibrary() && !exists[*m.TargetLibraryID]:
		return OrphanTargetMissing, true
	default:
		return "", false
	}
}

func libraryIDs(libs []host.Library) map[string]bool {
	out := make(map[string]bool, len(libs))
	for _, l := range libs {
		out[l.ID] = true
	}
	return out
}

// unmirrored returns libraries that have no mirror and are not themselves mirrors.
func (e *Engine) unmirrored(libs []host.Library) []LibraryRef {
	cfg := e.store.Snapshot()
	sources := cfg.MirroredSourceLibraryIDs()
	targets := make(map[string]struct{})
	for _, ref := range cfg.AllMirrors() {
		if ref.Mirror.HasTargetLibrary() {
			targets[*ref.Mirror.TargetLibraryID] = struct{}{}
		}
	}

	out := []LibraryRef{}
	for _, l := range libs {
		if _, ok := sources[l.ID]; ok {
			continue
		}
		if _, ok := targets[l.ID]; ok {
			continue
		}
		out = append(out, LibraryRef{ID: l.ID, Name: l.Name})
	}
	return out
}
