package mirror

import (
	"context"
	"os"
	"path/filepath"

	"github.com/listenupapp/listenup-mirrors/internal/domain"
	"github.com/listenupapp/listenup-mirrors/internal/errors"
	"github.com/listenupapp/listenup-mirrors/internal/fsutil"
	"github.com/listenupapp/listenup-mirrors/internal/store"
)

// DeleteOptions selects what DeleteMirror removes besides the configuration entry.
type DeleteOptions struct {
	DeleteLibrary bool
	DeleteFiles   bool
	// ForceConfigRemoval removes the entry even when a concurrent change was detected.
	ForceConfigRemoval bool
	// KeepOnFailure leaves the entry in place when library or file removal
	// failed, so a later run can retry them.
	KeepOnFailure bool
}

// DeleteResult reports each part of a delete separately so partial failure
// can be logged without being treated as fatal.
type DeleteResult struct {
	MirrorID      string
	ConfigRemoved bool
	// Conflict is set when the entry was left in place because it changed concurrently.
	Conflict     store.ConflictReason
	ConfigError  error
	LibraryError error
	FilesError   error
}

// Err joins every failure the delete hit, or returns nil.
func (r DeleteResult) Err() error {
	return errors.Join(r.ConfigError, r.LibraryError, r.FilesError)
}

// DeleteMirror removes the mirror's configuration entry and, optionally, its
// host library and target tree. Library and file removal are best-effort and
// independent of each other. The mirror's lock entry is discarded afterwards.
func (e *Engine) DeleteMirror(ctx context.Context, mirrorID string, opts DeleteOptions) DeleteResult {
	unlock := e.locks.acquire(mirrorID)
	defer func() {
		unlock()
		e.locks.discard(mirrorID)
	}()

	_, alt, m, err := e.lookup(mirrorID)
	if err != nil {
		return DeleteResult{MirrorID: mirrorID, Conflict: store.ConflictNotFound, ConfigError: err}
	}
	return e.deleteLocked(ctx, alt, m, opts)
}

// deleteLocked does the work of DeleteMirror. The caller holds the mirror's lock.
func (e *Engine) deleteLocked(ctx context.Context, alt *domain.LanguageAlternative, m *domain.LibraryMirror, opts DeleteOptions) DeleteResult {
	result := DeleteResult{MirrorID: m.ID}
	log := e.logger.With("mirror_id", m.ID, "alternative_id", alt.ID)

	if opts.DeleteLibrary && m.HasTargetLibrary() {
		if err := e.catalog.RemoveLibrary(ctx, m.TargetLibraryName); err != nil && !errors.Is(err, errors.ErrNotFound) {
			log.Error("failed to remove host library", "library", m.TargetLibraryName, "error", err)
			result.LibraryError = err
		} else {
			log.Info("host library removed", "library", m.TargetLibraryName)
		}
	}

	if opts.DeleteFiles {
		if err := e.deleteTargetTree(m.TargetPath, alt.DestinationBasePath); err != nil {
			log.Error("failed to delete mirror files", "target", m.TargetPath, "error", err)
			result.FilesError = err
		} else {
			log.Info("mirror files deleted", "target", m.TargetPath)
		}
	}

	if opts.KeepOnFailure && (result.LibraryError != nil || result.FilesError != nil) {
		log.Warn("mirror kept in configuration until its library and files are removed")
		return result
	}

	res, err := e.store.TryRemoveMirrorAtomic(ctx, alt.ID, m.ID, m.TargetLibraryID)
	if err != nil {
		result.ConfigError = err
	}
	switch {
	case res.Removed:
		result.ConfigRemoved = true
	case res.Conflict() && opts.ForceConfigRemoval:
		log.Warn("forcing config removal despite concurrent change", "reason", res.Reason)
		removed, err := e.store.RemoveMirror(ctx, m.ID)
		result.ConfigRemoved = removed
		if err != nil {
			result.ConfigError = err
		}
	case res.Conflict():
		log.Warn("mirror changed concurrently; config entry kept for retry", "reason", res.Reason)
		result.Conflict = res.Reason
	default:
		result.Conflict = res.Reason
	}

	if result.ConfigRemoved {
		log.Info("mirror removed from configuration")
	}
	return result
}

// CheckTargetInDestination reports a validation error unless target lies
// strictly inside the destination base path. Mirror trees outside it could
// never be deleted.
func CheckTargetInDestination(target, base string) error {
	if target == "" || base == "" {
		return errors.Validation("mirror has no target path or destination base path")
	}
	if !fsutil.IsPathSafe(target, base) || fsutil.IsPathSafe(base, target) {
		return errors.Validationf("target path %s is not inside destination %s", target, base)
	}
	return nil
}

// deleteTargetTree removes a mirror's target directory.
func (e *Engine) deleteTargetTree(target, base string) error {
	if err := CheckTargetInDestination(target, base); err != nil {
		return err
	}
	if err := os.RemoveAll(target); err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "remove %s", target)
	}
	e.fs.CleanupEmptyDirectories(filepath.Dir(target), base)
	return nil
}
