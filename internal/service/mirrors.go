package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/listenupapp/listenup-mirrors/internal/domain"
	domainerrors "github.com/listenupapp/listenup-mirrors/internal/errors"
	"github.com/listenupapp/listenup-mirrors/internal/fsutil"
	"github.com/listenupapp/listenup-mirrors/internal/host"
	"github.com/listenupapp/listenup-mirrors/internal/id"
	"github.com/listenupapp/listenup-mirrors/internal/mirror"
)

// AddMirrorRequest describes a new mirror. TargetPath defaults to a directory
// named after the source library under the alternative's base path, and
// TargetLibraryName to "<source> (<alternative>)".
type AddMirrorRequest struct {
	SourceLibraryID   string
	TargetPath        string
	TargetLibraryName string
}

// AddMirror validates and saves a mirror in Pending state, then builds it in
// the background. The returned mirror reflects the saved state, not the build.
func (s *AlternativeService) AddMirror(ctx context.Context, alternativeID string, req AddMirrorRequest) (*domain.LibraryMirror, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	alt, err := s.GetAlternative(ctx, alternativeID)
	if err != nil {
		return nil, err
	}

	libs, err := s.catalog.ListLibraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list host libraries: %w", err)
	}
	src, ok := host.FindLibrary(libs, req.SourceLibraryID)
	if !ok {
		return nil, domainerrors.Validationf("source library %q not found", req.SourceLibraryID)
	}

	target := req.TargetPath
	if strings.TrimSpace(target) == "" {
		target = filepath.Join(alt.DestinationBasePath, dirName(src.Name))
	}
	if err := s.engine.ValidateMirrorConfiguration(ctx, src.ID, target); err != nil {
		return nil, err
	}
	if err := mirror.CheckTargetInDestination(target, alt.DestinationBasePath); err != nil {
		return nil, err
	}
	target = filepath.Clean(target)

	libraryName := strings.TrimSpace(req.TargetLibraryName)
	if libraryName == "" {
		libraryName = mirror.DefaultTargetLibraryName(src.Name, alt.Name)
	}

	m := domain.LibraryMirror{
		ID:                id.NewMirrorID(),
		SourceLibraryID:   src.ID,
		SourceLibraryName: src.Name,
		TargetLibraryName: libraryName,
		TargetPath:        target,
		CollectionType:    src.CollectionType,
		Status:            domain.SyncStatusPending,
	}

	var reject error
	applied, err := s.store.UpdateIf(ctx, func(c *domain.Configuration) bool {
		live := c.Alternative(alternativeID)
		if live == nil {
			reject = domainerrors.NotFoundf("alternative %q not found", alternativeID)
			return false
		}
		if live.MirrorForSource(src.ID) != nil {
			reject = domainerrors.AlreadyExistsf("alternative %q already mirrors library %q", live.Name, src.Name)
			return false
		}
		for _, ref := range c.AllMirrors() {
			if fsutil.IsNestedPath(ref.Mirror.TargetPath, target) {
				reject = domainerrors.Conflictf("target path %q overlaps mirror %q at %q", target, ref.Mirror.ID, ref.Mirror.TargetPath)
				return false
			}
		}
		live.Mirrors = append(live.Mirrors, m)
		live.Touch(s.now())
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("save mirror: %w", err)
	}
	if !applied {
		return nil, reject
	}

	s.logger.Info("library mirror added",
		"mirror_id", m.ID,
		"alternative_id", alternativeID,
		"source_library", src.Name,
		"target_path", target,
	)

	s.background("create mirror", func(ctx context.Context) {
		if err := s.engine.CreateMirror(ctx, alternativeID, m.ID); err != nil {
			s.logger.Error("mirror creation failed", "mirror_id", m.ID, "error", err)
			return
		}
		s.reconcileAll(ctx)
	})
	return &m, nil
}

// RemoveMirror deletes a mirror of the given alternative.
func (s *AlternativeService) RemoveMirror(ctx context.Context, alternativeID, mirrorID string, opts mirror.DeleteOptions) (*mirror.DeleteResult, error) {
	alt, err := s.GetAlternative(ctx, alternativeID)
	if err != nil {
		return nil, err
	}
	m := alt.Mirror(mirrorID)
	if m == nil {
		return nil, domainerrors.NotFoundf("mirror %q not found in alternative %q", mirrorID, alternativeID)
	}

	res := s.engine.DeleteMirror(ctx, mirrorID, opts)
	if res.Conflict != "" && !res.ConfigRemoved {
		s.logger.Warn("mirror left in configuration", "mirror_id", mirrorID, "reason", res.Conflict)
	}
	if res.ConfigRemoved {
		s.retire(ctx, m.SourceLibraryID, m.TargetLibraryID)
	}
	return &res, nil
}

// TriggerSync starts a sync of every mirror in the alternative and returns
// without waiting. It reports false when a sync of the alternative is
// already running; that run covers this request.
func (s *AlternativeService) TriggerSync(ctx context.Context, alternativeID string) (bool, error) {
	if _, err := s.GetAlternative(ctx, alternativeID); err != nil {
		return false, err
	}

	s.syncMu.Lock()
	if _, running := s.inFlight[alternativeID]; running {
		s.syncMu.Unlock()
		return false, nil
	}
	s.inFlight[alternativeID] = struct{}{}
	s.syncMu.Unlock()

	s.background("sync alternative", func(ctx context.Context) {
		defer func() {
			s.syncMu.Lock()
			delete(s.inFlight, alternativeID)
			s.syncMu.Unlock()
		}()

		result, err := s.engine.SyncAlternative(ctx, alternativeID, nil)
		if err != nil {
			s.logger.Error("alternative sync stopped", "alternative_id", alternativeID, "error", err)
		}
		if result != nil {
			s.logger.Info("alternative sync finished",
				"alternative_id", alternativeID,
				"synced", len(result.Synced),
				"failed", len(result.Failed),
			)
		}
		s.reconcileAll(ctx)
	})
	return true, nil
}

// SyncAll syncs every mirror of every alternative and waits for it, then
// reconciles user access. Per-mirror failures are in the result.
func (s *AlternativeService) SyncAll(ctx context.Context) (*mirror.BatchResult, error) {
	result, err := s.engine.SyncAll(ctx)
	if err != nil {
		return result, err
	}
	s.reconcileAll(ctx)
	return result, nil
}

// TriggerCleanup runs orphan cleanup now. Users of removed mirror
// libraries get the source libraries back.
func (s *AlternativeService) TriggerCleanup(ctx context.Context) (*mirror.CleanupResult, error) {
	result, err := s.engine.CleanupOrphanedMirrors(ctx)
	if err != nil {
		return nil, err
	}
	for _, o := range result.Orphans {
		if o.Removed {
			s.retire(ctx, o.SourceLibraryID, o.TargetLibraryID)
		}
	}
	return result, nil
}

// ValidateMirror checks a proposed mirror without saving anything. With an
// alternative ID the target must also lie inside that alternative's
// destination base path, as AddMirror requires.
func (s *AlternativeService) ValidateMirror(ctx context.Context, alternativeID, sourceLibraryID, targetPath string) error {
	if err := s.engine.ValidateMirrorConfiguration(ctx, sourceLibraryID, targetPath); err != nil {
		return err
	}
	if alternativeID == "" {
		return nil
	}
	alt, err := s.GetAlternative(ctx, alternativeID)
	if err != nil {
		return err
	}
	return mirror.CheckTargetInDestination(targetPath, alt.DestinationBasePath)
}

// Progress returns the completion percentage of every mirror operation in flight.
func (s *AlternativeService) Progress() map[string]float64 {
	return s.engine.ActiveProgress()
}

// LibraryScanned is the host's notification that a library finished
// scanning. Mirrors of that library are synced in the background when
// SyncAfterLibraryScan is on.
func (s *AlternativeService) LibraryScanned(libraryID string) {
	if !s.store.Snapshot().SyncAfterLibraryScan {
		return
	}
	s.background("sync after scan", func(ctx context.Context) {
		if _, err := s.engine.SyncMirrorsForLibrary(ctx, libraryID); err != nil {
			s.logger.Warn("post-scan mirror sync stopped", "library_id", libraryID, "error", err)
		}
	})
}

// ListLibraries returns the host libraries, for choosing mirror sources.
func (s *AlternativeService) ListLibraries(ctx context.Context) ([]host.Library, error) {
	return s.catalog.ListLibraries(ctx)
}

// dirName turns a library name into a single path element.
func dirName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, " .")
	if name == "" {
		return "library"
	}
	return name
}
