package mirror

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/listenupapp/listenup-mirrors/internal/errors"
	"github.com/listenupapp/listenup-mirrors/internal/fsutil"
	"github.com/listenupapp/listenup-mirrors/internal/host"
)

// ValidateMirrorConfiguration checks a proposed mirror before it is saved.
// The source library must exist and have paths; the target must be a
// non-blank absolute path without ".." segments, on the same filesystem as
// every source path, and neither inside nor around any source path.
func (e *Engine) ValidateMirrorConfiguration(ctx context.Context, sourceLibraryID, targetPath string) error {
	libs, err := e.catalog.ListLibraries(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "list host libraries")
	}
	src, ok := host.FindLibrary(libs, sourceLibraryID)
	if !ok {
		return errors.Validationf("source library %q not found", sourceLibraryID)
	}
	if len(src.Paths) == 0 {
		return errors.Validationf("source library %q has no paths configured", src.Name)
	}

	if strings.TrimSpace(targetPath) == "" {
		return errors.Validation("target path is required")
	}
	if fsutil.ContainsTraversal(targetPath) {
		return errors.Validationf("target path %q must not contain '..' segments", targetPath)
	}
	if !filepath.IsAbs(targetPath) {
		return errors.Validationf("target path %q must be absolute", targetPath)
	}

	for _, p := range src.Paths {
		if fsutil.IsNestedPath(p, targetPath) {
			return errors.Validationf("target path %q overlaps source path %q", targetPath, p)
		}
	}
	for _, p := range src.Paths {
		if !e.fs.AreOnSameFilesystem(p, targetPath) {
			return errors.Filesystemf("target path %q is not on the same filesystem as source path %q; hardlinks require a single filesystem", targetPath, p)
		}
	}
	return nil
}
