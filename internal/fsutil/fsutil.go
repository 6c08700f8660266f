// Package fsutil wraps the filesystem primitives the mirror engine depends on:
// hardlink creation, same-filesystem detection, path containment checks, and
// pruning of empty directories.
//
// Expected failures (missing source, permission denied, cross-device links)
// are logged and reported as false rather than returned as errors, so a batch
// of links can continue past a bad file.
package fsutil

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrEmptyPath is returned when a required path argument is empty.
var ErrEmptyPath = errors.New("path must not be empty")

// dirPerm is used for directories created under a mirror target.
const dirPerm = 0o755

// ProbePrefix marks scratch files created by AreOnSameFilesystem. They appear
// briefly beside source files, so watchers should ignore them.
const ProbePrefix = ".mirror-probe-"

// FS performs filesystem operations and logs expected failures.
type FS struct {
	logger *slog.Logger
}

// New creates a filesystem adapter.
func New(logger *slog.Logger) *FS {
	if logger == nil {
		logger = slog.Default()
	}
	return &FS{logger: logger}
}

// CreateHardLink links link to source, creating link's parent directories.
// An existing regular file at link is replaced; an existing directory is not.
// Returns an error only when an argument is empty.
func (f *FS) CreateHardLink(source, link string) (bool, error) {
	if strings.TrimSpace(source) == "" || strings.TrimSpace(link) == "" {
		return false, ErrEmptyPath
	}

	srcInfo, err := os.Stat(source)
	if err != nil {
		f.logger.Warn("hardlink source unavailable", "source", source, "error", err)
		return false, nil
	}
	if srcInfo.IsDir() {
		f.logger.Warn("hardlink source is a directory", "source", source)
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(link), dirPerm); err != nil {
		f.logger.Warn("failed to create link parent directory", "link", link, "error", err)
		return false, nil
	}

	if existing, err := os.Lstat(link); err == nil {
		if existing.IsDir() {
			f.logger.Warn("directory occupies link path", "link", link)
			return false, nil
		}
		if os.SameFile(srcInfo, existing) {
			return true, nil
		}
		if err := os.Remove(link); err != nil {
			f.logger.Warn("failed to replace existing file at link path", "link", link, "error", err)
			return false, nil
		}
	}

	if err := hardlink(source, link); err != nil {
		f.logger.Warn("hardlink failed", "source", source, "link", link, "error", err)
		return false, nil
	}
	return true, nil
}

// IsPathSafe reports whether path resolves to basePath or somewhere beneath it.
// Every destructive operation is gated on this check.
func IsPathSafe(path, basePath string) bool {
	if strings.TrimSpace(path) == "" || strings.TrimSpace(basePath) == "" {
		return false
	}
	p, err := canonical(path)
	if err != nil {
		return false
	}
	b, err := canonical(basePath)
	if err != nil {
		return false
	}
	return within(p, b)
}

// IsNestedPath reports whether either path contains the other (or they are equal).
func IsNestedPath(a, b string) bool {
	ca, err := canonical(a)
	if err != nil {
		return false
	}
	cb, err := canonical(b)
	if err != nil {
		return false
	}
	return within(ca, cb) || within(cb, ca)
}

// ContainsTraversal reports whether path has a ".." segment before cleaning.
func ContainsTraversal(path string) bool {
	for seg := range strings.FieldsFuncSeq(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

// CleanupEmptyDirectories removes start and its ancestors while they are empty,
// stopping at (and never removing) stopAtBase. It stops at the first non-empty
// directory or failed removal and never returns an error.
func (f *FS) CleanupEmptyDirectories(start, stopAtBase string) {
	if start == "" || stopAtBase == "" {
		return
	}
	dir, err := canonical(start)
	if err != nil {
		return
	}
	stop, err := canonical(stopAtBase)
	if err != nil {
		return
	}

	for within(dir, stop) && !samePath(dir, stop) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				f.logger.Debug("stopping directory cleanup", "dir", dir, "error", err)
				return
			}
		} else {
			if len(entries) > 0 {
				return
			}
			if err := os.Remove(dir); err != nil {
				f.logger.Debug("failed to remove empty directory", "dir", dir, "error", err)
				return
			}
			f.logger.Debug("removed empty directory", "dir", dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// canonical returns an absolute, cleaned path with symlinks resolved for the
// longest existing prefix. Paths that do not exist yet are still canonicalized.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	existing, rest := nearestExistingAncestor(abs)
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		resolved = existing
	}
	if rest == "" {
		return resolved, nil
	}
	return filepath.Join(resolved, rest), nil
}

// nearestExistingAncestor walks up from path until it finds an entry that exists.
// It returns that entry and the remaining (non-existent) suffix.
func nearestExistingAncestor(path string) (existing, rest string) {
	current := path
	for {
		if _, err := os.Lstat(current); err == nil {
			return current, rest
		}
		parent := filepath.Dir(current)
		if parent == current {
			return current, rest
		}
		if rest == "" {
			rest = filepath.Base(current)
		} else {
			rest = filepath.Join(filepath.Base(current), rest)
		}
		current = parent
	}
}

// within reports whether child equals parent or lies beneath it. Both must be canonical.
func within(child, parent string) bool {
	if samePath(child, parent) {
		return true
	}
	prefix := parent
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if caseInsensitiveFS() {
		return strings.HasPrefix(strings.ToLower(child), strings.ToLower(prefix))
	}
	return strings.HasPrefix(child, prefix)
}

func samePath(a, b string) bool {
	if caseInsensitiveFS() {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func caseInsensitiveFS() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}
