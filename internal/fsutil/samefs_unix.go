//go:build unix

package fsutil

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/listenupapp/listenup-mirrors/internal/id"
)

// AreOnSameFilesystem reports whether a hardlink from beneath a to beneath b can succeed.
// Paths that do not exist yet are resolved to their nearest existing ancestor.
//
// Differing device numbers rule a link out immediately. Matching device
// numbers do not prove a link will work (bind mounts and some network
// filesystems share a device but refuse cross-mount links), so the answer is
// confirmed by linking a scratch file from a into b and removing both.
func (f *FS) AreOnSameFilesystem(a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}

	dirA, err := probeDir(a)
	if err != nil {
		f.logger.Debug("same-filesystem check could not resolve path", "path", a, "error", err)
		return false
	}
	dirB, err := probeDir(b)
	if err != nil {
		f.logger.Debug("same-filesystem check could not resolve path", "path", b, "error", err)
		return false
	}

	var statA, statB unix.Stat_t
	if err := unix.Stat(dirA, &statA); err != nil {
		return false
	}
	if err := unix.Stat(dirB, &statB); err != nil {
		return false
	}
	if statA.Dev != statB.Dev {
		return false
	}

	return f.probeLink(dirA, dirB)
}

// probeLink creates a uniquely named scratch file in dirA and tries to link it into dirB.
// Unique names keep concurrent probes against the same directories from colliding.
func (f *FS) probeLink(dirA, dirB string) bool {
	token, err := id.Token(16)
	if err != nil {
		f.logger.Warn("failed to generate probe name", "error", err)
		return false
	}
	name := ProbePrefix + token
	src := filepath.Join(dirA, name)
	dst := filepath.Join(dirB, name+".link")

	file, err := os.OpenFile(src, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		f.logger.Debug("failed to create probe file", "path", src, "error", err)
		return false
	}
	_ = file.Close()
	defer removeQuietly(src)

	if err := hardlink(src, dst); err != nil {
		f.logger.Debug("probe hardlink failed", "source", src, "link", dst, "error", err)
		return false
	}
	removeQuietly(dst)
	return true
}

// probeDir returns the nearest existing directory at or above path.
func probeDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	existing, _ := nearestExistingAncestor(filepath.Clean(abs))
	info, err := os.Stat(existing)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return filepath.Dir(existing), nil
	}
	return existing, nil
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}
