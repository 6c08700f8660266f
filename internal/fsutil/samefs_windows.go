//go:build windows

package fsutil

import (
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

// AreOnSameFilesystem reports whether a and b live on the same volume.
// Volume mount points are honored by asking the OS for each path's volume root.
func (f *FS) AreOnSameFilesystem(a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}
	rootA, err := volumeRoot(a)
	if err != nil {
		f.logger.Debug("failed to resolve volume root", "path", a, "error", err)
		return false
	}
	rootB, err := volumeRoot(b)
	if err != nil {
		f.logger.Debug("failed to resolve volume root", "path", b, "error", err)
		return false
	}
	return strings.EqualFold(rootA, rootB)
}

func volumeRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	existing, _ := nearestExistingAncestor(filepath.Clean(abs))

	p, err := windows.UTF16PtrFromString(existing)
	if err != nil {
		return "", err
	}
	buf := make([]uint16, windows.MAX_PATH+1)
	if err := windows.GetVolumePathName(p, &buf[0], uint32(len(buf))); err != nil {
		// Fall back to the drive letter or UNC share.
		return filepath.VolumeName(existing), nil
	}
	return windows.UTF16ToString(buf), nil
}
