//go:build !unix && !windows

package fsutil

import "strings"

// AreOnSameFilesystem falls back to comparing volume names where neither a
// device number nor a volume API is available.
func (f *FS) AreOnSameFilesystem(a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}
	ca, err := canonical(a)
	if err != nil {
		return false
	}
	cb, err := canonical(b)
	if err != nil {
		return false
	}
	return volumeName(ca) == volumeName(cb)
}

func volumeName(path string) string {
	if i := strings.IndexByte(path[min(1, len(path)):], '/'); i >= 0 {
		return path[:i+1]
	}
	return path
}
