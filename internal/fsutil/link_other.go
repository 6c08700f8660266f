//go:build !unix && !windows

package fsutil

import "os"

func hardlink(source, link string) error {
	return os.Link(source, link)
}
