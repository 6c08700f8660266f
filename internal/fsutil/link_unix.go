//go:build unix

package fsutil

import "golang.org/x/sys/unix"

func hardlink(source, link string) error {
	return unix.Link(source, link)
}
