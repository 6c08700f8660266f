//go:build windows

package fsutil

import (
	"fmt"

	"golang.org/x/sys/windows"
)

func hardlink(source, link string) error {
	src, err := windows.UTF16PtrFromString(source)
	if err != nil {
		return fmt.Errorf("encode source path: %w", err)
	}
	dst, err := windows.UTF16PtrFromString(link)
	if err != nil {
		return fmt.Errorf("encode link path: %w", err)
	}
	return windows.CreateHardLink(dst, src, 0)
}
