package backup

import "errors"

var (
	// ErrBackupNotFound is returned when no backup has the requested ID.
	ErrBackupNotFound = errors.New("backup not found")
	// ErrInvalidBackup is returned when an archive fails validation.
	ErrInvalidBackup = errors.New("invalid backup")
)
