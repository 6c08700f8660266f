package backup

import "time"

// RestoreOptions configures restoration.
type RestoreOptions struct {
	Mode          RestoreMode
	MergeStrategy MergeStrategy
	DryRun        bool // Validate without writing
}

// RestoreMode determines how to handle existing data.
type RestoreMode string

const (
	// RestoreModeFull replaces the configuration with the backup.
	RestoreModeFull RestoreMode = "full"

	// RestoreModeMerge adds backup entities to the existing configuration.
	RestoreModeMerge RestoreMode = "merge"
)

// Valid returns true if the restore mode is recognized.
func (m RestoreMode) Valid() bool {
	switch m {
	case RestoreModeFull, RestoreModeMerge:
		return true
	default:
		return false
	}
}

// MergeStrategy determines conflict resolution in merge mode.
type MergeStrategy string

const (
	// MergeKeepLocal keeps the local entity when IDs collide.
	MergeKeepLocal MergeStrategy = "keep_local"

	// MergeKeepBackup replaces the local entity when IDs collide.
	MergeKeepBackup MergeStrategy = "keep_backup"
)

// Valid returns true if the strategy is recognized.
func (s MergeStrategy) Valid() bool {
	return s == MergeKeepLocal || s == MergeKeepBackup
}

// BackupResult describes a created backup.
type BackupResult struct {
	Path     string        `json:"path"`
	Size     int64         `json:"size"`
	Counts   EntityCounts  `json:"counts"`
	Duration time.Duration `json:"duration"`
	Checksum string        `json:"checksum"`
}

// BackupInfo describes a backup on disk.
type BackupInfo struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// RestoreResult summarizes a restore.
type RestoreResult struct {
	Imported EntityCounts   `json:"imported"`
	Skipped  int            `json:"skipped"`
	Errors   []RestoreError `json:"errors,omitempty"`
	DryRun   bool           `json:"dry_run"`
}

// RestoreError records an entity that could not be restored.
type RestoreError struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Error      string `json:"error"`
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid    bool      `json:"valid"`
	Manifest *Manifest `json:"manifest,omitempty"`
	Errors   []string  `json:"errors,omitempty"`
	Warnings []string  `json:"warnings,omitempty"`
}
