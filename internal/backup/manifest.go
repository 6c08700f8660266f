// Package backup exports the mirror configuration to a zip archive and
// restores it, replacing or merging with the live configuration.
package backup

import "time"

// FormatVersion is the backup format version. Increment major on breaking changes.
const FormatVersion = "1.0"

// Archive layout.
const (
	manifestFile     = "manifest.json"
	settingsFile     = "settings.json"
	alternativesFile = "entities/alternatives.jsonl"
	mappingsFile     = "entities/ldap_group_mappings.jsonl"
	assignmentsFile  = "entities/user_assignments.jsonl"
)

// Manifest describes backup contents and metadata.
type Manifest struct {
	Version   string       `json:"version"`
	CreatedAt time.Time    `json:"created_at"`
	Counts    EntityCounts `json:"counts"`
}

// EntityCounts tracks entity counts for validation and progress reporting.
type EntityCounts struct {
	Alternatives  int `json:"alternatives"`
	Mirrors       int `json:"mirrors"`
	GroupMappings int `json:"group_mappings"`
	Assignments   int `json:"assignments"`
}

// Settings is the scalar part of the configuration.
type Settings struct {
	DefaultAlternativeID       *string  `json:"default_alternative_id"`
	ExcludedExtensions         []string `json:"excluded_extensions"`
	ExcludedDirectories        []string `json:"excluded_directories"`
	IncludedDirectories        []string `json:"included_directories"`
	SyncAfterLibraryScan       bool     `json:"sync_after_library_scan"`
	SetUserLanguagePreferences bool     `json:"set_user_language_preferences"`
}
