package domain

import "time"

// SyncStatus is the lifecycle state of a library mirror.
// Every operation moves a mirror through Syncing and leaves it in Synced or Error.
type SyncStatus string

const (
	// SyncStatusPending is a mirror that has been configured but never built.
	SyncStatusPending SyncStatus = "pending"
	// SyncStatusSyncing is a mirror with an operation in flight.
	SyncStatusSyncing SyncStatus = "syncing"
	// SyncStatusSynced is a mirror whose last operation completed.
	SyncStatusSynced SyncStatus = "synced"
	// SyncStatusError is a mirror whose last operation failed; LastError says why.
	SyncStatusError SyncStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSyncing, SyncStatusSynced, SyncStatusError:
		return true
	}
	return false
}

// LibraryMirror is a target library whose files are hardlinks into a source library.
type LibraryMirror struct {
	ID                string  `json:"id"`
	SourceLibraryID   string  `json:"source_library_id"`
	SourceLibraryName string  `json:"source_library_name"`
	TargetLibraryID   *string `json:"target_library_id"`
	TargetLibraryName string  `json:"target_library_name"`
	TargetPath        string  `json:"target_path"`
	CollectionType    string  `json:"collection_type,omitempty"`

	Status            SyncStatus `json:"status"`
	LastSyncedAt      *time.Time `json:"last_synced_at"`
	LastSyncFileCount *int       `json:"last_sync_file_count"`
	LastError         string     `json:"last_error,omitempty"`
}

// HasTargetLibrary reports whether the host library for this mirror was created.
func (m *LibraryMirror) HasTargetLibrary() bool {
	return m.TargetLibraryID != nil && *m.TargetLibraryID != ""
}

// Clone returns a deep copy.
func (m *LibraryMirror) Clone() LibraryMirror {
	out := *m
	out.TargetLibraryID = clonePtr(m.TargetLibraryID)
	out.LastSyncedAt = clonePtr(m.LastSyncedAt)
	out.LastSyncFileCount = clonePtr(m.LastSyncFileCount)
	return out
}

// MarkSyncing records that an operation started.
func (m *LibraryMirror) MarkSyncing() {
	m.Status = SyncStatusSyncing
}

// MarkSynced records a successful operation.
func (m *LibraryMirror) MarkSynced(at time.Time, fileCount int) {
	m.Status = SyncStatusSynced
	m.LastSyncedAt = &at
	m.LastSyncFileCount = &fileCount
	m.LastError = ""
}

// MarkError records a failed operation.
func (m *LibraryMirror) MarkError(err error) {
	m.Status = SyncStatusError
	if err != nil {
		m.LastError = err.Error()
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
