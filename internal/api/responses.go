package api

import (
	"time"

	"github.com/listenupapp/listenup-mirrors/internal/domain"
	"github.com/listenupapp/listenup-mirrors/internal/mirror"
)

// MirrorResponse is a library mirror in API responses.
type MirrorResponse struct {
	ID                string     `json:"id" doc:"Mirror ID"`
	SourceLibraryID   string     `json:"source_library_id" doc:"Host library the mirror is built from"`
	SourceLibraryName string     `json:"source_library_name" doc:"Source library name when the mirror was added"`
	TargetLibraryID   *string    `json:"target_library_id,omitempty" doc:"Host library serving the mirror, once created"`
	TargetLibraryName string     `json:"target_library_name" doc:"Name of the mirror's host library"`
	TargetPath        string     `json:"target_path" doc:"Directory holding the hardlinked tree"`
	CollectionType    string     `json:"collection_type,omitempty" doc:"Host collection type"`
	Status            string     `json:"status" doc:"pending, syncing, synced or error"`
	LastSyncedAt      *time.Time `json:"last_synced_at,omitempty" doc:"Completion time of the last successful sync"`
	LastSyncFileCount *int       `json:"last_sync_file_count,omitempty" doc:"Mirrored files after the last successful sync"`
	LastError         string     `json:"last_error,omitempty" doc:"Error of the last failed operation"`
	Progress          *float64   `json:"progress,omitempty" doc:"Completion percentage of the operation in flight"`
}

// AlternativeResponse is a language alternative in API responses.
type AlternativeResponse struct {
	ID                  string           `json:"id" doc:"Alternative ID"`
	Name                string           `json:"name" doc:"Display name"`
	LanguageCode        string           `json:"language_code" doc:"Preferred audio and subtitle language"`
	MetadataLanguage    string           `json:"metadata_language" doc:"Metadata language of mirror libraries"`
	MetadataCountry     string           `json:"metadata_country,omitempty" doc:"Metadata country of mirror libraries"`
	DestinationBasePath string           `json:"destination_base_path" doc:"Directory under which mirror trees are built"`
	CreatedAt           time.Time        `json:"created_at" doc:"Creation time"`
	ModifiedAt          *time.Time       `json:"modified_at,omitempty" doc:"Last modification time"`
	Mirrors             []MirrorResponse `json:"mirrors" doc:"Library mirrors"`
}

// MirrorDeleteResponse reports each part of a mirror removal.
type MirrorDeleteResponse struct {
	MirrorID      string   `json:"mirror_id" doc:"Mirror ID"`
	ConfigRemoved bool     `json:"config_removed" doc:"Whether the configuration entry was removed"`
	Conflict      string   `json:"conflict,omitempty" doc:"Why the entry was left in place"`
	Errors        []string `json:"errors,omitempty" doc:"Library or file removal failures"`
}

func toMirrorResponse(m *domain.LibraryMirror, progress map[string]float64) MirrorResponse {
	resp := MirrorResponse{
		ID:                m.ID,
		SourceLibraryID:   m.SourceLibraryID,
		SourceLibraryName: m.SourceLibraryName,
		TargetLibraryID:   m.TargetLibraryID,
		TargetLibraryName: m.TargetLibraryName,
		TargetPath:        m.TargetPath,
		CollectionType:    m.CollectionType,
		Status:            string(m.Status),
		LastSyncedAt:      m.LastSyncedAt,
		LastSyncFileCount: m.LastSyncFileCount,
		LastError:         m.LastError,
	}
	if p, ok := progress[m.ID]; ok {
		resp.Progress = &p
	}
	return resp
}

func toAlternativeResponse(a *domain.LanguageAlternative, progress map[string]float64) AlternativeResponse {
	mirrors := make([]MirrorResponse, len(a.Mirrors))
	for i := range a.Mirrors {
		mirrors[i] = toMirrorResponse(&a.Mirrors[i], progress)
	}
	return AlternativeResponse{
		ID:                  a.ID,
		Name:                a.Name,
		LanguageCode:        a.LanguageCode,
		MetadataLanguage:    a.MetadataLanguage,
		MetadataCountry:     a.MetadataCountry,
		DestinationBasePath: a.DestinationBasePath,
		CreatedAt:           a.CreatedAt,
		ModifiedAt:          a.ModifiedAt,
		Mirrors:             mirrors,
	}
}

func toMirrorDeleteResponse(r *mirror.DeleteResult) MirrorDeleteResponse {
	resp := MirrorDeleteResponse{
		MirrorID:      r.MirrorID,
		ConfigRemoved: r.ConfigRemoved,
		Conflict:      string(r.Conflict),
	}
	for _, err := range []error{r.ConfigError, r.LibraryError, r.FilesError} {
		if err != nil {
			resp.Errors = append(resp.Errors, err.Error())
		}
	}
	return resp
}
