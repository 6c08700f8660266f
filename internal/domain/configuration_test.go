package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConfiguration() *Configuration {
	target := "lib-target"
	count := 3
	synced := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	defaultID := "alt-pt"

	cfg := NewConfiguration()
	cfg.Alternatives = []LanguageAlternative{{
		ID:                  "alt-pt",
		Name:                "Portuguese",
		LanguageCode:        "pt",
		MetadataLanguage:    "pt",
		MetadataCountry:     "BR",
		DestinationBasePath: "/media/pt",
		Mirrors: []LibraryMirror{{
			ID:                "mir-1",
			SourceLibraryID:   "lib-movies",
			SourceLibraryName: "Movies",
			TargetLibraryID:   &target,
			TargetLibraryName: "Movies (Portuguese)",
			TargetPath:        "/media/pt/movies",
			Status:            SyncStatusSynced,
			LastSyncedAt:      &synced,
			LastSyncFileCount: &count,
		}},
	}}
	cfg.DefaultAlternativeID = &defaultID
	cfg.LdapGroupMappings = []LdapGroupMapping{{GroupDN: "cn=pt", AlternativeID: "alt-pt", Priority: 1}}
	cfg.UserAssignments = []UserLanguageAssignment{{UserID: "u1", AlternativeID: "alt-pt", Source: AssignmentManual}}
	cfg.ExcludedExtensions = []string{".nfo"}
	return cfg
}

func TestConfiguration_CloneIsDeep(t *testing.T) {
	orig := sampleConfiguration()
	clone := orig.Clone()

	*clone.Alternatives[0].Mirrors[0].TargetLibraryID = "changed"
	*clone.Alternatives[0].Mirrors[0].LastSyncFileCount = 99
	*clone.DefaultAlternativeID = "other"
	clone.Alternatives[0].Name = "Changed"
	clone.Alternatives[0].Mirrors = append(clone.Alternatives[0].Mirrors, LibraryMirror{ID: "mir-2"})
	clone.ExcludedExtensions[0] = ".xml"
	clone.LdapGroupMappings[0].Priority = 7

	assert.Equal(t, "lib-target", *orig.Alternatives[0].Mirrors[0].TargetLibraryID)
	assert.Equal(t, 3, *orig.Alternatives[0].Mirrors[0].LastSyncFileCount)
	assert.Equal(t, "alt-pt", *orig.DefaultAlternativeID)
	assert.Equal(t, "Portuguese", orig.Alternatives[0].Name)
	assert.Len(t, orig.Alternatives[0].Mirrors, 1)
	assert.Equal(t, ".nfo", orig.ExcludedExtensions[0])
	assert.Equal(t, 1, orig.LdapGroupMappings[0].Priority)
}

func TestConfiguration_CloneNil(t *testing.T) {
	var cfg *Configuration
	clone := cfg.Clone()
	require.NotNil(t, clone)
	assert.True(t, clone.SyncAfterLibraryScan)
}

func TestConfiguration_JSONPreservesNullableFields(t *testing.T) {
	orig := sampleConfiguration()
	orig.Alternatives[0].Mirrors = append(orig.Alternatives[0].Mirrors, LibraryMirror{
		ID:     "mir-pending",
		Status: SyncStatusPending,
	})

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded Configuration
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, orig.Alternatives[0].Mirrors[0].LastSyncedAt.UTC(), decoded.Alternatives[0].Mirrors[0].LastSyncedAt.UTC())
	assert.Nil(t, decoded.Alternatives[0].Mirrors[1].TargetLibraryID)
	assert.Nil(t, decoded.Alternatives[0].Mirrors[1].LastSyncedAt)
	assert.Equal(t, SyncStatusPending, decoded.Alternatives[0].Mirrors[1].Status)
	assert.Contains(t, string(data), `"status":"synced"`)
}

func TestConfiguration_RemoveAlternativeClearsReferences(t *testing.T) {
	cfg := sampleConfiguration()
	cfg.Alternatives = append(cfg.Alternatives, LanguageAlternative{ID: "alt-es", Name: "Spanish"})
	cfg.LdapGroupMappings = append(cfg.LdapGroupMappings, LdapGroupMapping{GroupDN: "cn=es", AlternativeID: "alt-es"})

	require.True(t, cfg.RemoveAlternative("alt-pt"))

	assert.Nil(t, cfg.DefaultAlternativeID)
	assert.Len(t, cfg.Alternatives, 1)
	assert.Len(t, cfg.LdapGroupMappings, 1)
	assert.Equal(t, "alt-es", cfg.LdapGroupMappings[0].AlternativeID)
	assert.Empty(t, cfg.UserAssignments)

	assert.False(t, cfg.RemoveAlternative("missing"))
}

func TestConfiguration_FindMirror(t *testing.T) {
	cfg := sampleConfiguration()

	alt, m := cfg.FindMirror("mir-1")
	require.NotNil(t, m)
	assert.Equal(t, "alt-pt", alt.ID)

	alt, m = cfg.FindMirror("nope")
	assert.Nil(t, alt)
	assert.Nil(t, m)
}

func TestConfiguration_Assignments(t *testing.T) {
	cfg := NewConfiguration()
	cfg.SetAssignment(UserLanguageAssignment{UserID: "u1", AlternativeID: "a"})
	cfg.SetAssignment(UserLanguageAssignment{UserID: "u1", AlternativeID: "b"})

	require.Len(t, cfg.UserAssignments, 1)
	assert.Equal(t, "b", cfg.Assignment("u1").AlternativeID)
	assert.True(t, cfg.ClearAssignment("u1"))
	assert.Nil(t, cfg.Assignment("u1"))
}

func TestNamesEqual(t *testing.T) {
	assert.True(t, NamesEqual("Portuguese", "PORTUGUESE"))
	assert.True(t, NamesEqual("Français", "FRANÇAIS"))
	assert.False(t, NamesEqual("Portuguese", "Spanish"))
}

func TestLibraryMirror_StatusTransitions(t *testing.T) {
	m := LibraryMirror{Status: SyncStatusError, LastError: "old"}

	m.MarkSyncing()
	assert.Equal(t, SyncStatusSyncing, m.Status)

	now := time.Now()
	m.MarkSynced(now, 4)
	assert.Equal(t, SyncStatusSynced, m.Status)
	assert.Empty(t, m.LastError)
	assert.Equal(t, 4, *m.LastSyncFileCount)

	m.MarkError(errors.New("disk gone"))
	assert.Equal(t, SyncStatusError, m.Status)
	assert.Equal(t, "disk gone", m.LastError)
	assert.True(t, SyncStatusError.Valid())
	assert.False(t, SyncStatus("bogus").Valid())
}
