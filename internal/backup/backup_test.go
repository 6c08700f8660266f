package backup

import (
	"archive/zip"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-mirrors/internal/backup/stream"
	"github.com/listenupapp/listenup-mirrors/internal/domain"
	"github.com/listenupapp/listenup-mirrors/internal/store"
)

var created = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(store.NewMemoryPersister(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, st.Load(context.Background()))
	return st
}

func newService(t *testing.T, st *store.Store) *Service {
	t.Helper()
	return NewService(st, t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func alternative(id, name string, mirrorIDs ...string) domain.LanguageAlternative {
	alt := domain.LanguageAlternative{
		ID:                  id,
		Name:                name,
		LanguageCode:        "pt",
		MetadataLanguage:    "pt",
		MetadataCountry:     "BR",
		DestinationBasePath: "/media/" + id,
		CreatedAt:           created,
	}
	for _, mid := range mirrorIDs {
		target := "lib-" + mid
		count := 12
		alt.Mirrors = append(alt.Mirrors, domain.LibraryMirror{
			ID:                mid,
			SourceLibraryID:   "src-" + mid,
			SourceLibraryName: "Movies",
			TargetLibraryID:   &target,
			TargetLibraryName: "Movies (" + name + ")",
			TargetPath:        "/media/" + id + "/Movies",
			Status:            domain.SyncStatusSynced,
			LastSyncedAt:      &created,
			LastSyncFileCount: &count,
		})
	}
	return alt
}

func seed(t *testing.T, st *store.Store) {
	t.Helper()
	require.NoError(t, st.Update(context.Background(), func(cfg *domain.Configuration) {
		cfg.Alternatives = []domain.LanguageAlternative{
			alternative("alt-pt", "Português", "mir-1"),
			alternative("alt-es", "Español", "mir-2", "mir-3"),
		}
		def := "alt-pt"
		cfg.DefaultAlternativeID = &def
		cfg.LdapGroupMappings = []domain.LdapGroupMapping{
			{GroupDN: "cn=br,dc=example", AlternativeID: "alt-pt", Priority: 10},
		}
		cfg.UserAssignments = []domain.UserLanguageAssignment{
			{UserID: "u1", AlternativeID: "alt-es", Source: domain.AssignmentManual, UpdatedAt: created},
		}
		cfg.ExcludedExtensions = []string{".nfo"}
		cfg.SyncAfterLibraryScan = false
	}))
}

func TestCreateAndRestoreFull(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)
	seed(t, src)
	svc := newService(t, src)

	res, err := svc.Create(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, EntityCounts{Alternatives: 2, Mirrors: 3, GroupMappings: 1, Assignments: 1}, res.Counts)
	assert.Len(t, res.Checksum, 64)
	assert.Positive(t, res.Size)

	v, err := svc.Validate(ctx, res.Path)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Empty(t, v.Warnings)
	assert.Equal(t, FormatVersion, v.Manifest.Version)

	dst := newStore(t)
	require.NoError(t, dst.Update(ctx, func(cfg *domain.Configuration) {
		cfg.Alternatives = []domain.LanguageAlternative{alternative("alt-old", "Old")}
	}))

	restored, err := newService(t, dst).Restore(ctx, res.Path, RestoreOptions{Mode: RestoreModeFull})
	require.NoError(t, err)
	assert.Equal(t, res.Counts, restored.Imported)
	assert.Empty(t, restored.Errors)

	want, got := src.Snapshot(), dst.Snapshot()
	assert.Equal(t, want.Alternatives, got.Alternatives)
	assert.Equal(t, want.LdapGroupMappings, got.LdapGroupMappings)
	assert.Equal(t, want.UserAssignments, got.UserAssignments)
	assert.Equal(t, want.DefaultAlternativeID, got.DefaultAlternativeID)
	assert.Equal(t, want.ExcludedExtensions, got.ExcludedExtensions)
	assert.False(t, got.SyncAfterLibraryScan)
}

func TestRestoreMerge(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)
	seed(t, src)
	res, err := newService(t, src).Create(ctx, "")
	require.NoError(t, err)

	setup := func(t *testing.T) *store.Store {
		dst := newStore(t)
		require.NoError(t, dst.Update(ctx, func(cfg *domain.Configuration) {
			local := alternative("alt-pt", "Portuguese (local)")
			cfg.Alternatives = []domain.LanguageAlternative{local, alternative("alt-fr", "Français")}
			cfg.UserAssignments = []domain.UserLanguageAssignment{
				{UserID: "u1", AlternativeID: "alt-fr", Source: domain.AssignmentManual, UpdatedAt: created},
			}
		}))
		return dst
	}

	t.Run("keep local", func(t *testing.T) {
		dst := setup(t)
		result, err := newService(t, dst).Restore(ctx, res.Path, RestoreOptions{Mode: RestoreModeMerge, MergeStrategy: MergeKeepLocal})
		require.NoError(t, err)

		cfg := dst.Snapshot()
		assert.Len(t, cfg.Alternatives, 3)
		assert.Equal(t, "Portuguese (local)", cfg.Alternative("alt-pt").Name)
		assert.NotNil(t, cfg.Alternative("alt-es"))
		assert.Equal(t, "alt-fr", cfg.Assignment("u1").AlternativeID)
		assert.Nil(t, cfg.DefaultAlternativeID, "local settings kept")
		assert.Equal(t, 2, result.Skipped)
	})

	t.Run("keep backup", func(t *testing.T) {
		dst := setup(t)
		_, err := newService(t, dst).Restore(ctx, res.Path, RestoreOptions{Mode: RestoreModeMerge, MergeStrategy: MergeKeepBackup})
		require.NoError(t, err)

		cfg := dst.Snapshot()
		assert.Len(t, cfg.Alternatives, 3)
		assert.Equal(t, "Português", cfg.Alternative("alt-pt").Name)
		assert.Len(t, cfg.Alternative("alt-pt").Mirrors, 1)
		assert.Equal(t, "alt-es", cfg.Assignment("u1").AlternativeID)
		require.NotNil(t, cfg.DefaultAlternativeID)
		assert.Equal(t, "alt-pt", *cfg.DefaultAlternativeID)
	})

	t.Run("name collision", func(t *testing.T) {
		dst := newStore(t)
		require.NoError(t, dst.Update(ctx, func(cfg *domain.Configuration) {
			cfg.Alternatives = []domain.LanguageAlternative{alternative("alt-other", "ESPAÑOL")}
		}))
		result, err := newService(t, dst).Restore(ctx, res.Path, RestoreOptions{Mode: RestoreModeMerge})
		require.NoError(t, err)

		require.Len(t, result.Errors, 2)
		assert.Equal(t, "alt-es", result.Errors[0].EntityID)
		assert.Equal(t, "user_assignment", result.Errors[1].EntityType, "assignment to the skipped alternative is dropped")
		assert.Nil(t, dst.Snapshot().Alternative("alt-es"))
	})
}

func TestRestore_DryRunLeavesConfiguration(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)
	seed(t, src)
	res, err := newService(t, src).Create(ctx, "")
	require.NoError(t, err)

	dst := newStore(t)
	result, err := newService(t, dst).Restore(ctx, res.Path, RestoreOptions{DryRun: true})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 2, result.Imported.Alternatives)
	assert.Empty(t, dst.Snapshot().Alternatives)
}

func TestRestore_DropsDanglingReferences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hand.mirrors.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	require.NoError(t, stream.WriteDocument(zw, manifestFile, Manifest{Version: FormatVersion, CreatedAt: created}))
	w, err := stream.NewWriter(zw, mappingsFile)
	require.NoError(t, err)
	require.NoError(t, w.Write(domain.LdapGroupMapping{GroupDN: "cn=x", AlternativeID: "gone"}))
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dst := newStore(t)
	result, err := newService(t, dst).Restore(context.Background(), path, RestoreOptions{})
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "ldap_group_mapping", result.Errors[0].EntityType)
	assert.Empty(t, dst.Snapshot().LdapGroupMappings)
	assert.True(t, dst.Snapshot().SyncAfterLibraryScan, "missing settings fall back to defaults")
}

func TestRestore_RejectsInvalidArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, zip.NewWriter(f).Close())
	require.NoError(t, f.Close())

	svc := newService(t, newStore(t))

	v, err := svc.Validate(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Errors, "missing manifest.json")

	_, err = svc.Restore(context.Background(), path, RestoreOptions{})
	assert.ErrorIs(t, err, ErrInvalidBackup)

	_, err = svc.Restore(context.Background(), path, RestoreOptions{Mode: "partial"})
	assert.Error(t, err)
}

func TestListGetDelete(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	svc := newService(t, st)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	res, err := svc.Create(ctx, "")
	require.NoError(t, err)

	list, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.Path, list[0].Path)

	info, err := svc.Get(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, res.Size, info.Size)

	require.NoError(t, svc.Delete(ctx, list[0].ID))
	_, err = svc.Get(ctx, list[0].ID)
	assert.ErrorIs(t, err, ErrBackupNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, list[0].ID), ErrBackupNotFound)
}
