package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-mirrors/internal/errors"
	"github.com/listenupapp/listenup-mirrors/internal/host"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "host.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLibraries_CreateAddPathList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	opts := host.LibraryOptions{
		MetadataLanguage:     "en",
		MetadataFetchers:     []string{"TheMovieDb", "OMDb"},
		SaveLocalMetadata:    true,
		AutomaticRefreshDays: 30,
	}
	lib, err := s.CreateLibrary(ctx, "Movies", "movies", opts)
	require.NoError(t, err)
	assert.NotEmpty(t, lib.ID)

	require.NoError(t, s.AddLibraryPath(ctx, "Movies", "/media/movies"))
	require.NoError(t, s.AddLibraryPath(ctx, "Movies", "/media/movies2"))
	require.NoError(t, s.AddLibraryPath(ctx, "Movies", "/media/movies"))

	libs, err := s.ListLibraries(ctx)
	require.NoError(t, err)
	require.Len(t, libs, 1)
	assert.Equal(t, "Movies", libs[0].Name)
	assert.Equal(t, "movies", libs[0].CollectionType)
	assert.Equal(t, []string{"/media/movies", "/media/movies2"}, libs[0].Paths)
	assert.Equal(t, opts, libs[0].Options)
}

func TestLibraries_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateLibrary(ctx, "Shows", "tvshows", host.LibraryOptions{})
	require.NoError(t, err)

	_, err = s.CreateLibrary(ctx, "Shows", "tvshows", host.LibraryOptions{})
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)
}

func TestLibraries_Remove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateLibrary(ctx, "Music", "music", host.LibraryOptions{})
	require.NoError(t, err)
	require.NoError(t, s.AddLibraryPath(ctx, "Music", "/media/music"))

	require.NoError(t, s.RemoveLibrary(ctx, "Music"))
	libs, err := s.ListLibraries(ctx)
	require.NoError(t, err)
	assert.Empty(t, libs)

	assert.ErrorIs(t, s.RemoveLibrary(ctx, "Music"), errors.ErrNotFound)
	assert.ErrorIs(t, s.AddLibraryPath(ctx, "Music", "/x"), errors.ErrNotFound)
}

func TestRefreshQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.QueueRefresh(ctx, "lib-a", host.RefreshRequest{
		MetadataMode: host.RefreshFull, ImageMode: host.RefreshFull, Priority: host.PriorityLow,
	}))
	require.NoError(t, s.QueueRefresh(ctx, "lib-b", host.RefreshRequest{
		MetadataMode: host.RefreshDefault, ImageMode: host.RefreshDefault,
		ReplaceAllMetadata: true, Priority: host.PriorityHigh,
	}))

	pending, err := s.PendingRefreshes(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "lib-b", pending[0].LibraryID)
	assert.True(t, pending[0].Request.ReplaceAllMetadata)
	assert.Equal(t, "lib-a", pending[1].LibraryID)
	assert.Equal(t, host.RefreshFull, pending[1].Request.MetadataMode)

	require.NoError(t, s.AckRefresh(ctx, pending[0].ID))
	pending, err = s.PendingRefreshes(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestUsers_PolicyAndPreferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "alice")
	require.NoError(t, err)

	policy, err := s.GetPolicy(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, policy.EnableAllFolders)
	assert.Empty(t, policy.EnabledFolders)

	require.NoError(t, s.SetPolicy(ctx, u.ID, host.AccessPolicy{EnabledFolders: []string{"lib-1", "lib-2"}}))
	policy, err = s.GetPolicy(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, policy.EnableAllFolders)
	assert.Equal(t, []string{"lib-1", "lib-2"}, policy.EnabledFolders)

	require.NoError(t, s.SetPreferences(ctx, u.ID, host.LanguagePreferences{AudioLanguage: "fra", SubtitleLanguage: "fra"}))
	prefs, err := s.GetPreferences(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "fra", prefs.AudioLanguage)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []host.User{u}, users)

	_, err = s.GetPolicy(ctx, "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.ErrorIs(t, s.SetPreferences(ctx, "missing", host.LanguagePreferences{}), errors.ErrNotFound)
}

func TestUsers_Groups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, s.AddUserToGroup(ctx, u.ID, "cn=french,ou=groups"))
	require.NoError(t, s.AddUserToGroup(ctx, u.ID, "cn=french,ou=groups"))
	require.NoError(t, s.AddUserToGroup(ctx, u.ID, "cn=admins,ou=groups"))

	groups, err := s.GroupsForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"cn=admins,ou=groups", "cn=french,ou=groups"}, groups)
}
