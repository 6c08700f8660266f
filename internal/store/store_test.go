package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-mirrors/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) (*Store, *MemoryPersister) {
	t.Helper()
	p := NewMemoryPersister()
	return New(p, testLogger()), p
}

func addAlternative(t *testing.T, s *Store, id, name string, mirrorIDs ...string) {
	t.Helper()
	err := s.Update(context.Background(), func(cfg *domain.Configuration) {
		alt := domain.LanguageAlternative{
			ID:                  id,
			Name:                name,
			DestinationBasePath: "/media/" + id,
			CreatedAt:           time.Now(),
		}
		for _, m := range mirrorIDs {
			alt.Mirrors = append(alt.Mirrors, domain.LibraryMirror{
				ID:              m,
				SourceLibraryID: "src-" + m,
				Status:          domain.SyncStatusPending,
			})
		}
		cfg.Alternatives = append(cfg.Alternatives, alt)
	})
	require.NoError(t, err)
}

func TestRead_ReturnsDisposableSnapshot(t *testing.T) {
	s, _ := newTestStore(t)
	addAlternative(t, s, "alt-1", "French", "mir-1")

	alts := Read(s, func(cfg *domain.Configuration) []domain.LanguageAlternative {
		return cfg.Alternatives
	})
	alts[0].Name = "mutated"
	alts[0].Mirrors[0].Status = domain.SyncStatusError

	live := s.Snapshot()
	assert.Equal(t, "French", live.Alternatives[0].Name)
	assert.Equal(t, domain.SyncStatusPending, live.Alternatives[0].Mirrors[0].Status)
}

func TestUpdate_BreaksReferencesIntoCallerObjects(t *testing.T) {
	s, _ := newTestStore(t)

	target := "lib-1"
	mirror := domain.LibraryMirror{ID: "mir-1", TargetLibraryID: &target}
	alt := domain.LanguageAlternative{ID: "alt-1", Name: "German", Mirrors: []domain.LibraryMirror{mirror}}

	require.NoError(t, s.Update(context.Background(), func(cfg *domain.Configuration) {
		cfg.Alternatives = append(cfg.Alternatives, alt)
	}))

	// Mutating the caller's objects afterwards must not leak into live state.
	target = "changed"
	alt.Mirrors[0].SourceLibraryID = "changed"

	_, m := s.Snapshot().FindMirror("mir-1")
	require.NotNil(t, m)
	assert.Equal(t, "lib-1", *m.TargetLibraryID)
	assert.Empty(t, m.SourceLibraryID)
}

func TestUpdate_AlwaysPersists(t *testing.T) {
	s, p := newTestStore(t)

	require.NoError(t, s.Update(context.Background(), func(*domain.Configuration) {}))
	require.NoError(t, s.Update(context.Background(), func(*domain.Configuration) {}))

	assert.Equal(t, 2, p.Saves())
}

func TestUpdateIf_FalseDiscards(t *testing.T) {
	s, p := newTestStore(t)
	addAlternative(t, s, "alt-1", "French")
	saves := p.Saves()

	applied, err := s.UpdateIf(context.Background(), func(cfg *domain.Configuration) bool {
		cfg.Alternatives[0].Name = "discarded"
		return false
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, saves, p.Saves())
	assert.Equal(t, "French", s.Snapshot().Alternatives[0].Name)
}

func TestUpdateIf_RejectsDuplicateNames(t *testing.T) {
	s, _ := newTestStore(t)
	addAlternative(t, s, "alt-1", "Français")

	applied, err := s.UpdateIf(context.Background(), func(cfg *domain.Configuration) bool {
		if cfg.AlternativeByName("FRANÇAIS") != nil {
			return false
		}
		cfg.Alternatives = append(cfg.Alternatives, domain.LanguageAlternative{ID: "alt-2", Name: "FRANÇAIS"})
		return true
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Len(t, s.Snapshot().Alternatives, 1)
}

func TestUpdate_PersistFailureStillPublishes(t *testing.T) {
	s, p := newTestStore(t)
	p.FailWith(errors.New("disk full"))

	err := s.Update(context.Background(), func(cfg *domain.Configuration) {
		cfg.SyncAfterLibraryScan = false
	})
	require.Error(t, err)
	assert.False(t, s.Snapshot().SyncAfterLibraryScan)
}

func TestUpdate_ConcurrentWritersDoNotLoseChanges(t *testing.T) {
	s, _ := newTestStore(t)

	const writers = 50
	var wg sync.WaitGroup
	for i := range writers {
		wg.Go(func() {
			_ = s.Update(context.Background(), func(cfg *domain.Configuration) {
				cfg.Alternatives = append(cfg.Alternatives, domain.LanguageAlternative{
					ID:   fmt.Sprintf("alt-%d", i),
					Name: fmt.Sprintf("Language %d", i),
				})
			})
		})
	}

	// Readers run alongside writers and must always see a consistent value.
	for range writers {
		wg.Go(func() {
			_ = Read(s, func(cfg *domain.Configuration) int { return len(cfg.Alternatives) })
		})
	}
	wg.Wait()

	assert.Len(t, s.Snapshot().Alternatives, writers)
}

func TestUpdate_NormalizesClassifierSets(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Update(context.Background(), func(cfg *domain.Configuration) {
		cfg.ExcludedExtensions = []string{"NFO", ".nfo", ".JPG"}
		cfg.ExcludedDirectories = []string{"Metadata", "METADATA", " extras "}
		cfg.IncludedDirectories = []string{}
	}))

	cfg := s.Snapshot()
	assert.Equal(t, []string{".nfo", ".jpg"}, cfg.ExcludedExtensions)
	assert.Equal(t, []string{"metadata", "extras"}, cfg.ExcludedDirectories)
	assert.NotNil(t, cfg.IncludedDirectories)
	assert.Empty(t, cfg.IncludedDirectories)
}

func TestLoad_RestoresPersistedState(t *testing.T) {
	p := NewMemoryPersister()
	first := New(p, testLogger())
	addAlternative(t, first, "alt-1", "Portuguese", "mir-1")

	second := New(p, testLogger())
	require.NoError(t, second.Load(context.Background()))

	alt := second.Snapshot().Alternative("alt-1")
	require.NotNil(t, alt)
	assert.Equal(t, "Portuguese", alt.Name)
	assert.Equal(t, []string{"mir-1"}, alt.MirrorIDs())
}

func TestLoad_EmptyPersister(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Load(context.Background()))

	cfg := s.Snapshot()
	assert.Empty(t, cfg.Alternatives)
	assert.True(t, cfg.SyncAfterLibraryScan)
}

func TestOnChange_ReceivesCopies(t *testing.T) {
	s, _ := newTestStore(t)

	var seen []*domain.Configuration
	s.OnChange(func(cfg *domain.Configuration) {
		seen = append(seen, cfg)
	})

	addAlternative(t, s, "alt-1", "French")
	require.Len(t, seen, 1)

	seen[0].Alternatives[0].Name = "mutated"
	assert.Equal(t, "French", s.Snapshot().Alternatives[0].Name)
}

func TestOnChange_DeliversInPublishOrder(t *testing.T) {
	s, _ := newTestStore(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string
	s.OnChange(func(cfg *domain.Configuration) {
		last := cfg.Alternatives[len(cfg.Alternatives)-1].Name
		if last == "first" {
			close(entered)
			<-release
		}
		mu.Lock()
		order = append(order, last)
		mu.Unlock()
	})

	add := func(id, name string) {
		assert.NoError(t, s.Update(context.Background(), func(cfg *domain.Configuration) {
			cfg.Alternatives = append(cfg.Alternatives, domain.LanguageAlternative{ID: id, Name: name})
		}))
	}

	var wg sync.WaitGroup
	wg.Go(func() { add("alt-1", "first") })
	<-entered
	wg.Go(func() { add("alt-2", "second") })

	// The second write is live while the first listener call is still running.
	require.Eventually(t, func() bool {
		return len(s.Snapshot().Alternatives) == 2
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestTryRemoveAlternativeAtomic(t *testing.T) {
	ctx := context.Background()

	t.Run("matching mirrors removes", func(t *testing.T) {
		s, _ := newTestStore(t)
		addAlternative(t, s, "alt-1", "French", "mir-1", "mir-2")
		require.NoError(t, s.Update(ctx, func(cfg *domain.Configuration) {
			id := "alt-1"
			cfg.DefaultAlternativeID = &id
			cfg.LdapGroupMappings = append(cfg.LdapGroupMappings, domain.LdapGroupMapping{GroupDN: "cn=fr", AlternativeID: "alt-1"})
		}))

		res, err := s.TryRemoveAlternativeAtomic(ctx, "alt-1", []string{"mir-2", "mir-1"})
		require.NoError(t, err)
		assert.True(t, res.Removed)
		assert.False(t, res.Conflict())

		cfg := s.Snapshot()
		assert.Nil(t, cfg.Alternative("alt-1"))
		assert.Nil(t, cfg.DefaultAlternativeID)
		assert.Empty(t, cfg.LdapGroupMappings)
	})

	t.Run("concurrently added mirror conflicts", func(t *testing.T) {
		s, _ := newTestStore(t)
		addAlternative(t, s, "alt-1", "French", "mir-1")
		expected := s.Snapshot().Alternative("alt-1").MirrorIDs()

		require.NoError(t, s.Update(ctx, func(cfg *domain.Configuration) {
			alt := cfg.Alternative("alt-1")
			alt.Mirrors = append(alt.Mirrors, domain.LibraryMirror{ID: "mir-new"})
		}))

		res, err := s.TryRemoveAlternativeAtomic(ctx, "alt-1", expected)
		require.NoError(t, err)
		assert.False(t, res.Removed)
		assert.True(t, res.Conflict())
		assert.Equal(t, ConflictMirrorsChanged, res.Reason)
		assert.Equal(t, []string{"mir-new"}, res.Unexpected)
		assert.NotNil(t, s.Snapshot().Alternative("alt-1"))
	})

	t.Run("missing alternative", func(t *testing.T) {
		s, _ := newTestStore(t)

		res, err := s.TryRemoveAlternativeAtomic(ctx, "nope", nil)
		require.NoError(t, err)
		assert.False(t, res.Removed)
		assert.False(t, res.Conflict())
		assert.Equal(t, ConflictNotFound, res.Reason)
	})
}

func TestTryRemoveMirrorAtomic(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	addAlternative(t, s, "alt-1", "French", "mir-1", "mir-2")

	lib := "lib-9"
	_, err := s.UpdateMirror(ctx, "mir-2", func(_ *domain.LanguageAlternative, m *domain.LibraryMirror) {
		m.TargetLibraryID = &lib
	})
	require.NoError(t, err)

	res, err := s.TryRemoveMirrorAtomic(ctx, "alt-1", "mir-1", nil)
	require.NoError(t, err)
	assert.True(t, res.Removed)

	stale := "lib-old"
	res, err = s.TryRemoveMirrorAtomic(ctx, "alt-1", "mir-2", &stale)
	require.NoError(t, err)
	assert.False(t, res.Removed)
	assert.Equal(t, ConflictTargetChanged, res.Reason)

	res, err = s.TryRemoveMirrorAtomic(ctx, "alt-1", "mir-2", &lib)
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.Empty(t, s.Snapshot().Alternative("alt-1").Mirrors)
}

func TestRemoveMirror(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	addAlternative(t, s, "alt-1", "French", "mir-1")

	removed, err := s.RemoveMirror(ctx, "mir-1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveMirror(ctx, "mir-1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestBadgerPersister_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	p, err := OpenBadger(dir, testLogger())
	require.NoError(t, err)

	s := New(p, testLogger())
	addAlternative(t, s, "alt-1", "Japanese", "mir-1")
	synced := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err = s.UpdateMirror(context.Background(), "mir-1", func(_ *domain.LanguageAlternative, m *domain.LibraryMirror) {
		m.MarkSynced(synced, 42)
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	p2, err := OpenBadger(dir, testLogger())
	require.NoError(t, err)
	defer p2.Close()

	loaded := New(p2, testLogger())
	require.NoError(t, loaded.Load(context.Background()))

	_, m := loaded.Snapshot().FindMirror("mir-1")
	require.NotNil(t, m)
	assert.Equal(t, domain.SyncStatusSynced, m.Status)
	require.NotNil(t, m.LastSyncedAt)
	assert.True(t, synced.Equal(*m.LastSyncedAt))
	require.NotNil(t, m.LastSyncFileCount)
	assert.Equal(t, 42, *m.LastSyncFileCount)
	assert.Nil(t, m.TargetLibraryID)
}

func TestBadgerPersister_EmptyDatabase(t *testing.T) {
	p, err := OpenBadger(t.TempDir(), testLogger())
	require.NoError(t, err)
	defer p.Close()

	cfg, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}
