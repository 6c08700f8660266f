package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *backend {
	t.Helper()
	opts := Options{SettleDelay: 50 * time.Millisecond}
	opts.setDefaults()

	b, err := newBackend(testLogger(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// nextEvent returns the first event for path, skipping unrelated ones.
func nextEvent(t *testing.T, b *backend, path string) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-b.Events():
			if ev.Path == path {
				return ev
			}
		case <-deadline:
			t.Fatalf("timeout waiting for event on %s", path)
			return Event{}
		}
	}
}

func TestBackend_SettledFile(t *testing.T) {
	dir := t.TempDir()
	b := newTestBackend(t)
	require.NoError(t, b.Watch(dir))

	path := filepath.Join(dir, "Heat.mkv")
	require.NoError(t, os.WriteFile(path, []byte("movie data"), 0o644))

	ev := nextEvent(t, b, path)
	assert.Equal(t, EventChanged, ev.Type)
	assert.Equal(t, int64(len("movie data")), ev.Size)
	assert.False(t, ev.ModTime.IsZero())
}

func TestBackend_RemovedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Heat.mkv")
	require.NoError(t, os.WriteFile(path, []byte("movie"), 0o644))

	b := newTestBackend(t)
	require.NoError(t, b.Watch(dir))
	require.NoError(t, os.Remove(path))

	ev := nextEvent(t, b, path)
	assert.Equal(t, EventRemoved, ev.Type)
}

func TestBackend_NewDirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	b := newTestBackend(t)
	require.NoError(t, b.Watch(dir))

	sub := filepath.Join(dir, "Heat (1995)")
	require.NoError(t, os.Mkdir(sub, 0o755))
	ev := nextEvent(t, b, sub)
	assert.Equal(t, EventChanged, ev.Type)

	path := filepath.Join(sub, "Heat.mkv")
	require.NoError(t, os.WriteFile(path, []byte("movie"), 0o644))
	ev = nextEvent(t, b, path)
	assert.Equal(t, EventChanged, ev.Type)
}

func TestBackend_IgnoredFile(t *testing.T) {
	dir := t.TempDir()
	b := newTestBackend(t)
	require.NoError(t, b.Watch(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Heat.mkv.part"), []byte("partial"), 0o644))

	select {
	case ev := <-b.Events():
		t.Fatalf("unexpected event %s on %s", ev.Type, ev.Path)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestBackend_Unwatch(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))

	b := newTestBackend(t)
	require.NoError(t, b.Watch(dir))
	b.mu.Lock()
	assert.Len(t, b.dirs, 2)
	b.mu.Unlock()

	b.Unwatch(dir)
	b.mu.Lock()
	assert.Empty(t, b.dirs)
	b.mu.Unlock()

	require.NoError(t, os.WriteFile(filepath.Join(sub, "Heat.mkv"), []byte("movie"), 0o644))
	select {
	case ev := <-b.Events():
		t.Fatalf("unexpected event %s on %s", ev.Type, ev.Path)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestBackend_WatchRejectsFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Heat.mkv")
	require.NoError(t, os.WriteFile(path, []byte("movie"), 0o644))

	b := newTestBackend(t)
	assert.Error(t, b.Watch(path))
	assert.Error(t, b.Watch(filepath.Join(dir, "missing")))
}

func TestBackend_CloseIsIdempotent(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}
