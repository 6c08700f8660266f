package sse

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-mirrors/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func startManager(t *testing.T, progress ProgressSource) *Manager {
	t.Helper()
	m := NewManager(progress, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m
}

func TestManager_BroadcastFiltersByAlternative(t *testing.T) {
	m := startManager(t, nil)

	all, err := m.Connect("")
	require.NoError(t, err)
	scoped, err := m.Connect("alt-b")
	require.NoError(t, err)
	assert.Equal(t, 2, m.ClientCount())

	m.Emit(NewMirrorRemovedEvent("alt-a", "mir-1"))
	m.Emit(NewMirrorRemovedEvent("alt-b", "mir-2"))

	assert.Equal(t, "mir-1", receive(t, all.EventChan).Data.(MirrorRemovedData).MirrorID)
	assert.Equal(t, "mir-2", receive(t, all.EventChan).Data.(MirrorRemovedData).MirrorID)
	assert.Equal(t, "mir-2", receive(t, scoped.EventChan).Data.(MirrorRemovedData).MirrorID)

	m.Disconnect(scoped.ID)
	assert.Equal(t, 1, m.ClientCount())
	_, open := <-scoped.Done
	assert.False(t, open)
}

func TestManager_ProgressReportsThenClears(t *testing.T) {
	active := map[string]float64{"mir-1": 50}
	progress := make(chan map[string]float64, 1)
	progress <- active

	m := NewManager(func() map[string]float64 {
		select {
		case p := <-progress:
			return p
		default:
			return nil
		}
	}, testLogger())
	m.progressInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client, err := m.Connect("")
	require.NoError(t, err)
	go m.Start(ctx)

	first := receive(t, client.EventChan)
	require.Equal(t, EventMirrorProgress, first.Type)
	assert.Equal(t, active, first.Data.(MirrorProgressData).Mirrors)

	second := receive(t, client.EventChan)
	require.Equal(t, EventMirrorProgress, second.Type)
	assert.Empty(t, second.Data.(MirrorProgressData).Mirrors)
}

func TestManager_ShutdownDeliversQueuedEvents(t *testing.T) {
	m := NewManager(nil, testLogger())
	client, err := m.Connect("")
	require.NoError(t, err)

	m.Emit(NewMirrorRemovedEvent("alt", "mir-1"))
	go m.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	require.NoError(t, m.Shutdown(ctx), "second shutdown is a no-op")

	e, ok := <-client.EventChan
	require.True(t, ok)
	assert.Equal(t, EventMirrorRemoved, e.Type)
	_, ok = <-client.EventChan
	assert.False(t, ok, "client closed after drain")

	m.Emit(NewHeartbeatEvent())
	assert.Equal(t, 0, m.ClientCount())
}

func configWith(mirrors ...domain.LibraryMirror) *domain.Configuration {
	cfg := domain.NewConfiguration()
	cfg.Alternatives = []domain.LanguageAlternative{{ID: "alt-1", Mirrors: mirrors}}
	return cfg
}

func drain(m *Manager) []Event {
	var out []Event
	for {
		select {
		case e := <-m.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestObserveConfiguration_EmitsChanges(t *testing.T) {
	m := NewManager(nil, testLogger())
	m.Prime(configWith(domain.LibraryMirror{ID: "mir-1", Status: domain.SyncStatusPending}))

	count := 3
	m.ObserveConfiguration(configWith(
		domain.LibraryMirror{ID: "mir-1", Status: domain.SyncStatusSynced, LastSyncFileCount: &count},
		domain.LibraryMirror{ID: "mir-2", Status: domain.SyncStatusPending},
	))

	events := drain(m)
	require.Len(t, events, 3)
	assert.Equal(t, EventMirrorStatus, events[0].Type)
	status := events[0].Data.(MirrorStatusData)
	assert.Equal(t, "mir-1", status.MirrorID)
	assert.Equal(t, domain.SyncStatusSynced, status.Status)
	assert.Equal(t, "alt-1", events[0].AlternativeID)
	assert.Equal(t, "mir-2", events[1].Data.(MirrorStatusData).MirrorID)
	assert.Equal(t, EventConfigChanged, events[2].Type)
	assert.Equal(t, ConfigChangedData{Alternatives: 1, Mirrors: 2}, events[2].Data)

	// Unchanged mirrors are quiet; removed ones are announced.
	m.ObserveConfiguration(configWith(
		domain.LibraryMirror{ID: "mir-1", Status: domain.SyncStatusSynced, LastSyncFileCount: &count},
	))
	events = drain(m)
	require.Len(t, events, 2)
	assert.Equal(t, EventMirrorRemoved, events[0].Type)
	assert.Equal(t, MirrorRemovedData{AlternativeID: "alt-1", MirrorID: "mir-2"}, events[0].Data)
}

func TestManager_SnapshotFiltersByAlternative(t *testing.T) {
	m := NewManager(func() map[string]float64 {
		return map[string]float64{"mir-a": 40, "mir-b": 75}
	}, testLogger())

	count := 12
	cfg := domain.NewConfiguration()
	cfg.Alternatives = []domain.LanguageAlternative{
		{ID: "alt-1", Mirrors: []domain.LibraryMirror{{ID: "mir-a", Status: domain.SyncStatusSyncing, LastSyncFileCount: &count}}},
		{ID: "alt-2", Mirrors: []domain.LibraryMirror{{ID: "mir-b", Status: domain.SyncStatusError, LastError: "disk full"}}},
	}
	m.Prime(cfg)

	all := m.Snapshot("sse-1", "")
	assert.Equal(t, "sse-1", all.ClientID)
	require.Len(t, all.Mirrors, 2)
	assert.Equal(t, "mir-a", all.Mirrors[0].MirrorID)
	require.NotNil(t, all.Mirrors[0].FileCount)
	assert.Equal(t, 12, *all.Mirrors[0].FileCount)
	assert.Nil(t, all.Mirrors[1].FileCount)
	assert.Equal(t, map[string]float64{"mir-a": 40, "mir-b": 75}, all.Progress)

	scoped := m.Snapshot("sse-2", "alt-2")
	assert.Equal(t, []MirrorStatusData{{
		AlternativeID: "alt-2",
		MirrorID:      "mir-b",
		Status:        domain.SyncStatusError,
		LastError:     "disk full",
	}}, scoped.Mirrors)
	assert.Equal(t, map[string]float64{"mir-b": 75}, scoped.Progress)
}

// frame is one parsed server-sent event.
type frame map[string]string

func readFrame(t *testing.T, lines *bufio.Scanner) frame {
	t.Helper()
	f := frame{}
	for lines.Scan() {
		line := lines.Text()
		if line == "" {
			if len(f) > 0 {
				return f
			}
			continue
		}
		name, value, _ := strings.Cut(line, ": ")
		f[name] = value
	}
	t.Fatalf("stream ended: %v", lines.Err())
	return nil
}

func TestHandler_StreamsEvents(t *testing.T) {
	m := startManager(t, nil)
	m.Prime(configWith(domain.LibraryMirror{ID: "mine", Status: domain.SyncStatusSynced}))
	srv := httptest.NewServer(NewHandler(m, testLogger()))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?alternative_id=alt-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	lines := bufio.NewScanner(resp.Body)

	first := readFrame(t, lines)
	assert.Equal(t, "5000", first["retry"])
	assert.Equal(t, "1", first["id"])
	assert.Equal(t, string(EventSnapshot), first["event"])
	assert.Contains(t, first["data"], `"mirror_id":"mine"`)

	m.Emit(NewMirrorRemovedEvent("alt-2", "other"))
	m.Emit(NewMirrorRemovedEvent("alt-1", "mine"))

	next := readFrame(t, lines)
	assert.Equal(t, "2", next["id"])
	assert.Equal(t, string(EventMirrorRemoved), next["event"])
	assert.Contains(t, next["data"], `"mirror_id":"mine"`)
	assert.NotContains(t, next, "retry")
}

func TestHandler_RefusesAfterShutdown(t *testing.T) {
	m := startManager(t, nil)
	require.NoError(t, m.Shutdown(context.Background()))

	rec := httptest.NewRecorder()
	NewHandler(m, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, m.ClientCount())
}

func TestHandler_RejectsPost(t *testing.T) {
	h := NewHandler(NewManager(nil, testLogger()), testLogger())
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}
