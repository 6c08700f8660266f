package di

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-mirrors/internal/config"
	"github.com/listenupapp/listenup-mirrors/internal/di/providers"
	"github.com/listenupapp/listenup-mirrors/internal/host"
	"github.com/listenupapp/listenup-mirrors/internal/service"
	"github.com/listenupapp/listenup-mirrors/internal/sse"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		App:    config.AppConfig{Environment: "development"},
		Logger: config.LoggerConfig{Level: "error"},
		Data:   config.DataConfig{BasePath: dir},
		Server: config.ServerConfig{Port: "0", ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second},
		Mirror: config.MirrorConfig{MaxConcurrentSyncs: 1, TriggerRatePerMinute: 6},
		Host:   config.HostConfig{DatabasePath: filepath.Join(dir, "host.db")},
	}
}

func TestContainer_ConfigurationSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)
	baseDir := t.TempDir()

	injector := NewContainer(cfg)
	svc := do.MustInvoke[*providers.AlternativeServiceHandle](injector)
	alt, err := svc.CreateAlternative(context.Background(), service.CreateAlternativeRequest{
		Name:                "Português",
		LanguageCode:        "pt",
		DestinationBasePath: baseDir,
	})
	require.NoError(t, err)
	injector.Shutdown()

	injector = NewContainer(cfg)
	defer injector.Shutdown()
	svc = do.MustInvoke[*providers.AlternativeServiceHandle](injector)

	got, err := svc.GetAlternative(context.Background(), alt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Português", got.Name)
}

func TestContainer_HostCatalogIsShared(t *testing.T) {
	cfg := testConfig(t)
	injector := NewContainer(cfg)
	defer injector.Shutdown()

	hostHandle := do.MustInvoke[*providers.HostHandle](injector)
	_, err := hostHandle.CreateLibrary(context.Background(), "Movies", "movies", host.LibraryOptions{})
	require.NoError(t, err)

	svc := do.MustInvoke[*providers.AlternativeServiceHandle](injector)
	libs, err := svc.ListLibraries(context.Background())
	require.NoError(t, err)
	require.Len(t, libs, 1)
	assert.Equal(t, "Movies", libs[0].Name)
}

func TestContainer_WatcherDisabled(t *testing.T) {
	cfg := testConfig(t)
	injector := NewContainer(cfg)
	defer injector.Shutdown()

	h := do.MustInvoke[*providers.FileWatcherHandle](injector)
	assert.Nil(t, h.Watcher)
}

func TestContainer_EventsFollowConfiguration(t *testing.T) {
	cfg := testConfig(t)
	injector := NewContainer(cfg)
	defer injector.Shutdown()

	events := do.MustInvoke[*providers.SSEManagerHandle](injector)
	client, err := events.Connect("")
	require.NoError(t, err)

	svc := do.MustInvoke[*providers.AlternativeServiceHandle](injector)
	_, err = svc.CreateAlternative(context.Background(), service.CreateAlternativeRequest{
		Name:                "Español",
		LanguageCode:        "es",
		DestinationBasePath: t.TempDir(),
	})
	require.NoError(t, err)

	select {
	case e := <-client.EventChan:
		assert.Equal(t, sse.EventConfigChanged, e.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no event after creating an alternative")
	}
}
