// Package di provides dependency injection configuration for the mirror server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-mirrors/internal/access"
	"github.com/listenupapp/listenup-mirrors/internal/config"
	"github.com/listenupapp/listenup-mirrors/internal/di/providers"
	"github.com/listenupapp/listenup-mirrors/internal/fsutil"
	"github.com/listenupapp/listenup-mirrors/internal/logger"
	"github.com/listenupapp/listenup-mirrors/internal/mirror"
)

// NewContainer creates and configures the DI container with all providers.
// Providers are lazy: a CLI invoking only the service never starts the
// watcher, scheduler or HTTP server.
func NewContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, cfg)
	do.Provide(injector, providers.ProvideLogger)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideHost)
	do.Provide(injector, providers.ProvideFS)

	// Mirror layer
	do.Provide(injector, providers.ProvideMirrorEngine)
	do.Provide(injector, providers.ProvideReconciler)
	do.Provide(injector, providers.ProvideAlternativeService)
	do.Provide(injector, providers.ProvideBackupService)

	// Workers
	do.Provide(injector, providers.ProvideFileWatcher)
	do.Provide(injector, providers.ProvideScheduler)
	do.Provide(injector, providers.ProvideSSEManager)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of the server and its background workers.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.HostHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*fsutil.FS](injector)
	_ = do.MustInvoke[*mirror.Engine](injector)
	_ = do.MustInvoke[*access.LibraryReconciler](injector)
	_ = do.MustInvoke[*providers.AlternativeServiceHandle](injector)

	// Workers
	if _, err := do.Invoke[*providers.FileWatcherHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*providers.SchedulerHandle](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
