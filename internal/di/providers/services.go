package providers

import (
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-mirrors/internal/access"
	"github.com/listenupapp/listenup-mirrors/internal/backup"
	"github.com/listenupapp/listenup-mirrors/internal/config"
	"github.com/listenupapp/listenup-mirrors/internal/fsutil"
	"github.com/listenupapp/listenup-mirrors/internal/logger"
	"github.com/listenupapp/listenup-mirrors/internal/mirror"
	"github.com/listenupapp/listenup-mirrors/internal/service"
)

// ProvideFS provides the filesystem adapter.
func ProvideFS(i do.Injector) (*fsutil.FS, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return fsutil.New(log.Component("fsutil")), nil
}

// ProvideMirrorEngine provides the mirror engine.
func ProvideMirrorEngine(i do.Injector) (*mirror.Engine, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	hostHandle := do.MustInvoke[*HostHandle](i)
	fsys := do.MustInvoke[*fsutil.FS](i)

	return mirror.New(storeHandle.Store, hostHandle.Store, fsys, log.Component("mirror"), mirror.Config{
		MaxConcurrentSyncs: cfg.Mirror.MaxConcurrentSyncs,
	}), nil
}

// ProvideReconciler provides the access reconciler.
func ProvideReconciler(i do.Injector) (*access.LibraryReconciler, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	hostHandle := do.MustInvoke[*HostHandle](i)

	return access.New(storeHandle.Store, hostHandle.Store, hostHandle.Store, hostHandle.Store, log.Component("access")), nil
}

// AlternativeServiceHandle wraps the alternative service so background work
// is canceled and drained on shutdown.
type AlternativeServiceHandle struct {
	*service.AlternativeService
}

// Shutdown implements do.Shutdownable.
func (h *AlternativeServiceHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideAlternativeService provides the alternative service.
func ProvideAlternativeService(i do.Injector) (*AlternativeServiceHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	hostHandle := do.MustInvoke[*HostHandle](i)
	engine := do.MustInvoke[*mirror.Engine](i)
	reconciler := do.MustInvoke[*access.LibraryReconciler](i)

	svc := service.NewAlternativeService(storeHandle.Store, engine, hostHandle.Store, reconciler, log.Component("service"))
	return &AlternativeServiceHandle{AlternativeService: svc}, nil
}

// ProvideBackupService provides configuration backup and restore, writing
// archives under {data}/backups.
func ProvideBackupService(i do.Injector) (*backup.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	return backup.NewService(storeHandle.Store, filepath.Join(cfg.Data.BasePath, "backups"), log.Component("backup")), nil
}
