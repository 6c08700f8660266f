package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-mirrors/internal/config"
	"github.com/listenupapp/listenup-mirrors/internal/host/sqlite"
	"github.com/listenupapp/listenup-mirrors/internal/logger"
	"github.com/listenupapp/listenup-mirrors/internal/store"
)

// StoreHandle wraps the configuration store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the badger-backed configuration store and loads the
// persisted configuration.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := filepath.Join(cfg.Data.BasePath, "mirrors.db")
	persister, err := store.OpenBadger(dbPath, log.Component("store"))
	if err != nil {
		return nil, err
	}

	st := store.New(persister, log.Component("store"))
	if err := st.Load(context.Background()); err != nil {
		_ = persister.Close()
		return nil, err
	}

	log.Info("Configuration store ready", "path", dbPath)

	return &StoreHandle{Store: st}, nil
}

// HostHandle wraps the sqlite host catalog with shutdown capability.
type HostHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *HostHandle) Shutdown() error {
	return h.Close()
}

// ProvideHost opens the reference host catalog.
func ProvideHost(i do.Injector) (*HostHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	db, err := sqlite.Open(cfg.Host.DatabasePath, log.Component("host"))
	if err != nil {
		return nil, err
	}

	return &HostHandle{Store: db}, nil
}
