package providers

import (
	"context"
	"sync"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-mirrors/internal/config"
	"github.com/listenupapp/listenup-mirrors/internal/domain"
	"github.com/listenupapp/listenup-mirrors/internal/logger"
	"github.com/listenupapp/listenup-mirrors/internal/mirror"
	"github.com/listenupapp/listenup-mirrors/internal/scheduler"
	"github.com/listenupapp/listenup-mirrors/internal/watcher"
)

// FileWatcherHandle wraps the source watcher with shutdown capability.
// Watcher is nil when source watching is disabled.
type FileWatcherHandle struct {
	*watcher.Watcher
	cancel context.CancelFunc
	done   sync.WaitGroup
}

// Shutdown implements do.Shutdownable.
func (h *FileWatcherHandle) Shutdown() error {
	if h.cancel != nil {
		h.cancel()
	}
	h.done.Wait()
	return nil
}

// ProvideFileWatcher provides the source watcher and starts it in the
// background. Mirror changes in the store refresh the watched paths.
func ProvideFileWatcher(i do.Injector) (*FileWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	engine := do.MustInvoke[*mirror.Engine](i)

	if !cfg.Mirror.WatchSources {
		log.Info("Source watching disabled by configuration")
		return &FileWatcherHandle{}, nil
	}

	w, err := watcher.New(engine, log.Component("watcher"), watcher.Options{
		Debounce: cfg.Mirror.SettleDelay,
	})
	if err != nil {
		return nil, err
	}

	storeHandle.OnChange(func(*domain.Configuration) {
		w.Refresh()
	})

	ctx, cancel := context.WithCancel(context.Background())
	h := &FileWatcherHandle{Watcher: w, cancel: cancel}
	h.done.Go(func() {
		if err := w.Run(ctx); err != nil {
			log.Error("Source watcher error", "error", err)
		}
	})

	return h, nil
}

// SchedulerHandle wraps the job scheduler with shutdown capability.
type SchedulerHandle struct {
	*scheduler.Scheduler
}

// Shutdown implements do.Shutdownable.
func (h *SchedulerHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideScheduler provides the periodic cleanup and sync-all jobs and
// starts them.
func ProvideScheduler(i do.Injector) (*SchedulerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	svcHandle := do.MustInvoke[*AlternativeServiceHandle](i)

	s := scheduler.New(log.Component("scheduler"),
		scheduler.Job{
			Name:       "orphan-cleanup",
			Interval:   cfg.Mirror.CleanupInterval,
			RunOnStart: true,
			Run: func(ctx context.Context) error {
				result, err := svcHandle.TriggerCleanup(ctx)
				if err != nil {
					return err
				}
				if len(result.Orphans) > 0 {
					log.Info("Orphan cleanup completed", "orphans", len(result.Orphans))
				}
				return nil
			},
		},
		scheduler.Job{
			Name:     "sync-all",
			Interval: cfg.Mirror.SyncInterval,
			Run: func(ctx context.Context) error {
				result, err := svcHandle.SyncAll(ctx)
				if err != nil {
					return err
				}
				if len(result.Failed) > 0 {
					log.Warn("Periodic sync finished with failures",
						"synced", len(result.Synced),
						"failed", len(result.Failed),
					)
				}
				return nil
			},
		},
	)
	s.Start(context.Background())

	return &SchedulerHandle{Scheduler: s}, nil
}
