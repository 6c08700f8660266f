package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-mirrors/internal/logger"
	"github.com/listenupapp/listenup-mirrors/internal/mirror"
	"github.com/listenupapp/listenup-mirrors/internal/sse"
)

// SSEManagerHandle wraps sse.Manager with Shutdownable.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Manager.Shutdown(ctx)
	h.cancel()
	return err
}

// ProvideSSEManager provides the event stream manager. It follows every
// published configuration and polls the engine for sync progress.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	engine := do.MustInvoke[*mirror.Engine](i)

	m := sse.NewManager(engine.ActiveProgress, log.Component("sse"))
	m.Prime(storeHandle.Snapshot())
	storeHandle.OnChange(m.ObserveConfiguration)

	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)

	return &SSEManagerHandle{Manager: m, cancel: cancel}, nil
}
