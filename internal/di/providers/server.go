package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-mirrors/internal/api"
	"github.com/listenupapp/listenup-mirrors/internal/config"
	"github.com/listenupapp/listenup-mirrors/internal/logger"
	"github.com/listenupapp/listenup-mirrors/internal/sse"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	handler *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Server.Shutdown(ctx)
	h.handler.Close()
	return err
}

// ProvideHTTPServer provides the HTTP server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	svcHandle := do.MustInvoke[*AlternativeServiceHandle](i)
	events := do.MustInvoke[*SSEManagerHandle](i)

	handler := api.NewServer(storeHandle.Store, svcHandle.AlternativeService, api.Options{
		CORSOrigins:          cfg.Server.CORSOrigins,
		TriggerRatePerMinute: cfg.Mirror.TriggerRatePerMinute,
		Events:               sse.NewHandler(events.Manager, log.Component("sse")),
	}, log.Component("api"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Streams are long-lived; end them when shutdown begins so it can complete.
	srv.RegisterOnShutdown(func() {
		if err := events.Shutdown(); err != nil {
			log.Warn("SSE shutdown error", "error", err)
		}
	})

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, handler: handler}, nil
}
