// Package providers contains dependency injection providers for the mirror server.
//
// Providers that start goroutines return a handle implementing
// do.Shutdownable; the container stops them in reverse dependency order.
package providers

import (
	"time"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-mirrors/internal/config"
	"github.com/listenupapp/listenup-mirrors/internal/logger"
)

// shutdownTimeout bounds each handle's graceful stop.
const shutdownTimeout = 30 * time.Second

// ProvideLogger provides the structured logger. Source locations are
// included outside production.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment != "production",
		Environment: cfg.App.Environment,
	})

	log.Debug("Logger configured",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.BasePath,
		"host_db", cfg.Host.DatabasePath,
	)

	return log, nil
}
