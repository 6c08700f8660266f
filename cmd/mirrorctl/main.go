// Package main provides mirrorctl, an operator CLI for mirror configuration
// that runs against the same data directory as the server.
//
// The configuration database is single-writer: stop the server before
// running commands that change state.
package main

import (
	"fmt"
	"os"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/listenupapp/listenup-mirrors/internal/config"
	"github.com/listenupapp/listenup-mirrors/internal/di"
)

var (
	dataPath string
	hostDB   string
	envFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "mirrorctl",
	Short: "Inspect and maintain language mirrors",
	Long: `mirrorctl manages language alternatives and their hardlink mirrors
without the HTTP server. It opens the server's configuration database and
host catalog directly.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataPath, "data-path", "", "Base path for server state")
	rootCmd.PersistentFlags().StringVar(&hostDB, "host-db", "", "Path to the host catalog database")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to .env file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configArgs turns the persistent flags into server config flags.
func configArgs() []string {
	args := []string{"-env-file", envFile, "-log-level", logLevel}
	if dataPath != "" {
		args = append(args, "-data-path", dataPath)
	}
	if hostDB != "" {
		args = append(args, "-host-db", hostDB)
	}
	return args
}

// withContainer builds the DI container, runs fn, and shuts the container
// down. Providers are lazy, so only what fn invokes is started.
func withContainer(fn func(injector do.Injector) error) error {
	cfg, err := config.LoadConfig(configArgs())
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	// Commands run once; background jobs and the watcher stay off.
	cfg.Mirror.WatchSources = false

	injector := di.NewContainer(cfg)
	runErr := fn(injector)
	if err := injector.Shutdown(); err != nil && runErr == nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return runErr
}
