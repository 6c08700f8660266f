// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App    AppConfig
	Logger LoggerConfig
	Data   DataConfig
	Server ServerConfig
	Mirror MirrorConfig
	Host   HostConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds the on-disk location of server state.
type DataConfig struct {
	// BasePath holds the configuration database (default: ~/ListenUp/mirrors)
	BasePath string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
	CORSOrigins  []string      // Allowed CORS origins (default: none)
}

// MirrorConfig holds mirror engine and background job configuration.
type MirrorConfig struct {
	// CleanupInterval is how often orphaned mirrors are reaped (default: 1h, 0 disables)
	CleanupInterval time.Duration
	// SyncInterval is how often every alternative is re-synced (default: 0, disabled)
	SyncInterval time.Duration
	// WatchSources enables the filesystem watcher on mirrored source paths (default: true)
	WatchSources bool
	// SettleDelay is how long a source change must be quiet before a sync fires (default: 30s)
	SettleDelay time.Duration
	// MaxConcurrentSyncs bounds mirrors synced in parallel per alternative (default: 2)
	MaxConcurrentSyncs int
	// TriggerRatePerMinute bounds manual sync/cleanup triggers per key (default: 6)
	TriggerRatePerMinute int
}

// HostConfig holds the location of the reference host catalog database.
type HostConfig struct {
	// DatabasePath is the sqlite file backing the library catalog (default: {data}/host.db)
	DatabasePath string
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("listenup-mirrors", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for server state")
	hostDBPath := fs.String("host-db", "", "Path to the host catalog database")

	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma separated allowed CORS origins")

	cleanupInterval := fs.String("cleanup-interval", "", "Orphan cleanup interval (default: 1h)")
	syncInterval := fs.String("sync-interval", "", "Periodic sync-all interval (default: disabled)")
	watchSources := fs.String("watch-sources", "", "Watch source libraries for changes (default: true)")
	settleDelay := fs.String("settle-delay", "", "Quiet period before a watched change syncs (default: 30s)")
	maxConcurrent := fs.String("max-concurrent-syncs", "", "Mirrors synced in parallel per alternative (default: 2)")
	triggerRate := fs.String("trigger-rate", "", "Manual triggers per minute per key (default: 6)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Server: ServerConfig{
			Port:        getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "")),
		},
		Mirror: MirrorConfig{
			WatchSources:         getBoolConfigValue(*watchSources, "MIRROR_WATCH_SOURCES", true),
			MaxConcurrentSyncs:   getIntConfigValue(*maxConcurrent, "MIRROR_MAX_CONCURRENT_SYNCS", 2),
			TriggerRatePerMinute: getIntConfigValue(*triggerRate, "MIRROR_TRIGGER_RATE", 6),
		},
		Host: HostConfig{
			DatabasePath: getConfigValue(*hostDBPath, "HOST_DB_PATH", ""),
		},
	}

	durations := []struct {
		target *time.Duration
		flag   string
		envKey string
		def    string
	}{
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"},
		{&cfg.Mirror.CleanupInterval, *cleanupInterval, "MIRROR_CLEANUP_INTERVAL", "1h"},
		{&cfg.Mirror.SyncInterval, *syncInterval, "MIRROR_SYNC_INTERVAL", "0s"},
		{&cfg.Mirror.SettleDelay, *settleDelay, "MIRROR_SETTLE_DELAY", "30s"},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flag, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", strings.ToLower(d.envKey), raw, err)
		}
		*d.target = parsed
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}
	if err := cfg.expandHostDBPath(); err != nil {
		return nil, fmt.Errorf("invalid host database path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	if c.Mirror.CleanupInterval < 0 || c.Mirror.SyncInterval < 0 || c.Mirror.SettleDelay < 0 {
		return errors.New("mirror intervals cannot be negative")
	}
	if c.Mirror.MaxConcurrentSyncs < 1 {
		return fmt.Errorf("max concurrent syncs must be at least 1, got %d", c.Mirror.MaxConcurrentSyncs)
	}
	if c.Mirror.TriggerRatePerMinute < 1 {
		return fmt.Errorf("trigger rate must be at least 1, got %d", c.Mirror.TriggerRatePerMinute)
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	expanded, err := expandPath(c.Data.BasePath, filepath.Join(homeDir, "ListenUp", "mirrors"))
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// expandHostDBPath defaults to {data}/host.db.
func (c *Config) expandHostDBPath() error {
	expanded, err := expandPath(c.Host.DatabasePath, filepath.Join(c.Data.BasePath, "host.db"))
	if err != nil {
		return err
	}
	c.Host.DatabasePath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Env vars take precedence over .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
