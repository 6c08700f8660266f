package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:    AppConfig{Environment: "development"},
		Logger: LoggerConfig{Level: "info"},
		Data:   DataConfig{BasePath: "/some/path"},
		Mirror: MirrorConfig{
			CleanupInterval:      time.Hour,
			SettleDelay:          30 * time.Second,
			MaxConcurrentSyncs:   2,
			TriggerRatePerMinute: 6,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_MirrorBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative cleanup interval", func(c *Config) { c.Mirror.CleanupInterval = -time.Second }},
		{"zero concurrency", func(c *Config) { c.Mirror.MaxConcurrentSyncs = 0 }},
		{"zero trigger rate", func(c *Config) { c.Mirror.TriggerRatePerMinute = 0 }},
		{"empty data path", func(c *Config) { c.Data.BasePath = "" }},
		{"bad log level", func(c *Config) { c.Logger.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("", "/default")
	require.NoError(t, err)
	assert.Equal(t, "/default", got)

	got, err = expandPath("~/mirrors", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "mirrors"), got)

	got, err = expandPath("/abs/./path/", "")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)

	got, err = expandPath("relative", "")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("MIRROR_SETTLE_DELAY", "5s")

	cfg, err := LoadConfig([]string{
		"-port", "9100",
		"-data-path", dir,
		"-env-file", filepath.Join(dir, "missing.env"),
		"-cors-origins", "http://a.test, http://b.test",
	})
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Mirror.SettleDelay)
	assert.Equal(t, dir, cfg.Data.BasePath)
	assert.Equal(t, filepath.Join(dir, "host.db"), cfg.Host.DatabasePath)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Mirror.WatchSources)
	assert.Equal(t, time.Duration(0), cfg.Mirror.SyncInterval)
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadConfig([]string{"-data-path", dir, "-cleanup-interval", "soon", "-env-file", filepath.Join(dir, "x")})
	assert.Error(t, err)
}

func TestGetConfigValue_Precedence(t *testing.T) {
	t.Setenv("TEST_ENV_KEY", "env-value")

	assert.Equal(t, "flag-value", getConfigValue("flag-value", "TEST_ENV_KEY", "default"))
	assert.Equal(t, "env-value", getConfigValue("", "TEST_ENV_KEY", "default"))
	assert.Equal(t, "default", getConfigValue("", "TEST_ENV_KEY_UNSET", "default"))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "# comment\n\nMIRROR_TEST_A = \"alpha\"\nMIRROR_TEST_B='beta'\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o600))

	t.Setenv("MIRROR_TEST_B", "preset")
	t.Setenv("MIRROR_TEST_A", "")

	require.NoError(t, loadEnvFile(envPath))
	assert.Equal(t, "alpha", os.Getenv("MIRROR_TEST_A"))
	assert.Equal(t, "preset", os.Getenv("MIRROR_TEST_B"))
}

func TestLoadEnvFile_InvalidFormat(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("NOT_A_PAIR\n"), 0o600))

	assert.Error(t, loadEnvFile(envPath))
}
