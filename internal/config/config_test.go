package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:     AppConfig{Environment: "development"},
		Logger:  LoggerConfig{Level: "info"},
		Storage: StorageConfig{DataPath: "/some/path", Backend: "sqlite"},
		Auth:    AuthConfig{Mode: "local"},
		Push:    PushConfig{Mode: "local"},
		Catalog: CatalogConfig{URL: DefaultCatalogURL},
		FanMail: FanMailConfig{PostsPerMinute: 5},
		Images:  ImageCacheConfig{MemoryEntries: 16},
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

func TestValidate_Modes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "postgres" }, false},
		{"unknown auth mode", func(c *Config) { c.Auth.Mode = "oauth" }, false},
		{"unknown push mode", func(c *Config) { c.Push.Mode = "apns" }, false},
		{"firestore without project", func(c *Config) { c.Storage.Backend = "firestore" }, false},
		{"fcm without project", func(c *Config) { c.Push.Mode = "fcm" }, false},
		{"firestore with project", func(c *Config) {
			c.Storage.Backend = "firestore"
			c.Firebase.ProjectID = "zines-prod"
		}, true},
		{"no catalog source", func(c *Config) { c.Catalog.URL = "" }, false},
		{"file catalog only", func(c *Config) {
			c.Catalog.URL = ""
			c.Catalog.File = "/data/catalog.json"
		}, true},
		{"zero post rate", func(c *Config) { c.FanMail.PostsPerMinute = 0 }, false},
		{"zero image cache", func(c *Config) { c.Images.MemoryEntries = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoadConfigFrom_FlagsOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("STORAGE_BACKEND", "sqlite")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := LoadConfigFrom(fs, []string{
		"--port", "9100",
		"--data-path", dir,
		"--env-file", filepath.Join(dir, "missing.env"),
		"--catalog-refresh", "5m",
	})
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, dir, cfg.Storage.DataPath)
	assert.Equal(t, 5*time.Minute, cfg.Catalog.RefreshInterval)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, DefaultCatalogURL, cfg.Catalog.URL)
	assert.True(t, cfg.Catalog.NotifyNewIssues)
}

func TestLoadConfigFrom_InvalidDuration(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	_, err := LoadConfigFrom(fs, []string{
		"--data-path", t.TempDir(),
		"--access-token-duration", "forever",
	})
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nZINE_TEST_A=alpha\nZINE_TEST_B=\"quoted\"\n\nZINE_TEST_PRESET=fromfile\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("ZINE_TEST_PRESET", "fromenv")
	t.Setenv("ZINE_TEST_A", "")
	require.NoError(t, os.Unsetenv("ZINE_TEST_A"))
	t.Setenv("ZINE_TEST_B", "")
	require.NoError(t, os.Unsetenv("ZINE_TEST_B"))

	require.NoError(t, loadEnvFile(path))

	assert.Equal(t, "alpha", os.Getenv("ZINE_TEST_A"))
	assert.Equal(t, "quoted", os.Getenv("ZINE_TEST_B"))
	assert.Equal(t, "fromenv", os.Getenv("ZINE_TEST_PRESET"))
}

func TestGetIntConfigValue(t *testing.T) {
	t.Setenv("ZINE_TEST_INT", "12")
	assert.Equal(t, 12, getIntConfigValue("", "ZINE_TEST_INT", 3))
	assert.Equal(t, 7, getIntConfigValue("7", "ZINE_TEST_INT", 3))

	t.Setenv("ZINE_TEST_INT", "twelve")
	assert.Equal(t, 3, getIntConfigValue("", "ZINE_TEST_INT", 3))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, splitList(" https://a.example, ,https://b.example "))
	assert.Nil(t, splitList(""))
}
