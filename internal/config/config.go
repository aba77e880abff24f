// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultCatalogURL is the published zine catalog.
const DefaultCatalogURL = "https://raw.githubusercontent.com/jbw004/zine-data/main/data.json"

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Server   ServerConfig
	Storage  StorageConfig
	Auth     AuthConfig
	Firebase FirebaseConfig
	Push     PushConfig
	Catalog  CatalogConfig
	Passport PassportConfig
	Session  SessionConfig
	FanMail  FanMailConfig
	Images   ImageCacheConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string

	// AdvertiseMDNS announces the server on the local network.
	AdvertiseMDNS bool
	// Name is the advertised server name. Empty uses the hostname.
	Name string
}

// StorageConfig selects the document store and where local data lives.
type StorageConfig struct {
	// DataPath holds the SQLite database, auth key, image cache and local object storage.
	DataPath string
	// Backend is "sqlite" or "firestore".
	Backend string
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// Mode is "local" (PASETO accounts) or "firebase" (Firebase ID tokens).
	Mode string
	// PASETO v4 symmetric key, set by auth.LoadOrGenerateKey in the provider.
	AccessTokenKey      []byte
	AccessTokenDuration time.Duration
}

// FirebaseConfig holds credentials for the Firebase-backed implementations.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	CredentialsJSON string
	StorageBucket   string
}

// PushConfig selects the push messaging gateway.
type PushConfig struct {
	// Mode is "local" (in-process broker) or "fcm".
	Mode string
}

// CatalogConfig configures where the zine catalog comes from.
type CatalogConfig struct {
	URL             string
	File            string // When set, the catalog is read from disk and reloaded on change.
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	// NotifyNewIssues publishes a push notification to a zine's topic when a refresh finds new issues.
	NotifyNewIssues bool
}

// PassportConfig configures passport rendering.
type PassportConfig struct {
	CanvasURL string
	ThemeName string
}

// SessionConfig controls per-user session lifetime.
type SessionConfig struct {
	IdleTimeout time.Duration
}

// ImageCacheConfig sizes the cover image cache.
type ImageCacheConfig struct {
	// MemoryEntries bounds the in-memory tier.
	MemoryEntries int
	// DiskTTL is how long the Badger tier keeps an image. Zero disables the disk tier.
	DiskTTL time.Duration
}

// FanMailConfig controls fan mail posting.
type FanMailConfig struct {
	PostsPerMinute int
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(flag.CommandLine, os.Args[1:])
}

// LoadConfigFrom is LoadConfig with an explicit flag set and argument list.
func LoadConfigFrom(fs *flag.FlagSet, args []string) (*Config, error) {
	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 0, streaming)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma separated allowed origins (default: *)")
	advertiseMDNS := fs.String("advertise-mdns", "", "Advertise the server via mDNS (default: false)")

	dataPath := fs.String("data-path", "", "Directory for local data")
	backend := fs.String("backend", "", "Document store backend (sqlite, firestore)")

	authMode := fs.String("auth-mode", "", "Authentication mode (local, firebase)")
	accessTokenDuration := fs.String("access-token-duration", "", "Access token lifetime (e.g., 24h)")

	firebaseProject := fs.String("firebase-project", "", "Firebase project ID")
	firebaseCredentials := fs.String("firebase-credentials", "", "Path to a Firebase service account file")
	firebaseBucket := fs.String("firebase-bucket", "", "Cloud Storage bucket for uploads")

	pushMode := fs.String("push-mode", "", "Push messaging mode (local, fcm)")

	catalogURL := fs.String("catalog-url", "", "Zine catalog URL")
	catalogFile := fs.String("catalog-file", "", "Read the zine catalog from a local file")
	catalogRefresh := fs.String("catalog-refresh", "", "Catalog refresh interval (default: 15m)")
	notifyNewIssues := fs.String("notify-new-issues", "", "Publish notifications for new issues (default: true)")

	canvasURL := fs.String("passport-canvas-url", "", "Background image for passports")
	sessionIdle := fs.String("session-idle-timeout", "", "Idle time before a user session is released (default: 30m)")

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
		Server: ServerConfig{
			Port:          getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSOrigins:   splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")),
			AdvertiseMDNS: getBoolConfigValue(*advertiseMDNS, "ADVERTISE_MDNS", false),
			Name:          getConfigValue("", "SERVER_NAME", ""),
		},
		Storage: StorageConfig{
			DataPath: getConfigValue(*dataPath, "DATA_PATH", ""),
			Backend:  strings.ToLower(getConfigValue(*backend, "STORAGE_BACKEND", "sqlite")),
		},
		Auth: AuthConfig{
			Mode: strings.ToLower(getConfigValue(*authMode, "AUTH_MODE", "local")),
		},
		Firebase: FirebaseConfig{
			ProjectID:       getConfigValue(*firebaseProject, "FIREBASE_PROJECT_ID", ""),
			CredentialsFile: getConfigValue(*firebaseCredentials, "GOOGLE_APPLICATION_CREDENTIALS", ""),
			CredentialsJSON: getConfigValue("", "FIREBASE_SERVICE_ACCOUNT_JSON", ""),
			StorageBucket:   getConfigValue(*firebaseBucket, "FIREBASE_STORAGE_BUCKET", ""),
		},
		Push: PushConfig{
			Mode: strings.ToLower(getConfigValue(*pushMode, "PUSH_MODE", "local")),
		},
		Catalog: CatalogConfig{
			URL:             getConfigValue(*catalogURL, "CATALOG_URL", DefaultCatalogURL),
			File:            getConfigValue(*catalogFile, "CATALOG_FILE", ""),
			NotifyNewIssues: getBoolConfigValue(*notifyNewIssues, "NOTIFY_NEW_ISSUES", true),
		},
		Passport: PassportConfig{
			CanvasURL: getConfigValue(*canvasURL, "PASSPORT_CANVAS_URL", ""),
			ThemeName: getConfigValue("", "PASSPORT_THEME", "Riot Grrrl Revival"),
		},
		FanMail: FanMailConfig{
			PostsPerMinute: getIntConfigValue("", "FANMAIL_POSTS_PER_MINUTE", 5),
		},
		Images: ImageCacheConfig{
			MemoryEntries: getIntConfigValue("", "IMAGE_CACHE_ENTRIES", 256),
		},
	}

	durations := []struct {
		flagValue string
		envKey    string
		def       string
		dst       *time.Duration
	}{
		{*readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{*writeTimeout, "SERVER_WRITE_TIMEOUT", "0s", &cfg.Server.WriteTimeout},
		{*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{*accessTokenDuration, "ACCESS_TOKEN_DURATION", "24h", &cfg.Auth.AccessTokenDuration},
		{*catalogRefresh, "CATALOG_REFRESH_INTERVAL", "15m", &cfg.Catalog.RefreshInterval},
		{"", "CATALOG_FETCH_TIMEOUT", "30s", &cfg.Catalog.FetchTimeout},
		{*sessionIdle, "SESSION_IDLE_TIMEOUT", "30m", &cfg.Session.IdleTimeout},
		{"", "IMAGE_CACHE_TTL", "168h", &cfg.Images.DiskTTL},
	}
	for _, d := range durations {
		v, err := getDurationConfigValue(d.flagValue, d.envKey, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if cfg.Catalog.File != "" {
		expanded, err := expandPath(cfg.Catalog.File, "")
		if err != nil {
			return nil, fmt.Errorf("invalid catalog file: %w", err)
		}
		cfg.Catalog.File = expanded
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

	if c.Storage.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	switch c.Storage.Backend {
	case "sqlite", "firestore":
	default:
		return fmt.Errorf("invalid storage backend: %s (must be sqlite or firestore)", c.Storage.Backend)
	}

	switch c.Auth.Mode {
	case "local", "firebase":
	default:
		return fmt.Errorf("invalid auth mode: %s (must be local or firebase)", c.Auth.Mode)
	}

	switch c.Push.Mode {
	case "local", "fcm":
	default:
		return fmt.Errorf("invalid push mode: %s (must be local or fcm)", c.Push.Mode)
	}

	if c.UsesFirebase() && c.Firebase.ProjectID == "" {
		return errors.New("FIREBASE_PROJECT_ID is required when a firebase backend is selected")
	}

	if c.Catalog.URL == "" && c.Catalog.File == "" {
		return errors.New("either CATALOG_URL or CATALOG_FILE must be set")
	}

	if c.Images.MemoryEntries < 1 {
		return fmt.Errorf("invalid image cache size: %d (must be at least 1)", c.Images.MemoryEntries)
	}

	if c.FanMail.PostsPerMinute < 1 {
		return fmt.Errorf("invalid fan mail rate: %d (must be at least 1)", c.FanMail.PostsPerMinute)
	}

	return nil
}

// UsesFirebase reports whether any component talks to Firebase.
func (c *Config) UsesFirebase() bool {
	return c.Storage.Backend == "firestore" || c.Auth.Mode == "firebase" || c.Push.Mode == "fcm"
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

// expandDataPath defaults the data path to ~/ZineServer/data.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "ZineServer", "data")

	expanded, err := expandPath(c.Storage.DataPath, defaultPath)
	if err != nil {
		return err
	}
	c.Storage.DataPath = expanded
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

// getDurationConfigValue parses a duration from flag, env var, or default.
func getDurationConfigValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file. Variables already
// set in the environment win over the file.
func loadEnvFile(path string) error {
	return godotenv.Load(path)
}
