// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	GatewayURL  string // Origin of the document QA backend, e.g. http://localhost:8000/api
	FrontendURL string
	DBPath      string
	LogLevel    slog.Level
	Workspace   WorkspaceConfig
	Activity    ActivityConfig
	Upload      UploadConfig
}

// WorkspaceConfig controls workspace lifetime and panel behavior.
type WorkspaceConfig struct {
	TTL               time.Duration
	ReaperInterval    time.Duration
	ScrollSettleDelay time.Duration
}

// ActivityConfig controls the operation journal.
type ActivityConfig struct {
	Enabled   bool
	Retention time.Duration
}

// UploadConfig bounds browser uploads.
type UploadConfig struct {
	MaxBytes int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	gatewayURL := getEnv("GATEWAY_URL", "")
	if gatewayURL == "" {
		// Legacy name from the Next.js frontend.
		gatewayURL = getEnv("NEXT_PUBLIC_BACKEND_URL", "")
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GatewayURL:  strings.TrimSpace(gatewayURL),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/docdesk.db"),
		LogLevel:    getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		Workspace: WorkspaceConfig{
			TTL:               getEnvDuration("WORKSPACE_TTL", 30*time.Minute),
			ReaperInterval:    getEnvDuration("REAPER_INTERVAL", time.Minute),
			ScrollSettleDelay: getEnvDuration("SCROLL_SETTLE_DELAY", 100*time.Millisecond),
		},
		Activity: ActivityConfig{
			Enabled:   getEnvBool("ACTIVITY_LOG_ENABLED", true),
			Retention: getEnvDuration("ACTIVITY_RETENTION", 7*24*time.Hour),
		},
		Upload: UploadConfig{
			MaxBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 32<<20)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.GatewayURL == "" {
		return fmt.Errorf("GATEWAY_URL cannot be empty")
	}
	u, err := url.Parse(c.GatewayURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("GATEWAY_URL must be an absolute http(s) URL, got %q", c.GatewayURL)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Workspace.TTL <= 0 {
		return fmt.Errorf("WORKSPACE_TTL must be > 0")
	}
	if c.Workspace.ReaperInterval <= 0 {
		return fmt.Errorf("REAPER_INTERVAL must be > 0")
	}
	if c.Workspace.ScrollSettleDelay < 0 {
		return fmt.Errorf("SCROLL_SETTLE_DELAY cannot be negative")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the origins permitted by CORS and websocket checks.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
