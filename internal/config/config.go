package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the traverser service.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// HTTP listener
	BindAddr         string
	PortAutoFallback bool
	PortCandidates   []string

	// State store
	StoreDriver string
	StorePath   string

	// Navigation
	NavTimeoutMS int
	NavRate      float64

	// Countdown refresh; 0 disables periodic badge updates
	BadgeRefreshMS int

	AutostartFile string
	NtfyEndpoint  string

	// Optional browser launch
	LaunchBrowser     bool
	BrowserProfileDir string
	BrowserBinary     string

	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		BindAddr:          getEnvOrDefault("TRAVERSER_BIND_ADDR", "127.0.0.1:8190"),
		PortAutoFallback:  getEnvBoolOrDefault("TRAVERSER_PORT_AUTO_FALLBACK", true),
		PortCandidates:    getEnvListOrDefault("TRAVERSER_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		StoreDriver:       strings.ToLower(getEnvOrDefault("TRAVERSER_STORE_DRIVER", "sqlite")),
		StorePath:         getEnvOrDefault("TRAVERSER_STORE_PATH", "./data/traverser.db"),
		NavTimeoutMS:      getEnvIntOrDefault("TRAVERSER_NAV_TIMEOUT_MS", 15000),
		NavRate:           getEnvFloatOrDefault("TRAVERSER_NAV_RATE", 5),
		BadgeRefreshMS:    getEnvIntOrDefault("TRAVERSER_BADGE_REFRESH_MS", 1000),
		AutostartFile:     getEnvOrDefault("TRAVERSER_AUTOSTART_FILE", ""),
		NtfyEndpoint:      getEnvOrDefault("TRAVERSER_NTFY_ENDPOINT", ""),
		LaunchBrowser:     getEnvBoolOrDefault("TRAVERSER_LAUNCH_BROWSER", false),
		BrowserProfileDir: getEnvOrDefault("TRAVERSER_BROWSER_PROFILE_DIR", "./browser_profile"),
		BrowserBinary:     getEnvOrDefault("TRAVERSER_BROWSER_BINARY", ""),
		LogLevel:          strings.ToLower(getEnvOrDefault("TRAVERSER_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("TRAVERSER_LOG_FILE", "logs/traverser.log"),
	}
	if cfg.NavTimeoutMS < 1000 {
		cfg.NavTimeoutMS = 1000
	}
	if cfg.BadgeRefreshMS < 0 {
		cfg.BadgeRefreshMS = 0
	}
	if cfg.NavRate < 0 {
		cfg.NavRate = 0
	}
	return cfg, nil
}

// CDPURL returns the full CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func (c *Config) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutMS) * time.Millisecond
}

func (c *Config) BadgeRefresh() time.Duration {
	return time.Duration(c.BadgeRefreshMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvListOrDefault splits a comma-separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
