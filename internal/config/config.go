package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the tab shell core.
type Config struct {
	// CDP engine connection settings
	CDPAddress string
	CDPPort    int

	// API listener. When BindAddr is taken and BindFallback is set, the
	// candidates are tried in order.
	BindAddr       string
	BindCandidates []string
	BindFallback   bool

	// Favicon cache
	FaviconDir      string
	FaviconCapacity int

	// Media aggregation
	MediaProbeInterval  time.Duration
	HardwareMinInterval time.Duration

	// Profiles
	DefaultProfileID     string
	ResolveDefaultOnBoot bool

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:           getEnvOrDefault("TABCORE_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:              getEnvIntOrDefault("TABCORE_CDP_PORT", 9222),
		BindAddr:             getEnvOrDefault("TABCORE_BIND_ADDR", "127.0.0.1:8790"),
		BindCandidates:       getEnvListOrDefault("TABCORE_BIND_CANDIDATES", []string{"127.0.0.1:8791", "127.0.0.1:8792"}),
		BindFallback:         getEnvBoolOrDefault("TABCORE_BIND_FALLBACK", true),
		FaviconDir:           getEnvOrDefault("TABCORE_FAVICON_DIR", "./favicon_cache"),
		FaviconCapacity:      getEnvIntOrDefault("TABCORE_FAVICON_CAPACITY", 100),
		MediaProbeInterval:   getEnvDurationOrDefault("TABCORE_MEDIA_PROBE_INTERVAL", 15*time.Second),
		HardwareMinInterval:  getEnvDurationOrDefault("TABCORE_HARDWARE_MIN_INTERVAL", 2*time.Second),
		DefaultProfileID:     getEnvOrDefault("TABCORE_DEFAULT_PROFILE", "default"),
		ResolveDefaultOnBoot: getEnvBoolOrDefault("TABCORE_RESOLVE_DEFAULT_PROFILE", true),
		LogLevel:             getEnvOrDefault("TABCORE_LOG_LEVEL", "info"),
		LogFile:              getEnvOrDefault("TABCORE_LOG_FILE", "logs/shelld.log"),
	}

	return cfg, nil
}

// GetCDPURL returns the engine's CDP HTTP endpoint.
func (c *Config) GetCDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
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

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

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

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
