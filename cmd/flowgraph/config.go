package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rendis/flowgraph/internal/logging"
)

// Config holds all flowgraph configuration.
// Priority: env vars > .env > settings.json > defaults.
type Config struct {
	DataDir          string `json:"data_dir"`
	DBPath           string `json:"db_path"`
	ListenAddr       string `json:"listen_addr"`
	LogLevel         string `json:"log_level"`
	VaultKey         string `json:"-"` // never persisted
	RedisURL         string `json:"redis_url"`
	MessagingBaseURL string `json:"messaging_base_url"`
	DebugSessionTTL  string `json:"debug_session_ttl"` // Go duration, e.g. "30m"
	PoolSize         int    `json:"pool_size"`
	MaxResponseBytes int64  `json:"max_response_bytes"`
}

func defaultConfig() Config {
	dir := dataDir()
	return Config{
		DataDir:         dir,
		DBPath:          filepath.Join(dir, "flowgraph.db"),
		ListenAddr:      ":4200",
		LogLevel:        "info",
		DebugSessionTTL: "30m",
		PoolSize:        4,
	}
}

func dataDir() string {
	if v := os.Getenv("FLOWGRAPH_DATA_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowgraph"
	}
	return filepath.Join(home, ".flowgraph")
}

func (c Config) binDir() string {
	return filepath.Join(c.DataDir, "bin")
}

// debugTTL parses DebugSessionTTL. Zero leaves the debugger default in place.
func (c Config) debugTTL() time.Duration {
	d, err := time.ParseDuration(c.DebugSessionTTL)
	if err != nil {
		return 0
	}
	return d
}

func (c Config) saltPath() string {
	return filepath.Join(c.DataDir, "vault.salt")
}

// loadConfig layers settings.json, .env and FLOWGRAPH_* variables over the
// defaults. A missing settings file or .env is not an error.
func loadConfig() (Config, error) {
	cfg := defaultConfig()

	path := filepath.Join(cfg.DataDir, "settings.json")
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	// Existing environment variables win over .env entries.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	applyEnv(&cfg, os.LookupEnv)
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup("FLOWGRAPH_" + key); ok && v != "" {
			*dst = v
		}
	}
	str("DB_PATH", &cfg.DBPath)
	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("VAULT_KEY", &cfg.VaultKey)
	str("REDIS_URL", &cfg.RedisURL)
	str("MESSAGING_BASE_URL", &cfg.MessagingBaseURL)

	str("DEBUG_SESSION_TTL", &cfg.DebugSessionTTL)
	if v, ok := lookup("FLOWGRAPH_POOL_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PoolSize = n
		}
	}
	if v, ok := lookup("FLOWGRAPH_MAX_RESPONSE_BYTES"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxResponseBytes = n
		}
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger builds the process logger: JSON for the long-running server,
// text for one-shot commands. Both carry correlation ids from the context.
func newLogger(level string, jsonFormat bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler
	if jsonFormat {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(logging.NewCorrelationHandler(h))
}
